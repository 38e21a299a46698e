package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bizportal/portal/internal/jobs"
)

// DefaultRetentionDays is how long idempotency keys are kept.
const DefaultRetentionDays = 7

// Pruner removes records older than a retention window and reports how many went.
type Pruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob handles maintenance:cleanup tasks.
type CleanupJob struct {
	Idempotency Pruner
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handle prunes expired idempotency keys.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Idempotency == nil {
		return errors.New("cleanup: handler not configured")
	}
	payload := CleanupPayload{RetentionDays: DefaultRetentionDays}
	if len(t.Payload()) > 0 {
		_ = json.Unmarshal(t.Payload(), &payload)
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = DefaultRetentionDays
	}
	tracker := j.Metrics.Track(TaskMaintenanceCleanup)
	removed, err := j.Idempotency.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour)
	if err != nil {
		return tracker.End(err)
	}
	logger(j.Logger).Info("maintenance cleanup", slog.Int64("idempotency_keys_removed", removed), slog.Int("retention_days", payload.RetentionDays))
	return tracker.End(nil)
}
