package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bizportal/portal/internal/jobs"
	"github.com/bizportal/portal/internal/sales/signals"
)

// SignalRunner runs one ATS poll.
type SignalRunner interface {
	Run(ctx context.Context, companyID *int64) (signals.Result, error)
}

// SignalPollJob handles signals:poll tasks.
type SignalPollJob struct {
	Runner  SignalRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle polls ATS boards.
func (j *SignalPollJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("signals poll: handler not configured")
	}
	var payload SignalsPollPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("signals payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskSignalsPoll)
	res, err := j.Runner.Run(ctx, payload.CompanyID)
	if err != nil {
		logger(j.Logger).Error("signals poll", slog.Any("error", err))
		return tracker.End(err)
	}
	logger(j.Logger).Info("signals poll completed",
		slog.Int("companies", res.Companies),
		slog.Int("created", res.Created),
		slog.Int("failed", len(res.Failed)))
	return tracker.End(nil)
}
