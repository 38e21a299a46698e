package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bizportal/portal/internal/jobs"
)

// ReminderSource lists reminder mails due on a date.
type ReminderSource interface {
	DueReminders(ctx context.Context, asOf time.Time) ([]MailPayload, error)
}

// MailEnqueuer queues mail for delivery.
type MailEnqueuer interface {
	EnqueueMail(ctx context.Context, payload MailPayload) error
}

// RemindersJob handles onboarding:reminders tasks.
type RemindersJob struct {
	Source  ReminderSource
	Mail    MailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// Handle queues one mail per due reminder.
func (j *RemindersJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Mail == nil {
		return errors.New("reminders: handler not configured")
	}
	var payload RemindersPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("reminders payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return fmt.Errorf("reminders as_of: %v: %w", err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	tracker := j.Metrics.Track(TaskOnboardingReminders)
	mails, err := j.Source.DueReminders(ctx, asOf)
	if err != nil {
		return tracker.End(fmt.Errorf("load reminders: %w", err))
	}
	for _, m := range mails {
		if err := j.Mail.EnqueueMail(ctx, m); err != nil {
			return tracker.End(fmt.Errorf("enqueue reminder: %w", err))
		}
	}
	logger(j.Logger).Info("onboarding reminders queued", slog.Int("count", len(mails)), slog.String("as_of", asOf.Format("2006-01-02")))
	return tracker.End(nil)
}

func (j *RemindersJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
