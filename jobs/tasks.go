package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries user-facing work such as mail.
	QueueCritical = "critical"

	// TaskSignalsPoll polls ATS boards for hiring signals.
	TaskSignalsPoll = "signals:poll"
	// TaskMailSend delivers a notification mail.
	TaskMailSend = "mail:send"
	// TaskOnboardingReminders mails owners of overdue checklist items.
	TaskOnboardingReminders = "onboarding:reminders"
	// TaskMaintenanceCleanup prunes expired idempotency keys.
	TaskMaintenanceCleanup = "maintenance:cleanup"
)

// SignalsPollPayload optionally narrows a poll to one company.
type SignalsPollPayload struct {
	CompanyID *int64 `json:"company_id,omitempty"`
}

// NewSignalsPollTask builds a signals:poll task.
func NewSignalsPollTask(companyID *int64) (*asynq.Task, error) {
	data, err := json.Marshal(SignalsPollPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSignalsPoll, data, asynq.Timeout(10*time.Minute)), nil
}

// MailPayload describes one outbound mail.
type MailPayload struct {
	Template string   `json:"template"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
}

// NewMailTask builds a mail:send task.
func NewMailTask(payload MailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMailSend, data, asynq.MaxRetry(5)), nil
}

// RemindersPayload sets the reference date of a reminder run.
type RemindersPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewRemindersTask builds an onboarding:reminders task. An empty asOf means today.
func NewRemindersTask(asOf string) (*asynq.Task, error) {
	data, err := json.Marshal(RemindersPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOnboardingReminders, data), nil
}

// CleanupPayload configures maintenance retention.
type CleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewCleanupTask builds a maintenance:cleanup task.
func NewCleanupTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaintenanceCleanup, data), nil
}
