package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/accountkit/internal/jobs"
	"github.com/odyssey-erp/accountkit/internal/mail"
	"github.com/odyssey-erp/accountkit/internal/reminders"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outgoing email.
	QueueMail = "mail"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskActivationReminders runs one activation reminder batch.
	TaskActivationReminders = "accounts:activation_reminders"

	mailMaxRetry = 5
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(mailMaxRetry)), nil
}

// MailJob delivers queued emails.
type MailJob struct {
	Sender  mail.Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskTypeSendEmail tasks. Malformed payloads and messages
// without recipient are not retried.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("mail job: sender not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("mail job: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	err := j.Sender.Send(ctx, mail.Message(payload))
	if errors.Is(err, mail.ErrNoRecipient) {
		j.Metrics.AddItems(TaskTypeSendEmail, jobmetrics.OutcomeSkipped, 1)
		return tracker.End(fmt.Errorf("mail job: %v: %w", err, asynq.SkipRetry))
	}
	if err != nil {
		j.logger().Warn("deliver email", slog.String("to", payload.To), slog.Any("error", err))
		j.Metrics.AddItems(TaskTypeSendEmail, jobmetrics.OutcomeFailed, 1)
		return tracker.End(err)
	}
	j.Metrics.AddItems(TaskTypeSendEmail, jobmetrics.OutcomeSent, 1)
	return tracker.End(nil)
}

func (j *MailJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// NewActivationRemindersTask builds the scheduled reminder batch task.
func NewActivationRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskActivationReminders, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// RemindersJob runs reminder batches from the asynq scheduler, as an
// alternative to the standalone reminders process.
type RemindersJob struct {
	Batch   *reminders.Batch
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskActivationReminders tasks.
func (j *RemindersJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Batch == nil {
		return errors.New("reminders job: batch not configured")
	}
	return reminders.RunJob(ctx, j.Logger, j.Metrics, reminders.JobName, j.Batch.Run)
}
