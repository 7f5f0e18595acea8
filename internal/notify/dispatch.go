package notify

import (
	"context"
	"fmt"
	"strings"

	"classattend/internal/config"
	"classattend/internal/logger"
	"classattend/internal/queue"
)

// Log records notifications instead of sending them. Used when email is disabled.
type Log struct {
	log logger.Logger
}

// NewLog creates a logging sender.
func NewLog(log logger.Logger) *Log { return &Log{log: log} }

// Send implements Sender.
func (l *Log) Send(_ context.Context, n Notification) error {
	if strings.TrimSpace(n.To) == "" {
		return ErrNoRecipient
	}
	l.log.Info("email disabled, would send to %s: %s for %s on %s %s", n.To, n.Status, n.SubjectName, n.Date, n.Period)
	return nil
}

// Queued hands notifications to the job queue for the worker to deliver.
type Queued struct {
	q queue.Queue
}

// NewQueued creates a queue-backed sender.
func NewQueued(q queue.Queue) *Queued { return &Queued{q: q} }

// Send implements Sender. It only enqueues; delivery errors surface in the worker.
func (s *Queued) Send(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.To) == "" {
		return ErrNoRecipient
	}
	msg, err := queue.NewMessage(queue.TypeNotify, n)
	if err != nil {
		return err
	}
	if err := s.q.Publish(ctx, msg); err != nil {
		return fmt.Errorf("enqueue notification for %s: %w", n.RollNo, err)
	}
	return nil
}

// Decode reads a notify job body.
func Decode(msg queue.Message) (Notification, error) {
	var n Notification
	err := msg.Decode(&n)
	return n, err
}

// FromConfig picks the delivery transport: a Log sender when email is disabled
// or has no credentials, SendGrid when selected, SMTP otherwise.
func FromConfig(cfg config.Email, log logger.Logger) Sender {
	if !cfg.Enabled {
		return NewLog(log)
	}
	switch strings.ToLower(cfg.Transport) {
	case "log":
		return NewLog(log)
	case "sendgrid":
		if cfg.SendgridAPIKey == "" {
			log.Warn("EMAIL_TRANSPORT=sendgrid without SENDGRID_API_KEY, notifications are logged only")
			return NewLog(log)
		}
		return NewSendGrid(cfg.SendgridAPIKey, "Attendance", senderAddress(cfg.From), log)
	default:
		if cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
			log.Error("SMTP credentials not configured, notifications are logged only")
			return NewLog(log)
		}
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.From, cfg.Timeout, log)
	}
}
