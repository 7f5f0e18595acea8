// Package notify builds attendance emails and delivers them through SMTP,
// SendGrid or the job queue.
package notify

import (
	"context"
	"errors"

	"classattend/internal/metrics"
)

// Notification is one attendance event addressed to a student.
type Notification struct {
	To          string `json:"to"`
	StudentName string `json:"student_name"`
	RollNo      string `json:"roll_no"`
	SubjectName string `json:"subject_name"`
	Date        string `json:"date"`
	Period      string `json:"period"`
	Status      string `json:"status"`
}

// Sender delivers a notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// ErrNoRecipient is returned when a notification has no address.
var ErrNoRecipient = errors.New("notification has no recipient")

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n Notification) error

func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// Instrumented counts every delivery s attempts.
func Instrumented(s Sender) Sender {
	return SenderFunc(func(ctx context.Context, n Notification) error {
		err := s.Send(ctx, n)
		result := metrics.ResultOK
		switch {
		case errors.Is(err, ErrNoRecipient):
			result = metrics.ResultSkipped
		case err != nil:
			result = metrics.ResultFailed
		}
		metrics.Deliveries.WithLabelValues(result).Inc()
		return err
	})
}
