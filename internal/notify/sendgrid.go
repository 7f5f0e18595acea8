package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"classattend/internal/logger"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGrid delivers mail through the SendGrid v3 API.
type SendGrid struct {
	key  string
	host string
	from *sgmail.Email
	log  logger.Logger
}

// NewSendGrid creates a SendGrid transport sending as fromName <fromAddr>.
func NewSendGrid(key, fromName, fromAddr string, log logger.Logger) *SendGrid {
	return &SendGrid{
		key:  key,
		host: sendgridHost,
		from: sgmail.NewEmail(fromName, fromAddr),
		log:  log,
	}
}

func (svc *SendGrid) prepare(msg Message, name string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(name, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

// Send implements Sender.
func (svc *SendGrid) Send(ctx context.Context, n Notification) error {
	msg, err := Compose(svc.from.Address, n)
	if err != nil {
		return err
	}
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg, n.StudentName))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	svc.log.Info("email sent to %s via sendgrid (%s, %s)", msg.To, n.RollNo, n.Status)
	return nil
}
