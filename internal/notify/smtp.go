package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"classattend/internal/logger"
)

// Credentials is one way of authenticating against the SMTP server.
type Credentials struct {
	Name     string
	Username string
	Password string
}

// Strategies returns the credential strategies tried in order: the configured
// username and password, then the password as both (API-key style relays).
func Strategies(username, password string) []Credentials {
	out := []Credentials{{Name: "standard", Username: username, Password: password}}
	if password != "" && username != password {
		out = append(out, Credentials{Name: "api-key", Username: password, Password: password})
	}
	return out
}

// SMTP delivers mail over implicit TLS on port 465 and STARTTLS elsewhere.
type SMTP struct {
	Host       string
	Port       int
	From       string
	Strategies []Credentials
	Timeout    time.Duration
	Log        logger.Logger
	// TLSConfig overrides the client TLS settings; nil uses ServerName = Host.
	TLSConfig *tls.Config
}

// NewSMTP configures an SMTP transport with the default strategies.
func NewSMTP(host string, port int, username, password, from string, timeout time.Duration, log logger.Logger) *SMTP {
	return &SMTP{
		Host:       host,
		Port:       port,
		From:       from,
		Strategies: Strategies(username, password),
		Timeout:    timeout,
		Log:        log,
	}
}

// ErrAuth is returned when every credential strategy was rejected.
var ErrAuth = errors.New("smtp authentication failed")

// Send implements Sender.
func (s *SMTP) Send(ctx context.Context, n Notification) error {
	msg, err := Compose(s.From, n)
	if err != nil {
		return err
	}
	data, err := encodeMIME(msg)
	if err != nil {
		return err
	}
	if len(s.Strategies) == 0 {
		return fmt.Errorf("%w: no credentials configured", ErrAuth)
	}

	var authErrs []error
	for _, cred := range s.Strategies {
		err := s.deliver(ctx, cred, msg, data)
		if err == nil {
			s.Log.Info("email sent to %s (%s, %s)", msg.To, n.RollNo, n.Status)
			return nil
		}
		if !isAuthError(err) {
			return err
		}
		s.Log.Warn("smtp %s authentication rejected: %v", cred.Name, err)
		authErrs = append(authErrs, err)
	}
	return fmt.Errorf("%w: %w", ErrAuth, errors.Join(authErrs...))
}

func isAuthError(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && (tpErr.Code == 535 || tpErr.Code == 534)
}

func (s *SMTP) tlsConfig() *tls.Config {
	if s.TLSConfig != nil {
		return s.TLSConfig
	}
	return &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}
}

// deliver runs one complete session. A rejected AUTH closes the connection,
// so every strategy gets a fresh one.
func (s *SMTP) deliver(ctx context.Context, cred Credentials, msg Message, data []byte) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	dialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if s.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsConfig()}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if s.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tlsConfig()); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if cred.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", cred.Username, cred.Password, s.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(senderAddress(msg.From)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end body: %w", err)
	}
	return c.Quit()
}

// senderAddress strips a display name: "Attendance <a@b>" -> "a@b".
func senderAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return strings.TrimSpace(from)
}

func encodeMIME(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", msg.From)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	for _, part := range []struct{ typ, body string }{{"text/plain", msg.Text}, {"text/html", msg.HTML}} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.typ + "; charset=utf-8"},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, fmt.Errorf("mime part: %w", err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("mime close: %w", err)
	}
	return buf.Bytes(), nil
}
