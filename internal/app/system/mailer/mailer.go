// internal/app/system/mailer/mailer.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Email is one outgoing message. HTMLBody is optional.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers an Email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
	// TLS is "mandatory" (default), "opportunistic" or "none".
	TLS     string
	Timeout time.Duration
}

// ErrNotConfigured is returned by Send when no SMTP host is set.
var ErrNotConfigured = errors.New("mailer: smtp host not configured")

// Mailer sends e-mail over SMTP.
type Mailer struct {
	cfg Config
}

// New returns a Mailer. A zero Host yields a Mailer whose Send always
// fails with ErrNotConfigured.
func New(cfg Config) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Mailer{cfg: cfg}
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

func (m *Mailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(m.cfg.TLS)),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.User),
			mail.WithPassword(m.cfg.Pass),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

func (m *Mailer) message(e Email) (*mail.Msg, error) {
	msg := mail.NewMsg()

	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}
	if m.cfg.FromName != "" {
		if err := msg.FromFormat(m.cfg.FromName, from); err != nil {
			return nil, fmt.Errorf("from address: %w", err)
		}
	} else if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.TextBody)
	if e.HTMLBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, e.HTMLBody)
	}
	return msg, nil
}

// Send implements Sender.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	msg, err := m.message(e)
	if err != nil {
		return err
	}
	c, err := m.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
