// Package mail sends notification email over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"xixu.io/notifier/internal/notification"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Secure uses implicit TLS (SMTPS). Otherwise STARTTLS is used when the
	// server offers it.
	Secure  bool
	Timeout time.Duration
}

// SMTPTransport implements notification.MailTransport. Each send opens its
// own connection so concurrent deliveries do not share SMTP state.
type SMTPTransport struct {
	cfg Config
}

// NewSMTPTransport validates cfg and returns a transport.
func NewSMTPTransport(cfg Config) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &SMTPTransport{cfg: cfg}, nil
}

func (t *SMTPTransport) client() (*gomail.Client, error) {
	opts := []gomail.Option{gomail.WithPort(t.cfg.Port)}
	if t.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(t.cfg.Timeout))
	}
	if t.cfg.Secure {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.cfg.Username),
			gomail.WithPassword(t.cfg.Password),
		)
	}
	return gomail.NewClient(t.cfg.Host, opts...)
}

// VerifyConnection dials and authenticates without sending.
func (t *SMTPTransport) VerifyConnection(ctx context.Context) error {
	c, err := t.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp dial %s:%d: %w", t.cfg.Host, t.cfg.Port, err)
	}
	return c.Close()
}

// Send delivers env as a multipart message with plain-text and HTML parts.
func (t *SMTPTransport) Send(ctx context.Context, env notification.Envelope) error {
	msg, err := buildMessage(env)
	if err != nil {
		return err
	}
	c, err := t.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", env.To, err)
	}
	return nil
}

func buildMessage(env notification.Envelope) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(env.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", env.From, err)
	}
	if err := msg.To(env.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", env.To, err)
	}
	msg.Subject(env.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, env.Text)
	msg.AddAlternativeString(gomail.TypeTextHTML, env.HTML)
	return msg, nil
}

var _ notification.MailTransport = (*SMTPTransport)(nil)
