package email

import (
	"context"
	"fmt"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, smtp SMTPConfig, opts MailOptions) (*SendResult, error)
}

// MailerFunc adapts a plain function to Mailer.
type MailerFunc func(ctx context.Context, smtp SMTPConfig, opts MailOptions) (*SendResult, error)

func (f MailerFunc) Send(ctx context.Context, smtp SMTPConfig, opts MailOptions) (*SendResult, error) {
	return f(ctx, smtp, opts)
}

// SendResult is recorded as the job result of a delivered message.
type SendResult struct {
	MessageID string `json:"messageId"`
}

// smtpRelay is implemented by mailers that relay through the SMTP server
// named in each job.
type smtpRelay interface {
	relaysSMTP() bool
}

func requiresSMTP(m Mailer) bool {
	r, ok := m.(smtpRelay)
	return ok && r.relaysSMTP()
}

// NewMailer builds the mailer selected by cfg.Transport.
func NewMailer(cfg Config) (Mailer, error) {
	switch cfg.Transport {
	case "", TransportSMTP:
		return NewSMTPMailer(cfg), nil
	case TransportPostmark:
		return NewPostmarkMailer(cfg)
	case TransportDev:
		return NewDevMailer(cfg.DevDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, cfg.Transport)
	}
}
