package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPMailer relays messages through the SMTP server given in each job.
type SMTPMailer struct {
	defaultFrom string
	timeout     time.Duration
}

// NewSMTPMailer creates an SMTP mailer. cfg.DefaultFrom is used for messages
// without a From address.
func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{defaultFrom: cfg.DefaultFrom, timeout: cfg.SMTPTimeout}
}

func (m *SMTPMailer) relaysSMTP() bool { return true }

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, smtp SMTPConfig, opts MailOptions) (*SendResult, error) {
	if smtp.Host == "" {
		return nil, fmt.Errorf("%w: smtp host is required", ErrInvalidConfig)
	}

	msg, err := buildMessage(opts, m.defaultFrom)
	if err != nil {
		return nil, err
	}

	client, err := mail.NewClient(smtp.Host, clientOptions(smtp, m.timeout)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, errors.Join(ErrFailedToSendEmail, err)
	}

	return &SendResult{MessageID: msg.GetMessageID()}, nil
}

func clientOptions(smtp SMTPConfig, timeout time.Duration) []mail.Option {
	var opts []mail.Option
	if smtp.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if smtp.Port > 0 {
		opts = append(opts, mail.WithPort(smtp.Port))
	}
	if smtp.Auth != nil && smtp.Auth.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Auth.User),
			mail.WithPassword(smtp.Auth.Pass),
		)
	}
	if timeout > 0 {
		opts = append(opts, mail.WithTimeout(timeout))
	}
	return opts
}

// buildMessage converts mail options into a go-mail message with a
// generated Message-ID.
func buildMessage(opts MailOptions, defaultFrom string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	from := opts.From
	if from == "" {
		from = defaultFrom
	}
	if from == "" {
		return nil, fmt.Errorf("%w: from address is required", ErrInvalidPayload)
	}
	if err := msg.From(from); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if err := msg.To(opts.To...); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if len(opts.Cc) > 0 {
		if err := msg.Cc(opts.Cc...); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
	}
	if len(opts.Bcc) > 0 {
		if err := msg.Bcc(opts.Bcc...); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
	}
	if opts.ReplyTo != "" {
		if err := msg.ReplyTo(opts.ReplyTo); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
	}
	for k, v := range opts.Headers {
		msg.SetGenHeader(mail.Header(k), v)
	}

	msg.Subject(opts.Subject)
	switch {
	case opts.Text != "" && opts.HTML != "":
		msg.SetBodyString(mail.TypeTextPlain, opts.Text)
		msg.AddAlternativeString(mail.TypeTextHTML, opts.HTML)
	case opts.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, opts.HTML)
	default:
		msg.SetBodyString(mail.TypeTextPlain, opts.Text)
	}
	msg.SetMessageID()

	return msg, nil
}
