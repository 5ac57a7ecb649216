package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkMailer delivers messages through Postmark's transactional API.
// The SMTP config of a job is ignored.
type PostmarkMailer struct {
	client      *postmark.Client
	defaultFrom string
}

// NewPostmarkMailer creates a Postmark-backed mailer.
// Both tokens and a default sender are required so a misconfigured worker
// fails at startup rather than on the first job.
func NewPostmarkMailer(cfg Config) (*PostmarkMailer, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if cfg.DefaultFrom == "" {
		return nil, fmt.Errorf("%w: DefaultFrom is required", ErrInvalidConfig)
	}

	return &PostmarkMailer{
		client:      postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		defaultFrom: cfg.DefaultFrom,
	}, nil
}

// MustNewPostmarkMailer creates a Postmark mailer that panics on invalid config.
func MustNewPostmarkMailer(cfg Config) *PostmarkMailer {
	m, err := NewPostmarkMailer(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Send implements Mailer. Open tracking is enabled, link tracking only for HTML.
func (m *PostmarkMailer) Send(ctx context.Context, _ SMTPConfig, opts MailOptions) (*SendResult, error) {
	from := opts.From
	if from == "" {
		from = m.defaultFrom
	}

	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:       from,
		To:         opts.To.String(),
		Cc:         opts.Cc.String(),
		Bcc:        opts.Bcc.String(),
		ReplyTo:    opts.ReplyTo,
		Subject:    opts.Subject,
		Tag:        opts.Tag,
		HTMLBody:   opts.HTML,
		TextBody:   opts.Text,
		Headers:    postmarkHeaders(opts.Headers),
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return nil, errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return &SendResult{MessageID: resp.MessageID}, nil
}

func postmarkHeaders(h map[string]string) []postmark.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]postmark.Header, 0, len(h))
	for name, value := range h {
		out = append(out, postmark.Header{Name: name, Value: value})
	}
	return out
}
