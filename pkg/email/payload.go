package email

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dmitrymomot/queuekit/pkg/validator"
)

// AddressList is a list of addresses that also accepts a single string or a
// comma separated string in JSON.
type AddressList []string

func (a *AddressList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = splitAddresses(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*a = AddressList(list)
	return nil
}

// String joins the list the way mail headers expect.
func (a AddressList) String() string {
	return strings.Join(a, ", ")
}

func splitAddresses(s string) AddressList {
	var out AddressList
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MailOptions describes one message.
type MailOptions struct {
	From    string            `json:"from,omitempty"`
	To      AddressList       `json:"to"`
	Cc      AddressList       `json:"cc,omitempty"`
	Bcc     AddressList       `json:"bcc,omitempty"`
	ReplyTo string            `json:"replyTo,omitempty"`
	Subject string            `json:"subject,omitempty"`
	Text    string            `json:"text,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Tag     string            `json:"tag,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Recipients returns every To, Cc and Bcc address.
func (o MailOptions) Recipients() []string {
	out := make([]string, 0, len(o.To)+len(o.Cc)+len(o.Bcc))
	out = append(out, o.To...)
	out = append(out, o.Cc...)
	return append(out, o.Bcc...)
}

// SMTPAuth holds SMTP credentials.
type SMTPAuth struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// SMTPConfig describes the server a message is relayed through.
// Secure selects implicit TLS; otherwise STARTTLS is used when offered.
type SMTPConfig struct {
	Host   string    `json:"host"`
	Port   int       `json:"port,omitempty"`
	Secure bool      `json:"secure,omitempty"`
	Auth   *SMTPAuth `json:"auth,omitempty"`
}

// Payload is the payload of a send-email job.
type Payload struct {
	MailOptions *MailOptions `json:"mailOptions"`
	SMTPConfig  SMTPConfig   `json:"smtpConfig"`
	CallID      string       `json:"callId,omitempty"`
}

// Validate checks the payload before anything is sent. requireSMTP demands
// a relay host, which only the SMTP transport needs.
func (p Payload) Validate(requireSMTP bool) error {
	if p.MailOptions == nil {
		return errors.Join(ErrInvalidPayload, validator.ValidationErrors{
			{Field: "mailOptions", Message: "field is required"},
		})
	}
	o := p.MailOptions

	err := validator.Apply(
		validator.RequiredSlice("mailOptions.to", o.To),
		validator.ValidEmails("mailOptions.to", o.To),
		validator.ValidEmails("mailOptions.cc", o.Cc),
		validator.ValidEmails("mailOptions.bcc", o.Bcc),
		validator.When(o.From != "", validator.ValidEmail("mailOptions.from", o.From)),
		validator.When(o.ReplyTo != "", validator.ValidEmail("mailOptions.replyTo", o.ReplyTo)),
		validator.MaxLen("mailOptions.subject", o.Subject, 998),
		validator.When(requireSMTP, validator.Required("smtpConfig.host", p.SMTPConfig.Host)),
		validator.Range("smtpConfig.port", p.SMTPConfig.Port, 0, 65535),
		validator.MaxLen("callId", p.CallID, 256),
	)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	return nil
}
