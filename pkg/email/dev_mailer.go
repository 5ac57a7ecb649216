package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevMailer implements Mailer for local development.
// It saves each message as an HTML (or text) file plus a JSON metadata file
// instead of sending it.
type DevMailer struct {
	dir string
	now func() time.Time
}

// NewDevMailer creates a development mailer that writes to dir.
// The directory is created on first send.
func NewDevMailer(dir string) *DevMailer {
	return &DevMailer{dir: dir, now: time.Now}
}

// devMetadata is the JSON companion of a saved message.
type devMetadata struct {
	MessageID string   `json:"message_id"`
	Timestamp string   `json:"timestamp"`
	From      string   `json:"from,omitempty"`
	To        []string `json:"to"`
	Cc        []string `json:"cc,omitempty"`
	Bcc       []string `json:"bcc,omitempty"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	Subject   string   `json:"subject"`
	Tag       string   `json:"tag,omitempty"`
	SMTPHost  string   `json:"smtp_host,omitempty"`
}

// Send implements Mailer.
func (d *DevMailer) Send(_ context.Context, smtp SMTPConfig, opts MailOptions) (*SendResult, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	messageID := fmt.Sprintf("<%s@dev.queuekit>", uuid.NewString())

	identifier := opts.Tag
	if identifier == "" {
		identifier = opts.Subject
	}
	base := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405.000"), sanitizeFilename(identifier))

	body, ext := opts.HTML, ".html"
	if body == "" {
		body, ext = opts.Text, ".txt"
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+ext), []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to write body file: %v", ErrFailedToSendEmail, err)
	}

	meta, err := json.MarshalIndent(devMetadata{
		MessageID: messageID,
		Timestamp: now.Format(time.RFC3339),
		From:      opts.From,
		To:        opts.To,
		Cc:        opts.Cc,
		Bcc:       opts.Bcc,
		ReplyTo:   opts.ReplyTo,
		Subject:   opts.Subject,
		Tag:       opts.Tag,
		SMTPHost:  smtp.Host,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal metadata: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to write metadata file: %v", ErrFailedToSendEmail, err)
	}

	return &SendResult{MessageID: messageID}, nil
}

// sanitizeRegex matches characters that are not alphanumeric, dash, underscore, or dot
var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename converts a string into a safe, lowercase filename.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
