package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/email"
)

func TestNewMailer(t *testing.T) {
	t.Parallel()

	m, err := email.NewMailer(email.Config{})
	require.NoError(t, err)
	assert.IsType(t, &email.SMTPMailer{}, m)

	m, err = email.NewMailer(email.Config{Transport: email.TransportDev, DevDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &email.DevMailer{}, m)

	m, err = email.NewMailer(email.Config{
		Transport:            email.TransportPostmark,
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		DefaultFrom:          "noreply@example.com",
	})
	require.NoError(t, err)
	assert.IsType(t, &email.PostmarkMailer{}, m)

	_, err = email.NewMailer(email.Config{Transport: "pigeon"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestNewPostmarkMailer_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config email.Config
		errMsg string
	}{
		{
			name:   "empty server token",
			config: email.Config{PostmarkAccountToken: "a", DefaultFrom: "noreply@example.com"},
			errMsg: "PostmarkServerToken is required",
		},
		{
			name:   "empty account token",
			config: email.Config{PostmarkServerToken: "s", DefaultFrom: "noreply@example.com"},
			errMsg: "PostmarkAccountToken is required",
		},
		{
			name:   "missing sender",
			config: email.Config{PostmarkServerToken: "s", PostmarkAccountToken: "a"},
			errMsg: "DefaultFrom is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := email.NewPostmarkMailer(tt.config)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Panics(t, func() { email.MustNewPostmarkMailer(tt.config) })
		})
	}
}

func TestDevMailer_Send(t *testing.T) {
	t.Parallel()

	t.Run("writes html and metadata", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		m := email.NewDevMailer(dir)

		res, err := m.Send(context.Background(), email.SMTPConfig{Host: "smtp.x"}, email.MailOptions{
			To:      email.AddressList{"user@example.com"},
			Subject: "Welcome Aboard!",
			HTML:    "<p>Hello</p>",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, res.MessageID)

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, files, 2)

		var htmlFile, jsonFile string
		for _, f := range files {
			switch filepath.Ext(f.Name()) {
			case ".html":
				htmlFile = f.Name()
			case ".json":
				jsonFile = f.Name()
			}
		}
		assert.True(t, strings.HasSuffix(htmlFile, "welcome_aboard.html"), htmlFile)

		body, err := os.ReadFile(filepath.Join(dir, htmlFile))
		require.NoError(t, err)
		assert.Equal(t, "<p>Hello</p>", string(body))

		raw, err := os.ReadFile(filepath.Join(dir, jsonFile))
		require.NoError(t, err)
		var meta map[string]any
		require.NoError(t, json.Unmarshal(raw, &meta))
		assert.Equal(t, res.MessageID, meta["message_id"])
		assert.Equal(t, "smtp.x", meta["smtp_host"])
	})

	t.Run("text body without subject", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		_, err := email.NewDevMailer(dir).Send(context.Background(), email.SMTPConfig{}, email.MailOptions{
			To:   email.AddressList{"user@example.com"},
			Text: "plain",
		})
		require.NoError(t, err)

		matches, err := filepath.Glob(filepath.Join(dir, "*_email.txt"))
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}

func TestSMTPMailer_Send(t *testing.T) {
	t.Parallel()

	m := email.NewSMTPMailer(email.Config{DefaultFrom: "noreply@example.com", SMTPTimeout: time.Second})
	opts := email.MailOptions{To: email.AddressList{"user@example.com"}, Subject: "Hi", Text: "hello"}

	t.Run("missing host", func(t *testing.T) {
		t.Parallel()
		_, err := m.Send(context.Background(), email.SMTPConfig{}, opts)
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})

	t.Run("missing sender", func(t *testing.T) {
		t.Parallel()
		_, err := email.NewSMTPMailer(email.Config{}).Send(context.Background(), email.SMTPConfig{Host: "127.0.0.1", Port: 1}, opts)
		assert.ErrorIs(t, err, email.ErrInvalidPayload)
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := m.Send(ctx, email.SMTPConfig{Host: "127.0.0.1", Port: 1}, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
	})
}
