package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"log/slog"

	"github.com/dmitrymomot/queuekit/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDevelopment(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithDevelopment("svc"),
		logger.WithOutput(buf),
	)
	require.NotNil(t, log)
	log.Debug("msg")
	output := buf.String()
	assert.Contains(t, output, "DEBUG")
	assert.Contains(t, output, "service=svc")
}

func TestWithProduction(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithProduction("svc"),
		logger.WithOutput(buf),
	)
	require.NotNil(t, log)
	log.Info("msg")
	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)
	assert.Equal(t, "svc", entry["service"])
}

func TestEnvironmentOptions(t *testing.T) {
	dev := logger.New(logger.WithDevelopment("svc"))
	prod := logger.New(logger.WithProduction("svc"))
	require.NotNil(t, dev)
	require.NotNil(t, prod)
}

func TestWithExtractors(t *testing.T) {
	buf := &bytes.Buffer{}
	type key string
	k := key("id")
	extractor := func(ctx context.Context) (slog.Attr, bool) {
		if v := ctx.Value(k); v != nil {
			return slog.String("id", v.(string)), true
		}
		return slog.Attr{}, false
	}
	log := logger.New(
		logger.WithProduction("svc"),
		logger.WithOutput(buf),
		logger.WithContextExtractors(extractor),
	)
	ctx := context.WithValue(context.Background(), k, "123")
	log.InfoContext(ctx, "msg")
	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)
	assert.Equal(t, "123", entry["id"])
}

func TestFromConfig(t *testing.T) {
	t.Run("production defaults", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.FromConfig(logger.Config{Env: "production", Service: "worker"}),
			logger.WithOutput(buf),
		)
		log.Debug("hidden")
		log.Info("shown")
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "shown", entry["msg"])
		assert.Equal(t, "production", entry["env"])
		assert.Equal(t, "worker", entry["service"])
	})

	t.Run("level and format overrides", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.FromConfig(logger.Config{Env: "prod", Service: "worker", Level: "debug", Format: "text"}),
			logger.WithOutput(buf),
		)
		log.Debug("details")
		out := buf.String()
		assert.Contains(t, out, "level=DEBUG")
		assert.Contains(t, out, "msg=details")
	})

	t.Run("unknown level keeps default", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.FromConfig(logger.Config{Env: "staging", Service: "worker", Level: "loud"}),
			logger.WithOutput(buf),
		)
		log.Debug("hidden")
		assert.Empty(t, buf.String())
	})
}
