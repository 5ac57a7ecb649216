package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		s       settings
		wantErr bool
	}{
		{name: "redis", s: settings{Worker: workerConfig{Backend: backendRedis}}},
		{name: "postgres without url", s: settings{Worker: workerConfig{Backend: backendPostgres}}, wantErr: true},
		{name: "unknown backend", s: settings{Worker: workerConfig{Backend: "sqs"}}, wantErr: true},
		{name: "negative retention", s: settings{Worker: workerConfig{Backend: backendRedis, Retention: -time.Hour}}, wantErr: true},
		{name: "retention without interval", s: settings{Worker: workerConfig{Backend: backendRedis, Retention: time.Hour}}, wantErr: true},
		{name: "retention", s: settings{Worker: workerConfig{Backend: backendRedis, Retention: time.Hour, CleanInterval: time.Minute}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.s.validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, queue.ErrConfiguration)
		})
	}

	t.Run("postgres with url", func(t *testing.T) {
		t.Parallel()
		s := settings{Worker: workerConfig{Backend: backendPostgres}}
		s.PG.ConnectionString = "postgres://localhost/queuekit"
		assert.NoError(t, s.validate())
	})
}

func TestSetupMaintenance(t *testing.T) {
	t.Parallel()

	newRuntime := func(t *testing.T) *queue.Runtime {
		t.Helper()
		rt, err := queue.NewRuntime(queue.StoreConnector(queue.NewMemoryStorage()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
		return rt
	}

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		sched, err := setupMaintenance(newRuntime(t), workerConfig{}, slog.Default())
		require.NoError(t, err)
		assert.Nil(t, sched)
	})

	t.Run("schedules clean job", func(t *testing.T) {
		t.Parallel()
		rt := newRuntime(t)
		w := workerConfig{MaintenanceQueue: "maintenance", Retention: time.Hour, CleanInterval: time.Minute}

		sched, err := setupMaintenance(rt, w, slog.Default())
		require.NoError(t, err)
		require.NotNil(t, sched)
		assert.Equal(t, []string{queue.CleanJobName}, sched.List())
		assert.Contains(t, rt.Bound(), "maintenance")
	})

	t.Run("skipped when another queue is selected", func(t *testing.T) {
		t.Parallel()
		rt := newRuntime(t)
		w := workerConfig{Queue: "mail-queue", MaintenanceQueue: "maintenance", Retention: time.Hour, CleanInterval: time.Minute}

		sched, err := setupMaintenance(rt, w, slog.Default())
		require.NoError(t, err)
		assert.Nil(t, sched)
		assert.NotContains(t, rt.Bound(), "maintenance")
	})

	t.Run("runs when the maintenance queue is selected", func(t *testing.T) {
		t.Parallel()
		rt := newRuntime(t)
		w := workerConfig{Queue: "maintenance", MaintenanceQueue: "maintenance", Retention: time.Hour, CleanInterval: time.Minute}

		sched, err := setupMaintenance(rt, w, slog.Default())
		require.NoError(t, err)
		assert.NotNil(t, sched)
	})
}
