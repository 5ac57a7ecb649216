package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/config"
)

type workerDefaults struct {
	Queue       string        `env:"CFGTEST_WORKER_QUEUE" envDefault:"mail-queue"`
	Concurrency int           `env:"CFGTEST_WORKER_CONCURRENCY" envDefault:"5"`
	Timeout     time.Duration `env:"CFGTEST_WORKER_TIMEOUT" envDefault:"30s"`
}

type workerEnv struct {
	Queue       string `env:"CFGTEST_ENV_QUEUE" envDefault:"mail-queue"`
	Concurrency int    `env:"CFGTEST_ENV_CONCURRENCY" envDefault:"5"`
	Verbose     bool   `env:"CFGTEST_ENV_VERBOSE"`
}

type cachedConfig struct {
	Host string `env:"CFGTEST_CACHED_HOST" envDefault:"localhost"`
}

type redisEndpoint struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port int    `env:"PORT" envDefault:"6379"`
}

type requiredConfig struct {
	URL string `env:"CFGTEST_REQUIRED_URL,required"`
}

type fileConfig struct {
	From string `env:"CFGTEST_FILE_FROM"`
	Tag  string `env:"CFGTEST_FILE_TAG"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg workerDefaults
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "mail-queue", cfg.Queue)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CFGTEST_ENV_QUEUE", "reports")
	t.Setenv("CFGTEST_ENV_CONCURRENCY", "12")
	t.Setenv("CFGTEST_ENV_VERBOSE", "true")

	var cfg workerEnv
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "reports", cfg.Queue)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.True(t, cfg.Verbose)
}

func TestLoad_Cached(t *testing.T) {
	t.Setenv("CFGTEST_CACHED_HOST", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CFGTEST_CACHED_HOST", "second")

	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Host, "second load should be served from the cache")

	config.ResetCache()

	var third cachedConfig
	require.NoError(t, config.Load(&third))
	assert.Equal(t, "second", third.Host)
}

func TestLoad_Prefix(t *testing.T) {
	t.Setenv("CFGTEST_MAIL_HOST", "mail.internal")
	t.Setenv("CFGTEST_MAIL_PORT", "6380")
	t.Setenv("CFGTEST_JOBS_HOST", "jobs.internal")

	var mail, jobs redisEndpoint
	require.NoError(t, config.Load(&mail, config.WithPrefix("CFGTEST_MAIL_")))
	require.NoError(t, config.Load(&jobs, config.WithPrefix("CFGTEST_JOBS_")))

	assert.Equal(t, redisEndpoint{Host: "mail.internal", Port: 6380}, mail)
	assert.Equal(t, redisEndpoint{Host: "jobs.internal", Port: 6379}, jobs)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("CFGTEST_REQUIRED_URL")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	t.Run("failure is not cached", func(t *testing.T) {
		t.Setenv("CFGTEST_REQUIRED_URL", "redis://localhost:6379")

		var cfg requiredConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "redis://localhost:6379", cfg.URL)
	})
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *workerDefaults
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestMustLoad(t *testing.T) {
	os.Unsetenv("CFGTEST_REQUIRED_URL")
	config.ResetCache()

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	override := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("CFGTEST_FILE_FROM=noreply@example.com\nCFGTEST_FILE_TAG=base\n"), 0o600))
	require.NoError(t, os.WriteFile(override, []byte("CFGTEST_FILE_TAG=local\n"), 0o600))

	t.Cleanup(func() {
		os.Unsetenv("CFGTEST_FILE_FROM")
		os.Unsetenv("CFGTEST_FILE_TAG")
	})

	require.NoError(t, config.LoadEnv(base, override))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "noreply@example.com", cfg.From)
	assert.Equal(t, "base", cfg.Tag, "the first file wins")

	t.Run("missing file", func(t *testing.T) {
		err := config.LoadEnv(filepath.Join(dir, "missing.env"))
		assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
		assert.Panics(t, func() { config.MustLoadEnv(filepath.Join(dir, "missing.env")) })
	})
}
