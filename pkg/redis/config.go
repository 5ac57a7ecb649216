package redis

import (
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config describes a Redis connection. When URL is set it supplies the
// address, credentials, database and TLS settings; otherwise Host and Port
// are required.
type Config struct {
	URL      string `env:"REDIS_URL"`      // e.g. "redis://:password@localhost:6379/0"
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS" envDefault:"false"`

	// Reconnects are handled by the go-redis pool.
	MaxRetries      int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	MinRetryBackoff time.Duration `env:"REDIS_MIN_RETRY_BACKOFF" envDefault:"8ms"`
	MaxRetryBackoff time.Duration `env:"REDIS_MAX_RETRY_BACKOFF" envDefault:"512ms"`
	PoolSize        int           `env:"REDIS_POOL_SIZE" envDefault:"0"`

	// Startup readiness, used by WaitReady and Connect.
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// connKey identifies configs that resolve to the same server and session.
type connKey struct {
	url      string
	host     string
	port     int
	username string
	password string
	db       int
	tls      bool
}

func (c Config) key() connKey {
	if c.URL != "" {
		return connKey{url: c.URL}
	}
	return connKey{
		host:     c.Host,
		port:     c.Port,
		username: c.Username,
		password: c.Password,
		db:       c.DB,
		tls:      c.TLS,
	}
}

// Options converts the config into go-redis client options.
// It returns ErrInvalidConfig when neither a URL nor host and port are set.
func (c Config) Options() (*redis.Options, error) {
	var opts *redis.Options
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, errors.Join(ErrFailedToParseRedisConnString, err)
		}
		opts = parsed
	} else {
		host := strings.TrimSpace(c.Host)
		if host == "" {
			return nil, errors.Join(ErrInvalidConfig, errMissingHost)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return nil, errors.Join(ErrInvalidConfig, errMissingPort)
		}
		opts = &redis.Options{
			Addr:     net.JoinHostPort(host, strconv.Itoa(c.Port)),
			Username: c.Username,
			Password: c.Password,
			DB:       c.DB,
		}
		if c.TLS {
			opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		}
	}

	if c.MaxRetries != 0 {
		opts.MaxRetries = c.MaxRetries
	}
	if c.MinRetryBackoff > 0 {
		opts.MinRetryBackoff = c.MinRetryBackoff
	}
	if c.MaxRetryBackoff > 0 {
		opts.MaxRetryBackoff = c.MaxRetryBackoff
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	return opts, nil
}
