package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect creates a client from cfg and waits until the server answers.
//
// Returns:
//   - *redis.Client: A connected Redis client if successful
//   - error: ErrInvalidConfig or ErrFailedToParseRedisConnString for a bad config,
//     ErrRedisNotReady if all ping attempts fail
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := WaitReady(ctx, client, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// WaitReady pings client up to cfg.RetryAttempts times, sleeping
// cfg.RetryInterval between attempts, within cfg.ConnectTimeout.
func WaitReady(ctx context.Context, client redis.UniversalClient, cfg Config) error {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for i := range attempts {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrRedisNotReady, ctx.Err())
		case <-timer.C:
		}
	}

	return errors.Join(ErrRedisNotReady, lastErr)
}
