package redisstore

import (
	"context"
	"errors"

	"github.com/dmitrymomot/queuekit/pkg/queue"
	"github.com/dmitrymomot/queuekit/pkg/redis"
)

// Connector returns a queue.ConnectFunc that takes its client from the
// provider and waits until Redis answers before handing out the store.
// Runtimes sharing a provider and config share one client.
func Connector(p *redis.Provider, cfg redis.Config, opts ...Option) queue.ConnectFunc {
	return func(ctx context.Context) (queue.Store, error) {
		client, err := p.GetConnection(cfg)
		if err != nil {
			if errors.Is(err, redis.ErrInvalidConfig) || errors.Is(err, redis.ErrFailedToParseRedisConnString) {
				return nil, &queue.ConfigurationError{Field: "redis", Reason: "connection settings are invalid", Err: err}
			}
			return nil, err
		}

		if err := redis.WaitReady(ctx, client, cfg); err != nil {
			return nil, err
		}

		return New(client, opts...), nil
	}
}
