// Package redis provides the Redis connection layer of queuekit.
//
// The package wraps the go-redis client and adds:
//
//   - Provider, which hands out one client per distinct Config. Clients
//     connect lazily and reconnect through the go-redis pool, so
//     GetConnection never blocks on the network.
//   - WaitReady and Connect, which ping with retries during process startup.
//   - Healthcheck for readiness probes.
//   - Storage, a namespaced key-value wrapper used for deduplication records.
//
// Configuration is described by the Config struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	provider := redis.NewProvider()
//	defer provider.Close()
//
//	client, err := provider.GetConnection(redis.Config{Host: "localhost", Port: 6379})
//	if err != nil {
//	    // invalid configuration
//	}
//
//	if err := redis.WaitReady(ctx, client, cfg); err != nil {
//	    // redis is not reachable
//	}
//
//	store := redis.NewStorage(client, "mail:sent:")
//	stored, err := store.SetNX(ctx, "call-123", []byte("msg-id"), 24*time.Hour)
//
// # Errors
//
// The package defines sentinel errors (ErrInvalidConfig, ErrRedisNotReady,
// ErrHealthcheckFailed) joined with the underlying go-redis error using
// errors.Join, so callers compare with errors.Is.
package redis
