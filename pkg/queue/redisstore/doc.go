// Package redisstore keeps queue jobs in Redis.
//
// Every queue owns a family of keys under a shared hash tag:
//
//	<prefix>:{<queue>}:wait       sorted set, scored by priority then run time
//	<prefix>:{<queue>}:delayed    sorted set, scored by run time
//	<prefix>:{<queue>}:active     sorted set, scored by lock deadline
//	<prefix>:{<queue>}:completed  sorted set, scored by finish time
//	<prefix>:{<queue>}:failed     sorted set, scored by finish time
//	<prefix>:{<queue>}:id         counter for generated job IDs
//	<prefix>:{<queue>}:job:<id>   hash holding the job document
//
// Enqueue and Dequeue run as Lua scripts. Dequeue promotes due delayed jobs
// and recovers jobs whose lock expired before claiming, so a crashed worker's
// jobs return to waiting without a separate sweeper. Completion, failure and
// lock renewal are optimistic WATCH transactions that verify the caller's
// lock token.
//
// Usage:
//
//	provider := redis.NewProvider()
//	defer provider.Close()
//
//	rt, err := queue.NewRuntime(redisstore.Connector(provider, cfg.Redis))
//	if err != nil {
//		return err
//	}
//	defer rt.Shutdown(ctx)
package redisstore
