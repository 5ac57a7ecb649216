package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// healthcheckTimeout bounds a check whose context has no deadline.
const healthcheckTimeout = 2 * time.Second

// Healthcheck returns a readiness check that borrows a pooled connection and
// pings the server through it.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, healthcheckTimeout)
			defer cancel()
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		defer conn.Release()

		if err := conn.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
