package pgstore

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/queuekit/pkg/pg"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the goose migrations creating the jobs table.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrate brings the jobs table up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	return pg.Migrate(ctx, pool, Migrations(), cfg, log)
}

// Connector returns a queue.ConnectFunc that opens a pool, migrates the
// schema and hands out a store owning the pool.
func Connector(cfg pg.Config, log *slog.Logger) queue.ConnectFunc {
	return func(ctx context.Context) (queue.Store, error) {
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			if errors.Is(err, pg.ErrEmptyConnectionString) || errors.Is(err, pg.ErrFailedToParseDBConfig) {
				return nil, &queue.ConfigurationError{Field: "postgres", Reason: "connection settings are invalid", Err: err}
			}
			return nil, err
		}

		if err := Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, err
		}

		return New(pool, WithOwnedPool()), nil
	}
}
