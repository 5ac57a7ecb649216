// Package pg opens PostgreSQL connection pools with pgx/v5 and applies goose
// migrations from an fs.FS.
//
// Connect parses Config, opens a *pgxpool.Pool and pings it, retrying with a
// linearly growing wait. Migrate runs the migrations of an embedded
// filesystem through pgx's database/sql bridge. Healthcheck returns a probe
// for readiness endpoints.
//
// Usage:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations, cfg, slog.Default()); err != nil {
//		return err
//	}
//
// IsNotFoundError reports pgx.ErrNoRows, including wrapped.
package pg
