// Package postgres opens the PostgreSQL connection pool used by the contact store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"reconcile/internal/platform/config"
)

// Open connects with the configured driver ("pgx" or "postgres") and pings.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
