// Package postgres stores leads, campaigns, messages and drafts, and answers
// the questions the send pipeline asks about them.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/harunnryd/autosend/internal/config"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Open connects with the pool settings from cfg and pings once.
func Open(ctx context.Context, cfg config.StoreConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required for the postgres driver")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	lifetime, err := config.DurationOrDefault(cfg.ConnMaxLifetime, config.DefaultStoreConnMaxLifetime)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid store.conn_max_lifetime: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
