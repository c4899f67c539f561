package components

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/harunnryd/autosend/internal/daemon"
	"github.com/harunnryd/autosend/internal/repository/postgres"
)

// DatabaseComponent owns an already opened pool: it migrates on Init and
// closes the pool on Stop.
type DatabaseComponent struct {
	db      *sql.DB
	migrate bool
}

func NewDatabaseComponent(db *sql.DB, migrate bool) *DatabaseComponent {
	return &DatabaseComponent{db: db, migrate: migrate}
}

func (c *DatabaseComponent) Name() string           { return "database" }
func (c *DatabaseComponent) Dependencies() []string { return nil }

func (c *DatabaseComponent) Init(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database pool not provided")
	}
	if !c.migrate {
		return nil
	}
	if err := postgres.Migrate(ctx, c.db); err != nil {
		return err
	}
	slog.Info("Database schema applied", "component", c.Name())
	return nil
}

func (c *DatabaseComponent) Start(ctx context.Context) error { return nil }

func (c *DatabaseComponent) Stop(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DatabaseComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.db == nil {
		return daemon.NewComponentHealth(c.Name(), fmt.Errorf("not initialized")), nil
	}
	return daemon.NewComponentHealth(c.Name(), c.db.PingContext(ctx)), nil
}
