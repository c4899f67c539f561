package runtime

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/model"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithDB(db *sql.DB) RuntimeBuilder
	WithModelRouter(router model.ModelRouter) RuntimeBuilder
	Build() (*RuntimeComponents, error)
}

type DefaultRuntimeBuilder struct {
	ctx    context.Context
	cfg    *config.Config
	db     *sql.DB
	router model.ModelRouter
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

// WithDB reuses an open pool instead of dialing store.dsn.
func (b *DefaultRuntimeBuilder) WithDB(db *sql.DB) RuntimeBuilder {
	b.db = db
	return b
}

// WithModelRouter skips provider construction from models.registry.
func (b *DefaultRuntimeBuilder) WithModelRouter(router model.ModelRouter) RuntimeBuilder {
	b.router = router
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*RuntimeComponents, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewRuntimeComponents(b.ctx, b.cfg, b.db, b.router)
}
