package settings

import (
	"context"
	"fmt"

	"homeweather/internal/config"
	"homeweather/internal/db"
)

// ProbedStore is a Store that can also report its health.
type ProbedStore interface {
	Store
	Name() string
	Check(ctx context.Context) error
}

// Open opens the configured backend. The returned close func is always
// non-nil.
func Open(ctx context.Context, cfg config.StoreConfig) (ProbedStore, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL.Unmask(), cfg.MaxConns)
		if err != nil {
			return nil, func() {}, fmt.Errorf("opening settings database: %w", err)
		}
		repo := db.NewSettingsRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return repo, pool.Close, nil
	default:
		return NewFileStore(cfg.Path), func() {}, nil
	}
}
