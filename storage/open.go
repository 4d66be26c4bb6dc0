// Package storage opens basket repository selected by configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/storage/gormstore"
	"github.com/delicb/toy-basket/storage/postgres"
)

// Open returns repository for cfg.Driver and function releasing resources it holds.
func Open(ctx context.Context, cfg *config.StoreConfig, zl *zap.Logger) (basket.Repository, func() error, error) {
	if zl == nil {
		zl = zap.NewNop()
	}
	log := zl.Named("store").With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "memory":
		log.Warn("baskets are kept in memory and will be lost on exit")
		return basket.NewInMemoryRepository(), func() error { return nil }, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool, cfg.QueryTimeout, log)
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		log.Info("store opened")
		return store, func() error { pool.Close(); return nil }, nil

	case "mysql", "sqlite":
		db, err := gormstore.Open(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store := gormstore.New(db, cfg.QueryTimeout, log)
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				_ = sqlDB.Close()
				return nil, nil, err
			}
		}
		log.Info("store opened")
		return store, sqlDB.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}
