// Package gormstore keeps baskets in MySQL or SQLite through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/cqrs"
	"github.com/delicb/toy-basket/logger"
)

const defaultQueryTimeout = time.Second

// Open connects to database selected by cfg.Driver ("mysql" or "sqlite").
func Open(cfg *config.StoreConfig, zl *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("gormstore does not support driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(zl, cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// sqlite has single writer anyway, and in-memory databases exist per connection
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Store is basket repository on top of gorm.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
	logger  *zap.Logger
}

// New returns Store using provided database. Zero timeout means default of one second.
func New(db *gorm.DB, timeout time.Duration, zl *zap.Logger) *Store {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Store{db: db, timeout: timeout, logger: zl}
}

// Migrate creates or updates tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&BasketPO{}, &BasketItemPO{}); err != nil {
		return cqrs.StorageErr("migrate", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*basket.Basket, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var po BasketPO
	if err := db.First(&po, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, cqrs.StorageErr("load", err)
	}

	var items []BasketItemPO
	if err := db.Where("basket_id = ?", id).Order("position").Find(&items).Error; err != nil {
		return nil, false, cqrs.StorageErr("load", err)
	}

	b := basket.Rebuild(toSnapshot(po, items))
	b.SetVersion(po.Version)
	s.logger.Debug("basket loaded", zap.String("basket_id", id), zap.Int("version", po.Version))
	return b, true, nil
}

func (s *Store) Save(ctx context.Context, b *basket.Basket) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, version := b.GetID(), b.GetVersion()
	items := itemsFromSnapshot(b.Snapshot())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res *gorm.DB
		if version == 0 {
			res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&BasketPO{ID: id, Version: 1})
		} else {
			res = tx.Model(&BasketPO{}).
				Where("id = ? AND version = ?", id, version).
				Updates(map[string]interface{}{"version": version + 1, "updated_at": time.Now()})
		}
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return cqrs.ConcurrencyConflictErr(id, version)
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return cqrs.ConcurrencyConflictErr(id, version)
		}

		if err := tx.Where("basket_id = ?", id).Delete(&BasketItemPO{}).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, cqrs.ErrConcurrencyConflict) {
			return err
		}
		return cqrs.StorageErr("save", err)
	}

	b.SetVersion(version + 1)
	s.logger.Debug("basket saved", zap.String("basket_id", id), zap.Int("version", version+1))
	return nil
}

var _ basket.Repository = &Store{}
