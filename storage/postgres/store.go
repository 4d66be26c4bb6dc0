// Package postgres keeps baskets in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/cqrs"
)

//go:embed schema.sql
var schema string

const defaultQueryTimeout = time.Second

// Connect opens connection pool described by cfg.
func Connect(ctx context.Context, cfg *config.StoreConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 && cfg.MaxIdleConns <= cfg.MaxOpenConns {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// Store is basket repository backed by two tables, one row per basket and one
// per item. Only current state is stored, events are not.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// New returns Store using provided pool. Zero timeout means default of one second.
func New(pool *pgxpool.Pool, timeout time.Duration, logger *zap.Logger) *Store {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, timeout: timeout, logger: logger}
}

// Migrate creates tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return cqrs.StorageErr("migrate", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*basket.Basket, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var version int
	err := s.pool.QueryRow(ctx, `SELECT version FROM baskets WHERE id = $1`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cqrs.StorageErr("load", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, quantity
			FROM basket_items
			WHERE basket_id = $1
			ORDER BY position ASC`, id)
	if err != nil {
		return nil, false, cqrs.StorageErr("load", err)
	}
	defer rows.Close()

	snap := basket.Snapshot{ID: id}
	for rows.Next() {
		var line basket.Line
		if err := rows.Scan(&line.ItemID, &line.Quantity); err != nil {
			return nil, false, cqrs.StorageErr("load", err)
		}
		snap.Items = append(snap.Items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, false, cqrs.StorageErr("load", err)
	}

	b := basket.Rebuild(snap)
	b.SetVersion(version)
	s.logger.Debug("basket loaded", zap.String("basket_id", id), zap.Int("version", version))
	return b, true, nil
}

func (s *Store) Save(ctx context.Context, b *basket.Basket) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, version := b.GetID(), b.GetVersion()
	snap := b.Snapshot()

	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if version == 0 {
			tag, err := tx.Exec(ctx,
				`INSERT INTO baskets (id, version) VALUES ($1, 1) ON CONFLICT (id) DO NOTHING`, id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return cqrs.ConcurrencyConflictErr(id, version)
			}
		} else {
			tag, err := tx.Exec(ctx,
				`UPDATE baskets SET version = version + 1, updated_at = now() WHERE id = $1 AND version = $2`,
				id, version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return cqrs.ConcurrencyConflictErr(id, version)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM basket_items WHERE basket_id = $1`, id); err != nil {
			return err
		}
		for i, line := range snap.Items {
			_, err := tx.Exec(ctx, `
			INSERT INTO basket_items
				(basket_id, item_id, quantity, position)
			VALUES
				($1, $2, $3, $4)`,
				id, line.ItemID, line.Quantity, i)
			if err != nil {
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
