package main

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/cqrs"
)

//go:embed projection.sql
var projectionSchema string

// activity is single row of basket_activity table.
type activity struct {
	ItemID   *string
	Quantity *int
}

// describe extracts item and quantity event talks about, if any.
func describe(ev *cqrs.Event) (activity, error) {
	switch data := ev.Data.(type) {
	case basket.Created, basket.Cleared:
		return activity{}, nil
	case basket.ItemAdded:
		return activity{ItemID: &data.ItemID, Quantity: &data.Quantity}, nil
	case basket.ItemQuantityChanged:
		return activity{ItemID: &data.ItemID, Quantity: &data.ToQuantity}, nil
	case basket.ItemRemoved:
		return activity{ItemID: &data.ItemID}, nil
	default:
		return activity{}, fmt.Errorf("unknown event: %v", ev.EventID)
	}
}

type projector struct {
	db *pgxpool.Pool
}

func (p *projector) migrate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, projectionSchema)
	return err
}

// apply records event into activity log and updates item counts, all in one
// transaction.
func (p *projector) apply(ctx context.Context, ev *cqrs.Event) error {
	act, err := describe(ev)
	if err != nil {
		return err
	}
	return p.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO basket_activity
				(id, basket_id, event_id, item_id, quantity, correlation_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), ev.AggregateID, string(ev.EventID), act.ItemID, act.Quantity, ev.CorrelationID, ev.CreatedAt)
		if err != nil {
			return err
		}

		if err := p.updateItems(ctx, tx, ev); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO basket_item_counts
				(basket_id, items, total_quantity, last_event_time, last_correlation_id)
			SELECT $1, COUNT(item_id), COALESCE(SUM(quantity), 0), $2, $3
				FROM basket_view_items
				WHERE basket_id = $1
			ON CONFLICT (basket_id) DO UPDATE SET
				items = EXCLUDED.items,
				total_quantity = EXCLUDED.total_quantity,
				last_event_time = EXCLUDED.last_event_time,
				last_correlation_id = EXCLUDED.last_correlation_id`,
			ev.AggregateID, ev.CreatedAt, ev.CorrelationID)
		return err
	})
}

func (p *projector) updateItems(ctx context.Context, tx pgx.Tx, ev *cqrs.Event) error {
	var err error
	switch data := ev.Data.(type) {
	case basket.ItemAdded:
		_, err = tx.Exec(ctx, `
			INSERT INTO basket_view_items (basket_id, item_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (basket_id, item_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
			data.BasketID, data.ItemID, data.Quantity)
	case basket.ItemQuantityChanged:
		_, err = tx.Exec(ctx, `UPDATE basket_view_items SET quantity = $1 WHERE basket_id = $2 AND item_id = $3`,
			data.ToQuantity, data.BasketID, data.ItemID)
	case basket.ItemRemoved:
		_, err = tx.Exec(ctx, `DELETE FROM basket_view_items WHERE basket_id = $1 AND item_id = $2`,
			data.BasketID, data.ItemID)
	case basket.Cleared:
		_, err = tx.Exec(ctx, `DELETE FROM basket_view_items WHERE basket_id = $1`, data.BasketID)
	}
	return err
}
