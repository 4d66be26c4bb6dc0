package basket

import (
	"github.com/delicb/toy-basket/cqrs"
)

// item is line in a basket. It has no reference to its basket, basket passes
// its own ID when creating it.
type item struct {
	cqrs.Base
	basketID string
	id       string
	quantity int
}

func newItem(clock *cqrs.Clock, basketID, id string, quantity int) *item {
	it := &item{
		Base:     cqrs.NewBase(clock),
		basketID: basketID,
		id:       id,
		quantity: quantity,
	}
	cqrs.Handle(it.Applier(), it.whenQuantityChanged)
	return it
}

func (i *item) GetID() string { return i.id }

func (i *item) changeQuantity(to int) {
	i.Apply(ItemQuantityChanged{
		BasketID:     i.basketID,
		ItemID:       i.id,
		FromQuantity: i.quantity,
		ToQuantity:   to,
	})
}

func (i *item) whenQuantityChanged(e ItemQuantityChanged) {
	i.quantity = e.ToQuantity
}

var _ cqrs.Entity = &item{}
