// Package basket implements shopping basket aggregate, its commands and
// the handler executing them.
package basket

import (
	"errors"
	"fmt"

	"github.com/delicb/toy-basket/cqrs"
)

// AggregateType identifies baskets in commands and event envelopes.
const AggregateType = "basket"

var (
	// ErrInvalidCommand is returned for commands that can not be executed no matter the basket state.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrMissingID is returned when basket would be created without ID.
	ErrMissingID = fmt.Errorf("%w: basket ID is required", ErrInvalidCommand)
)

// Line is read only view of an item in basket.
type Line struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Basket is aggregate root holding items a customer intends to buy.
// All state changes go through events, see events.go.
type Basket struct {
	cqrs.Root
	id    string
	items []*item
}

func newBasket() *Basket {
	b := &Basket{Root: cqrs.NewRoot()}
	a := b.Applier()
	cqrs.Handle(a, b.whenCreated)
	cqrs.Handle(a, b.whenItemAdded)
	cqrs.Handle(a, b.whenItemQuantityChanged)
	cqrs.Handle(a, b.whenItemRemoved)
	cqrs.Handle(a, b.whenCleared)
	return b
}

// Create returns new basket with creation event already recorded.
func Create(id string) (*Basket, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	b := newBasket()
	b.Apply(Created{BasketID: id})
	return b, nil
}

// Replay builds basket from scratch out of previously recorded events.
// Replayed events are not recorded again.
func Replay(events []cqrs.DomainEvent) *Basket {
	b := newBasket()
	for _, ev := range events {
		cqrs.Replay(b.ChangeTracker, ev)
	}
	return b
}

func (b *Basket) GetID() string { return b.id }

// Items returns current content of the basket, in order items were added.
func (b *Basket) Items() []Line {
	lines := make([]Line, len(b.items))
	for i, it := range b.items {
		lines[i] = Line{ItemID: it.id, Quantity: it.quantity}
	}
	return lines
}

// Quantity returns quantity of provided item and whether it is in basket at all.
func (b *Basket) Quantity(itemID string) (int, bool) {
	if it := b.item(itemID); it != nil {
		return it.quantity, true
	}
	return 0, false
}

// AddItem puts item into basket. Adding item that is already there with the same
// quantity does nothing, with different quantity it changes the quantity.
func (b *Basket) AddItem(itemID string, quantity int) error {
	if quantity <= 0 {
		return InvalidQuantityErr(itemID, quantity)
	}
	if it := b.item(itemID); it != nil {
		if it.quantity == quantity {
			return nil
		}
		return b.ChangeItemQuantity(itemID, quantity)
	}
	b.Apply(ItemAdded{BasketID: b.id, ItemID: itemID, Quantity: quantity})
	return nil
}

// ChangeItemQuantity sets quantity of item already in basket. Quantity of zero
// or less removes the item.
func (b *Basket) ChangeItemQuantity(itemID string, quantity int) error {
	it := b.item(itemID)
	if it == nil {
		return ItemNotFoundErr(itemID)
	}
	if quantity <= 0 {
		return b.RemoveItem(itemID)
	}
	if it.quantity == quantity {
		return nil
	}
	it.changeQuantity(quantity)
	return nil
}

// RemoveItem takes item out of basket.
func (b *Basket) RemoveItem(itemID string) error {
	if b.item(itemID) == nil {
		return ItemNotFoundErr(itemID)
	}
	b.Apply(ItemRemoved{BasketID: b.id, ItemID: itemID})
	return nil
}

// Clear removes all items. Clearing empty basket records nothing.
func (b *Basket) Clear() {
	if len(b.items) == 0 {
		return
	}
	b.Apply(Cleared{BasketID: b.id})
}

func (b *Basket) HasChanges() bool {
	return b.Dirty(b.children()...)
}

func (b *Basket) CollectChanges() []cqrs.DomainEvent {
	return b.Collect(b.children()...)
}

func (b *Basket) children() []cqrs.Tracked {
	out := make([]cqrs.Tracked, len(b.items))
	for i, it := range b.items {
		out[i] = it
	}
	return out
}

func (b *Basket) item(itemID string) *item {
	for _, it := range b.items {
		if it.id == itemID {
			return it
		}
	}
	return nil
}

func (b *Basket) whenCreated(e Created) {
	b.id = e.BasketID
}

func (b *Basket) whenItemAdded(e ItemAdded) {
	b.items = append(b.items, newItem(b.Clock(), b.id, e.ItemID, e.Quantity))
}

// Live quantity changes are applied on the item itself; this path is taken
// only when replaying.
func (b *Basket) whenItemQuantityChanged(e ItemQuantityChanged) {
	it := b.item(e.ItemID)
	if it == nil {
		panic(fmt.Sprintf("basket %v: quantity change for unknown item %v", b.id, e.ItemID))
	}
	cqrs.Replay(it.ChangeTracker, e)
}

func (b *Basket) whenItemRemoved(e ItemRemoved) {
	for i, it := range b.items {
		if it.id == e.ItemID {
			b.Retire(it)
			b.items = append(b.items[:i], b.items[i+1:]...)
			return
		}
	}
}

func (b *Basket) whenCleared(_ Cleared) {
	for _, it := range b.items {
		b.Retire(it)
	}
	b.items = nil
}

var _ cqrs.AggregateRoot = &Basket{}
