package basket

import (
	"github.com/delicb/toy-basket/cqrs"
)

var (
	EventSerializer cqrs.EventSerializer
)

func init() {
	serializer := cqrs.NewEventJSONSerializer()
	serializer.RegisterDataCtor(CreatedID, func() interface{} { return &Created{} })
	serializer.RegisterDataCtor(ItemAddedID, func() interface{} { return &ItemAdded{} })
	serializer.RegisterDataCtor(ItemQuantityChangedID, func() interface{} { return &ItemQuantityChanged{} })
	serializer.RegisterDataCtor(ItemRemovedID, func() interface{} { return &ItemRemoved{} })
	serializer.RegisterDataCtor(ClearedID, func() interface{} { return &Cleared{} })

	EventSerializer = serializer
}

const CreatedID cqrs.EventID = "basket.created"
const ItemAddedID cqrs.EventID = "basket.item.added"
const ItemQuantityChangedID cqrs.EventID = "basket.item.quantity_changed"
const ItemRemovedID cqrs.EventID = "basket.item.removed"
const ClearedID cqrs.EventID = "basket.cleared"

// Event is closed set of events a basket can record. Only this package can
// add new variants; every variant must be listed in Events.
type Event interface {
	cqrs.DomainEvent
	basketEvent()
}

// Events returns zero value of every basket event.
func Events() []Event {
	return []Event{Created{}, ItemAdded{}, ItemQuantityChanged{}, ItemRemoved{}, Cleared{}}
}

// Created is event indicating that new basket has been created.
type Created struct {
	BasketID string `json:"basket_id" mapstructure:"basket_id"`
}

// ItemAdded is event indicating that item not yet in basket has been added to it.
type ItemAdded struct {
	BasketID string `json:"basket_id" mapstructure:"basket_id"`
	ItemID   string `json:"item_id" mapstructure:"item_id"`
	Quantity int    `json:"quantity" mapstructure:"quantity"`
}

// ItemQuantityChanged is event indicating that quantity of an item in basket has changed.
type ItemQuantityChanged struct {
	BasketID     string `json:"basket_id" mapstructure:"basket_id"`
	ItemID       string `json:"item_id" mapstructure:"item_id"`
	FromQuantity int    `json:"from_quantity" mapstructure:"from_quantity"`
	ToQuantity   int    `json:"to_quantity" mapstructure:"to_quantity"`
}

// ItemRemoved is event indicating that item is no longer in basket.
type ItemRemoved struct {
	BasketID string `json:"basket_id" mapstructure:"basket_id"`
	ItemID   string `json:"item_id" mapstructure:"item_id"`
}

// Cleared is event indicating that all items have been removed from basket.
type Cleared struct {
	BasketID string `json:"basket_id" mapstructure:"basket_id"`
}

func (Created) EventID() cqrs.EventID             { return CreatedID }
func (ItemAdded) EventID() cqrs.EventID           { return ItemAddedID }
func (ItemQuantityChanged) EventID() cqrs.EventID { return ItemQuantityChangedID }
func (ItemRemoved) EventID() cqrs.EventID         { return ItemRemovedID }
func (Cleared) EventID() cqrs.EventID             { return ClearedID }

func (e Created) AggregateID() string             { return e.BasketID }
func (e ItemAdded) AggregateID() string           { return e.BasketID }
func (e ItemQuantityChanged) AggregateID() string { return e.BasketID }
func (e ItemRemoved) AggregateID() string         { return e.BasketID }
func (e Cleared) AggregateID() string             { return e.BasketID }

func (Created) basketEvent()             {}
func (ItemAdded) basketEvent()           {}
func (ItemQuantityChanged) basketEvent() {}
func (ItemRemoved) basketEvent()         {}
func (Cleared) basketEvent()             {}
