package basket

import (
	"fmt"

	"github.com/delicb/toy-basket/cqrs"
)

var (
	CommandSerializer cqrs.CommandSerializer
)

func init() {
	serializer := cqrs.NewCommandJSONSerializer()
	serializer.RegisterCommandCtor(AddItemID, func() cqrs.Command { return &AddItemToBasket{} })
	serializer.RegisterCommandCtor(ChangeQuantityID, func() cqrs.Command { return &ChangeQuantity{} })
	serializer.RegisterCommandCtor(ClearID, func() cqrs.Command { return &ClearBasket{} })

	CommandSerializer = serializer
}

const AddItemID cqrs.CommandID = "basket.item.add"
const ChangeQuantityID cqrs.CommandID = "basket.item.change_quantity"
const ClearID cqrs.CommandID = "basket.clear"

// ErrMissingItemID is returned by commands that refer to an item without naming it.
var ErrMissingItemID = fmt.Errorf("%w: item ID is required", ErrInvalidCommand)

// AddItemToBasket is command indicating that item should be put into basket,
// creating the basket if it does not exist yet.
type AddItemToBasket struct {
	cqrs.BaseCommand `mapstructure:",squash"`
	ItemID           string `json:"item_id" mapstructure:"item_id"`
	Quantity         int    `json:"quantity" mapstructure:"quantity"`
}

func (c *AddItemToBasket) Validate(_ cqrs.AggregateRoot) error {
	if c.ItemID == "" {
		return ErrMissingItemID
	}
	return nil
}

// ChangeQuantity is command indicating that quantity of item in existing basket should change.
type ChangeQuantity struct {
	cqrs.BaseCommand `mapstructure:",squash"`
	ItemID           string `json:"item_id" mapstructure:"item_id"`
	Quantity         int    `json:"quantity" mapstructure:"quantity"`
}

func (c *ChangeQuantity) Validate(_ cqrs.AggregateRoot) error {
	if c.ItemID == "" {
		return ErrMissingItemID
	}
	return nil
}

// ClearBasket is command indicating that existing basket should be emptied.
type ClearBasket struct {
	cqrs.BaseCommand `mapstructure:",squash"`
}

func newBaseCommand(id cqrs.CommandID, basketID, correlationID string) cqrs.BaseCommand {
	return cqrs.BaseCommand{
		CommandID:     id,
		AggregateID:   basketID,
		AggregateType: AggregateType,
		CorrelationID: correlationID,
	}
}

// NewAddItemToBasket returns populated AddItemToBasket command.
func NewAddItemToBasket(basketID, itemID string, quantity int, correlationID string) *AddItemToBasket {
	return &AddItemToBasket{
		BaseCommand: newBaseCommand(AddItemID, basketID, correlationID),
		ItemID:      itemID,
		Quantity:    quantity,
	}
}

// NewChangeQuantity returns populated ChangeQuantity command.
func NewChangeQuantity(basketID, itemID string, quantity int, correlationID string) *ChangeQuantity {
	return &ChangeQuantity{
		BaseCommand: newBaseCommand(ChangeQuantityID, basketID, correlationID),
		ItemID:      itemID,
		Quantity:    quantity,
	}
}

// NewClearBasket returns populated ClearBasket command.
func NewClearBasket(basketID, correlationID string) *ClearBasket {
	return &ClearBasket{BaseCommand: newBaseCommand(ClearID, basketID, correlationID)}
}
