package basket

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity is returned when item would end up with quantity that is not positive.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrItemNotFound is returned when operation refers to item that is not in the basket.
	ErrItemNotFound = errors.New("item not found")
)

type invalidQuantityError struct {
	ItemID   string
	Quantity int
}

func (e *invalidQuantityError) Error() string {
	return fmt.Sprintf("Provided quantity for ItemId: %v should be greater than zero", e.ItemID)
}

func (e *invalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// InvalidQuantityErr returns error for non positive quantity of provided item.
func InvalidQuantityErr(itemID string, quantity int) error {
	return &invalidQuantityError{ItemID: itemID, Quantity: quantity}
}

type itemNotFoundError struct {
	ItemID string
}

func (e *itemNotFoundError) Error() string {
	return fmt.Sprintf("Item not found with Id: %v", e.ItemID)
}

func (e *itemNotFoundError) Unwrap() error { return ErrItemNotFound }

// ItemNotFoundErr returns error for item that is not in the basket.
func ItemNotFoundErr(itemID string) error {
	return &itemNotFoundError{ItemID: itemID}
}
