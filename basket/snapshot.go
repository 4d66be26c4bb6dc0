package basket

import (
	"github.com/delicb/toy-basket/cqrs"
)

// Snapshot is field state of a basket, which is what repositories store.
type Snapshot struct {
	ID    string `json:"id"`
	Items []Line `json:"items"`
}

// Snapshot returns current field state. Returned value shares no memory with the basket.
func (b *Basket) Snapshot() Snapshot {
	return Snapshot{ID: b.id, Items: b.Items()}
}

// Rebuild returns basket in state described by snapshot, without pending changes.
// Version is left for the repository to set.
func Rebuild(s Snapshot) *Basket {
	b := newBasket()
	cqrs.Replay(b.ChangeTracker, Created{BasketID: s.ID})
	for _, l := range s.Items {
		cqrs.Replay(b.ChangeTracker, ItemAdded{BasketID: s.ID, ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return b
}
