package gormstore

import (
	"time"

	"github.com/delicb/toy-basket/basket"
)

// BasketPO is row of baskets table. Items are stored separately, gorm
// associations are not used.
type BasketPO struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Version   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (BasketPO) TableName() string {
	return "baskets"
}

// BasketItemPO is row of basket_items table.
type BasketItemPO struct {
	BasketID string `gorm:"primaryKey;size:64"`
	ItemID   string `gorm:"primaryKey;size:64"`
	Quantity int    `gorm:"not null"`
	Position int    `gorm:"not null"`
}

func (BasketItemPO) TableName() string {
	return "basket_items"
}

func itemsFromSnapshot(s basket.Snapshot) []BasketItemPO {
	items := make([]BasketItemPO, len(s.Items))
	for i, l := range s.Items {
		items[i] = BasketItemPO{BasketID: s.ID, ItemID: l.ItemID, Quantity: l.Quantity, Position: i}
	}
	return items
}

func toSnapshot(b BasketPO, items []BasketItemPO) basket.Snapshot {
	s := basket.Snapshot{ID: b.ID}
	for _, it := range items {
		s.Items = append(s.Items, basket.Line{ItemID: it.ItemID, Quantity: it.Quantity})
	}
	return s
}
