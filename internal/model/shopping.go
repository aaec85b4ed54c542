package model

import (
	"time"

	"github.com/ewhitaker/larder/internal/record"
)

// Shopping list item statuses.
const (
	ShoppingPending   = "pending"
	ShoppingPurchased = "purchased"
)

// ShoppingListItem is one line on the household shopping list. A non-empty
// InventoryItemID links it to an inventory item; empty means free text.
// Expiry is set only while purchased, after which the store garbage-collects
// the record; reverting to pending clears it.
type ShoppingListItem struct {
	record.Meta
	InventoryItemID string     `json:"inventory_item_id,omitempty"`
	Name            string     `json:"name"`
	StoreID         string     `json:"store_id,omitempty"`
	StoreName       *string    `json:"store_name,omitempty"`
	Status          string     `json:"status"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	AddedBy         string     `json:"added_by,omitempty"`
}

func (i *ShoppingListItem) RecordMeta() *record.Meta { return &i.Meta }
func (i *ShoppingListItem) Kind() string             { return "shopping_item" }

func (i *ShoppingListItem) Index() record.Index {
	return record.Index{Status: i.Status, RefID: i.InventoryItemID, ExpiresAt: i.Expiry}
}
