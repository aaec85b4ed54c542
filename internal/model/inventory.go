package model

import "github.com/ewhitaker/larder/internal/record"

// Inventory item statuses. Archived is terminal for notification purposes.
const (
	InventoryActive   = "active"
	InventoryArchived = "archived"
)

type InventoryItem struct {
	record.Meta
	Name              string  `json:"name"`
	Quantity          int     `json:"quantity"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	Status            string  `json:"status"`
	LocationID        string  `json:"location_id,omitempty"`
	StoreID           string  `json:"store_id,omitempty"`
	LocationName      *string `json:"location_name,omitempty"`
	StoreName         *string `json:"store_name,omitempty"`
}

func (i *InventoryItem) RecordMeta() *record.Meta { return &i.Meta }
func (i *InventoryItem) Kind() string             { return "inventory_item" }

func (i *InventoryItem) Index() record.Index {
	return record.Index{Status: i.Status}
}

// IsLowStock reports whether the item should carry an active low-stock event.
func (i *InventoryItem) IsLowStock() bool {
	return i.Status == InventoryActive && i.Quantity <= i.LowStockThreshold
}
