package store

import (
	"context"
	"strings"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
)

type InventoryStore struct {
	records *record.Store[model.InventoryItem, *model.InventoryItem]
}

func NewInventoryStore(kvs *kv.Store) *InventoryStore {
	return &InventoryStore{records: record.NewStore[model.InventoryItem, *model.InventoryItem](kvs)}
}

func validateInventoryItem(item *model.InventoryItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return &fault.ValidationFailed{Field: "name", Reason: "required"}
	}
	if item.Quantity < 0 {
		return &fault.ValidationFailed{Field: "quantity", Reason: "must be >= 0"}
	}
	if item.LowStockThreshold < 0 {
		return &fault.ValidationFailed{Field: "low_stock_threshold", Reason: "must be >= 0"}
	}
	return nil
}

// Create inserts a new active inventory item.
func (s *InventoryStore) Create(ctx context.Context, item *model.InventoryItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if err := validateInventoryItem(item); err != nil {
		return err
	}
	if item.Status == "" {
		item.Status = model.InventoryActive
	}
	return s.records.Create(ctx, item)
}

// CreateWrite prepares the insert for a multi-item transaction.
func (s *InventoryStore) CreateWrite(item *model.InventoryItem) (kv.Write, error) {
	item.Name = strings.TrimSpace(item.Name)
	if err := validateInventoryItem(item); err != nil {
		return kv.Write{}, err
	}
	if item.Status == "" {
		item.Status = model.InventoryActive
	}
	return s.records.CreateWrite(item)
}

func (s *InventoryStore) Get(ctx context.Context, householdID, id string) (*model.InventoryItem, error) {
	return s.records.Get(ctx, householdID, id)
}

func (s *InventoryStore) List(ctx context.Context, householdID string) ([]model.InventoryItem, error) {
	return s.records.List(ctx, householdID)
}

func (s *InventoryStore) ListActive(ctx context.Context, householdID string) ([]model.InventoryItem, error) {
	return s.records.List(ctx, householdID, record.WithStatus(model.InventoryActive))
}

// FindByName returns the first active item whose name matches
// case-insensitively, or nil.
func (s *InventoryStore) FindByName(ctx context.Context, householdID, name string) (*model.InventoryItem, error) {
	items, err := s.ListActive(ctx, householdID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if strings.EqualFold(items[i].Name, strings.TrimSpace(name)) {
			return &items[i], nil
		}
	}
	return nil, nil
}

// Update edits the item's descriptive fields under the optimistic lock.
func (s *InventoryStore) Update(ctx context.Context, householdID, id string, expectedVersion int64, name string, threshold int, locationID, storeID string) (*model.InventoryItem, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.InventoryItem) error {
		item.Name = strings.TrimSpace(name)
		item.LowStockThreshold = threshold
		item.LocationID = locationID
		item.StoreID = storeID
		return validateInventoryItem(item)
	})
}

// SetQuantity replaces the quantity outright.
func (s *InventoryStore) SetQuantity(ctx context.Context, householdID, id string, expectedVersion int64, quantity int) (*model.InventoryItem, error) {
	if quantity < 0 {
		return nil, &fault.ValidationFailed{Field: "quantity", Reason: "must be >= 0"}
	}
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.InventoryItem) error {
		item.Quantity = quantity
		return nil
	})
}

// AdjustQuantity applies a signed delta; the result is clamped at zero.
func (s *InventoryStore) AdjustQuantity(ctx context.Context, householdID, id string, expectedVersion int64, delta int) (*model.InventoryItem, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.InventoryItem) error {
		item.Quantity += delta
		if item.Quantity < 0 {
			item.Quantity = 0
		}
		return nil
	})
}

// Archive retires the item. Archived items never trigger low-stock events.
func (s *InventoryStore) Archive(ctx context.Context, householdID, id string, expectedVersion int64) (*model.InventoryItem, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.InventoryItem) error {
		item.Status = model.InventoryArchived
		return nil
	})
}

// SetDisplayNames refreshes the denormalized location/store names. Lookup
// failures upstream degrade to nil, never block the core operation.
func (s *InventoryStore) SetDisplayNames(ctx context.Context, householdID, id string, expectedVersion int64, locationName, storeName *string) (*model.InventoryItem, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.InventoryItem) error {
		item.LocationName = locationName
		item.StoreName = storeName
		return nil
	})
}
