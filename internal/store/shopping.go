package store

import (
	"context"
	"strings"
	"time"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
)

// DefaultPurchasedTTL is how long purchased items linger before the store
// garbage-collects them.
const DefaultPurchasedTTL = 7 * 24 * time.Hour

type ShoppingListStore struct {
	records      *record.Store[model.ShoppingListItem, *model.ShoppingListItem]
	purchasedTTL time.Duration
	now          func() time.Time
}

func NewShoppingListStore(kvs *kv.Store, purchasedTTL time.Duration) *ShoppingListStore {
	if purchasedTTL <= 0 {
		purchasedTTL = DefaultPurchasedTTL
	}
	return &ShoppingListStore{
		records:      record.NewStore[model.ShoppingListItem, *model.ShoppingListItem](kvs),
		purchasedTTL: purchasedTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func validateShoppingItem(item *model.ShoppingListItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return &fault.ValidationFailed{Field: "name", Reason: "required"}
	}
	return nil
}

// FindPendingByLinkedItem returns the first pending item linked to the given
// inventory item, or nil. This is the duplicate-detection scan.
func (s *ShoppingListStore) FindPendingByLinkedItem(ctx context.Context, householdID, inventoryItemID string) (*model.ShoppingListItem, error) {
	items, err := s.records.List(ctx, householdID,
		record.WithStatus(model.ShoppingPending), record.WithRef(inventoryItemID))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Add inserts a pending item. When the item links to an inventory item that
// already has a pending entry, it fails with the existing record unless the
// caller forces a duplicate.
func (s *ShoppingListStore) Add(ctx context.Context, item *model.ShoppingListItem, force bool) error {
	item.Name = strings.TrimSpace(item.Name)
	if err := validateShoppingItem(item); err != nil {
		return err
	}
	if item.Status == "" {
		item.Status = model.ShoppingPending
	}
	if item.InventoryItemID != "" && !force {
		existing, err := s.FindPendingByLinkedItem(ctx, item.HouseholdID, item.InventoryItemID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &fault.DuplicateExists{Entity: item.Kind(), Existing: existing}
		}
	}
	return s.records.Create(ctx, item)
}

// CreateWrite prepares the insert for a multi-item transaction. Duplicate
// detection is the caller's responsibility there.
func (s *ShoppingListStore) CreateWrite(item *model.ShoppingListItem) (kv.Write, error) {
	item.Name = strings.TrimSpace(item.Name)
	if err := validateShoppingItem(item); err != nil {
		return kv.Write{}, err
	}
	if item.Status == "" {
		item.Status = model.ShoppingPending
	}
	return s.records.CreateWrite(item)
}

func (s *ShoppingListStore) Get(ctx context.Context, householdID, id string) (*model.ShoppingListItem, error) {
	return s.records.Get(ctx, householdID, id)
}

func (s *ShoppingListStore) List(ctx context.Context, householdID string) ([]model.ShoppingListItem, error) {
	return s.records.List(ctx, householdID)
}

func (s *ShoppingListStore) ListPending(ctx context.Context, householdID string) ([]model.ShoppingListItem, error) {
	return s.records.List(ctx, householdID, record.WithStatus(model.ShoppingPending))
}

// UpdateStatus moves the item between pending and purchased. Purchasing
// stamps the expiry TTL; reverting to pending clears it.
func (s *ShoppingListStore) UpdateStatus(ctx context.Context, householdID, id string, expectedVersion int64, status string) (*model.ShoppingListItem, error) {
	if status != model.ShoppingPending && status != model.ShoppingPurchased {
		return nil, &fault.ValidationFailed{Field: "status", Reason: "must be pending or purchased"}
	}
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.ShoppingListItem) error {
		item.Status = status
		if status == model.ShoppingPurchased {
			expiry := s.now().Add(s.purchasedTTL)
			item.Expiry = &expiry
		} else {
			item.Expiry = nil
		}
		return nil
	})
}

// Rename edits the free-text name under the optimistic lock.
func (s *ShoppingListStore) Rename(ctx context.Context, householdID, id string, expectedVersion int64, name string) (*model.ShoppingListItem, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(item *model.ShoppingListItem) error {
		item.Name = strings.TrimSpace(name)
		return validateShoppingItem(item)
	})
}
