package store

import (
	"context"
	"strings"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
)

type SuggestionStore struct {
	records *record.Store[model.Suggestion, *model.Suggestion]
}

func NewSuggestionStore(kvs *kv.Store) *SuggestionStore {
	return &SuggestionStore{records: record.NewStore[model.Suggestion, *model.Suggestion](kvs)}
}

// Create inserts a pending suggestion after payload validation.
func (s *SuggestionStore) Create(ctx context.Context, sg *model.Suggestion) error {
	sg.ItemName = strings.TrimSpace(sg.ItemName)
	switch sg.Type {
	case model.SuggestAddToShopping:
		if sg.InventoryItemID == "" {
			return &fault.ValidationFailed{Field: "inventory_item_id", Reason: "required for add_to_shopping"}
		}
	case model.SuggestCreateItem:
		if sg.ItemName == "" {
			return &fault.ValidationFailed{Field: "item_name", Reason: "required for create_item"}
		}
		if sg.ProposedQuantity < 0 || sg.ProposedThreshold < 0 {
			return &fault.ValidationFailed{Field: "proposed_quantity", Reason: "must be >= 0"}
		}
	default:
		return &fault.ValidationFailed{Field: "type", Reason: "unknown suggestion type"}
	}
	if sg.AuthorID == "" {
		return &fault.ValidationFailed{Field: "author_id", Reason: "required"}
	}
	sg.Status = model.SuggestionPending
	return s.records.Create(ctx, sg)
}

func (s *SuggestionStore) Get(ctx context.Context, householdID, id string) (*model.Suggestion, error) {
	return s.records.Get(ctx, householdID, id)
}

func (s *SuggestionStore) ListPending(ctx context.Context, householdID string) ([]model.Suggestion, error) {
	return s.records.List(ctx, householdID, record.WithStatus(model.SuggestionPending))
}

// ReviewWrite prepares the conditional status transition for a multi-item
// transaction: it commits only while the suggestion is still pending at the
// expected version.
func (s *SuggestionStore) ReviewWrite(sg *model.Suggestion, expectedVersion int64) (kv.Write, error) {
	return s.records.UpdateWrite(sg, expectedVersion, model.SuggestionPending)
}

// Reject is a single conditional update, no secondary write.
func (s *SuggestionStore) Reject(ctx context.Context, householdID, id string, expectedVersion int64, mutate func(*model.Suggestion) error) (*model.Suggestion, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, mutate)
}
