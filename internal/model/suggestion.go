package model

import (
	"time"

	"github.com/ewhitaker/larder/internal/record"
)

// Suggestion types.
type SuggestionType string

const (
	SuggestAddToShopping SuggestionType = "add_to_shopping"
	SuggestCreateItem    SuggestionType = "create_item"
)

// Suggestion statuses. Approved and rejected are terminal.
const (
	SuggestionPending  = "pending"
	SuggestionApproved = "approved"
	SuggestionRejected = "rejected"
)

// Suggestion is a member's proposal awaiting review. For add_to_shopping,
// InventoryItemID references an existing item and ItemName snapshots its
// name; for create_item, ItemName/ProposedQuantity/ProposedThreshold
// describe the item to create.
type Suggestion struct {
	record.Meta
	AuthorID   string         `json:"author_id"`
	AuthorName string         `json:"author_name"`
	Type       SuggestionType `json:"type"`
	Status     string         `json:"status"`

	InventoryItemID   string `json:"inventory_item_id,omitempty"`
	ItemName          string `json:"item_name"`
	ProposedQuantity  int    `json:"proposed_quantity,omitempty"`
	ProposedThreshold int    `json:"proposed_threshold,omitempty"`

	ReviewerID  string     `json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
}

func (s *Suggestion) RecordMeta() *record.Meta { return &s.Meta }
func (s *Suggestion) Kind() string             { return "suggestion" }

func (s *Suggestion) Index() record.Index {
	return record.Index{Status: s.Status, RefID: s.InventoryItemID}
}
