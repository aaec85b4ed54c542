package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ewhitaker/larder/internal/database"
	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
)

func setupSuggestionStore(t *testing.T) (*SuggestionStore, *kv.Store) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	kvs := kv.NewStore(db)
	return NewSuggestionStore(kvs), kvs
}

func TestSuggestionCreateForcesPending(t *testing.T) {
	s, _ := setupSuggestionStore(t)
	ctx := context.Background()

	sg := &model.Suggestion{
		Meta:            record.Meta{HouseholdID: "hh1"},
		AuthorID:        "member-1",
		Type:            model.SuggestAddToShopping,
		InventoryItemID: "inv-1",
		Status:          model.SuggestionApproved, // callers cannot pre-approve
	}
	if err := s.Create(ctx, sg); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sg.Status != model.SuggestionPending {
		t.Errorf("status = %q, want pending", sg.Status)
	}
}

func TestSuggestionCreateValidation(t *testing.T) {
	s, _ := setupSuggestionStore(t)
	ctx := context.Background()

	cases := []*model.Suggestion{
		{Meta: record.Meta{HouseholdID: "hh1"}, AuthorID: "m", Type: model.SuggestAddToShopping},                                   // missing link
		{Meta: record.Meta{HouseholdID: "hh1"}, AuthorID: "m", Type: model.SuggestCreateItem},                                      // missing name
		{Meta: record.Meta{HouseholdID: "hh1"}, AuthorID: "m", Type: model.SuggestCreateItem, ItemName: "x", ProposedQuantity: -1}, // negative
		{Meta: record.Meta{HouseholdID: "hh1"}, AuthorID: "m", Type: "upgrade_house"},                                              // unknown type
		{Meta: record.Meta{HouseholdID: "hh1"}, Type: model.SuggestAddToShopping, InventoryItemID: "inv-1"},                        // missing author
	}
	for i, sg := range cases {
		err := s.Create(ctx, sg)
		var vf *fault.ValidationFailed
		if !errors.As(err, &vf) {
			t.Errorf("case %d: expected ValidationFailed, got %v", i, err)
		}
	}
}

func TestSuggestionRejectTransition(t *testing.T) {
	s, _ := setupSuggestionStore(t)
	ctx := context.Background()

	sg := &model.Suggestion{
		Meta:            record.Meta{HouseholdID: "hh1"},
		AuthorID:        "member-1",
		Type:            model.SuggestAddToShopping,
		InventoryItemID: "inv-1",
	}
	if err := s.Create(ctx, sg); err != nil {
		t.Fatalf("create: %v", err)
	}

	reviewedAt := time.Now().UTC()
	rejected, err := s.Reject(ctx, "hh1", sg.ID, 1, func(x *model.Suggestion) error {
		x.Status = model.SuggestionRejected
		x.ReviewerID = "member-2"
		x.ReviewedAt = &reviewedAt
		x.ReviewNotes = "already have plenty"
		return nil
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.SuggestionRejected || rejected.Version != 2 {
		t.Errorf("got status=%q version=%d", rejected.Status, rejected.Version)
	}

	pending, _ := s.ListPending(ctx, "hh1")
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestSuggestionReviewWriteGuardsPendingStatus(t *testing.T) {
	s, kvs := setupSuggestionStore(t)
	ctx := context.Background()

	sg := &model.Suggestion{
		Meta:            record.Meta{HouseholdID: "hh1"},
		AuthorID:        "member-1",
		Type:            model.SuggestAddToShopping,
		InventoryItemID: "inv-1",
	}
	if err := s.Create(ctx, sg); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Move it out of pending first.
	if _, err := s.Reject(ctx, "hh1", sg.ID, 1, func(x *model.Suggestion) error {
		x.Status = model.SuggestionRejected
		return nil
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// A review write prepared against the old state must not commit.
	stale := *sg
	stale.Status = model.SuggestionApproved
	w, err := s.ReviewWrite(&stale, 2)
	if err != nil {
		t.Fatalf("review write: %v", err)
	}
	err = kvs.TransactWrite(ctx, w)
	var wa *kv.WriteAbortedError
	if !errors.As(err, &wa) {
		t.Fatalf("expected WriteAbortedError, got %v", err)
	}

	got, _ := s.Get(ctx, "hh1", sg.ID)
	if got.Status != model.SuggestionRejected {
		t.Errorf("status = %q, want rejected", got.Status)
	}
}
