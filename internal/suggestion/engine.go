// Package suggestion reviews member suggestions. Approval couples the
// suggestion's terminal status change with the creation of the derived
// records in one all-or-nothing store write, so a racing edit or a vanished
// referent leaves the suggestion pending and nothing half-applied.
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/store"
)

// Dispatcher hands the post-review notification event to the delivery router.
type Dispatcher interface {
	Deliver(ctx context.Context, ev *model.NotificationEvent) error
}

// Observer is notified of inventory items created by approvals, so a new
// item that is already at or below its threshold gets its low-stock event.
type Observer interface {
	Observe(ctx context.Context, item *model.InventoryItem)
}

type Engine struct {
	kv          *kv.Store
	suggestions *store.SuggestionStore
	inventory   *store.InventoryStore
	shopping    *store.ShoppingListStore
	events      *store.EventStore
	dispatch    Dispatcher // optional
	observer    Observer   // optional
	logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(kvs *kv.Store, sg *store.SuggestionStore, inv *store.InventoryStore, shop *store.ShoppingListStore, events *store.EventStore, dispatch Dispatcher, observer Observer, logger *slog.Logger) *Engine {
	return &Engine{
		kv:          kvs,
		suggestions: sg,
		inventory:   inv,
		shopping:    shop,
		events:      events,
		dispatch:    dispatch,
		observer:    observer,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// loadPending fetches the suggestion and re-validates it is still reviewable
// at the version the caller saw. The authorization decision happens before
// any of this; state-transition logic stays free of permission checks.
func (e *Engine) loadPending(ctx context.Context, householdID, id string, expectedVersion int64) (*model.Suggestion, error) {
	sg, err := e.suggestions.Get(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	if sg == nil {
		return nil, &fault.NotFound{Entity: "suggestion", ID: id}
	}
	if sg.Status != model.SuggestionPending || sg.Version != expectedVersion {
		return nil, &fault.VersionConflict{
			Entity:   "suggestion",
			ID:       id,
			Expected: expectedVersion,
			Current:  sg,
		}
	}
	return sg, nil
}

// Approve transitions the suggestion to approved and creates the derived
// record(s) in a single atomic multi-item write. The backing store's
// transactional write gives true all-or-nothing semantics, so there is no
// compensating-rollback path and no window of partial visibility.
func (e *Engine) Approve(ctx context.Context, suggestionID string, expectedVersion int64) (*model.Suggestion, error) {
	if !auth.CanReview(ctx) {
		return nil, auth.ErrForbidden
	}
	ac, _ := auth.FromContext(ctx)

	sg, err := e.loadPending(ctx, ac.HouseholdID, suggestionID, expectedVersion)
	if err != nil {
		return nil, err
	}

	var writes []kv.Write
	var createdItem *model.InventoryItem

	switch sg.Type {
	case model.SuggestAddToShopping:
		item, err := e.inventory.Get(ctx, ac.HouseholdID, sg.InventoryItemID)
		if err != nil {
			return nil, err
		}
		if item == nil || item.Status != model.InventoryActive {
			return nil, &fault.NotFound{Entity: "inventory_item", ID: sg.InventoryItemID}
		}
		if sg.ItemName == "" {
			// Snapshot the linked item's name so the response notification
			// names what was suggested even after the item is renamed.
			sg.ItemName = item.Name
		}
		dup, err := e.shopping.FindPendingByLinkedItem(ctx, ac.HouseholdID, item.ID)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return nil, &fault.DuplicateExists{Entity: "shopping_item", Existing: dup}
		}
		w, err := e.shopping.CreateWrite(&model.ShoppingListItem{
			Meta:            record.Meta{HouseholdID: ac.HouseholdID},
			InventoryItemID: item.ID,
			Name:            item.Name,
			StoreID:         item.StoreID,
			AddedBy:         sg.AuthorID,
		})
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)

	case model.SuggestCreateItem:
		existing, err := e.inventory.FindByName(ctx, ac.HouseholdID, sg.ItemName)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, &fault.DuplicateExists{Entity: "inventory_item", Existing: existing}
		}
		item := &model.InventoryItem{
			Meta:              record.Meta{HouseholdID: ac.HouseholdID},
			Name:              sg.ItemName,
			Quantity:          sg.ProposedQuantity,
			LowStockThreshold: sg.ProposedThreshold,
		}
		iw, err := e.inventory.CreateWrite(item)
		if err != nil {
			return nil, err
		}
		sw, err := e.shopping.CreateWrite(&model.ShoppingListItem{
			Meta:            record.Meta{HouseholdID: ac.HouseholdID},
			InventoryItemID: item.ID,
			Name:            item.Name,
			AddedBy:         sg.AuthorID,
		})
		if err != nil {
			return nil, err
		}
		writes = append(writes, iw, sw)
		createdItem = item

	default:
		return nil, &fault.ValidationFailed{Field: "type", Reason: "unknown suggestion type"}
	}

	reviewedAt := e.now()
	sg.Status = model.SuggestionApproved
	sg.ReviewerID = ac.MemberID
	sg.ReviewedAt = &reviewedAt

	reviewWrite, err := e.suggestions.ReviewWrite(sg, expectedVersion)
	if err != nil {
		return nil, err
	}
	writes = append([]kv.Write{reviewWrite}, writes...)

	if err := e.kv.TransactWrite(ctx, writes...); err != nil {
		var wa *kv.WriteAbortedError
		if errors.As(err, &wa) {
			return nil, &fault.TransactionAborted{Reason: wa.Reason}
		}
		return nil, err
	}

	if createdItem != nil && e.observer != nil {
		e.observer.Observe(ctx, createdItem)
	}
	e.notifyAuthor(ctx, sg)
	return sg, nil
}

// Reject is a single conditional update; no secondary record is written.
func (e *Engine) Reject(ctx context.Context, suggestionID string, expectedVersion int64, notes string) (*model.Suggestion, error) {
	if !auth.CanReview(ctx) {
		return nil, auth.ErrForbidden
	}
	ac, _ := auth.FromContext(ctx)

	if _, err := e.loadPending(ctx, ac.HouseholdID, suggestionID, expectedVersion); err != nil {
		return nil, err
	}

	reviewedAt := e.now()
	sg, err := e.suggestions.Reject(ctx, ac.HouseholdID, suggestionID, expectedVersion, func(s *model.Suggestion) error {
		if s.Status != model.SuggestionPending {
			return &fault.VersionConflict{Entity: "suggestion", ID: suggestionID, Expected: expectedVersion, Current: s}
		}
		s.Status = model.SuggestionRejected
		s.ReviewerID = ac.MemberID
		s.ReviewedAt = &reviewedAt
		s.ReviewNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notifyAuthor(ctx, sg)
	return sg, nil
}

// notifyAuthor records a suggestion-response event for the author and hands
// it to the router. Best-effort: a failure here never unwinds the review.
func (e *Engine) notifyAuthor(ctx context.Context, sg *model.Suggestion) {
	name := sg.ItemName
	if name == "" && sg.Type == model.SuggestAddToShopping {
		// Rejections skip the approval path that snapshots the linked
		// item's name; fill it in here so the message names the item.
		if item, err := e.inventory.Get(ctx, sg.HouseholdID, sg.InventoryItemID); err == nil && item != nil {
			name = item.Name
		}
	}
	ev := &model.NotificationEvent{
		Meta:      record.Meta{HouseholdID: sg.HouseholdID},
		Type:      model.NotifSuggestionResponse,
		Status:    model.EventActive,
		Subject:   name,
		Detail:    fmt.Sprintf("Your suggestion for %q was %s", name, sg.Status),
		RefID:     sg.ID,
		Recipient: sg.AuthorID,
	}
	if err := e.events.Create(ctx, ev); err != nil {
		e.logger.Error("create suggestion-response event", "suggestion_id", sg.ID, "error", err)
		return
	}
	if e.dispatch != nil {
		if err := e.dispatch.Deliver(ctx, ev); err != nil {
			e.logger.Error("deliver suggestion-response event", "event_id", ev.ID, "error", err)
		}
	}
}
