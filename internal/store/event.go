package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
)

// ledgerRetries bounds the internal compare-and-set loop for ledger marks.
// The ledger merge is commutative, so re-reading and reapplying after a lost
// race is safe; this is system-internal and distinct from user edits, which
// surface conflicts to the caller instead.
const ledgerRetries = 3

type EventStore struct {
	kv      *kv.Store
	records *record.Store[model.NotificationEvent, *model.NotificationEvent]
}

func NewEventStore(kvs *kv.Store) *EventStore {
	return &EventStore{
		kv:      kvs,
		records: record.NewStore[model.NotificationEvent, *model.NotificationEvent](kvs),
	}
}

// eventClaim pins the id of the current event for one (type, ref) pair
// under a deterministic sort key. Concurrent creators collide on the claim
// inside a transactional write instead of racing a read-then-insert window,
// so at most one active event exists per pair at any moment.
type eventClaim struct {
	EventID string `json:"event_id"`
}

func claimSortKey(typ model.NotificationType, refID string) string {
	return fmt.Sprintf("event_claim#%s#%s", typ, refID)
}

func (s *EventStore) Create(ctx context.Context, ev *model.NotificationEvent) error {
	if ev.Type == "" {
		return &fault.ValidationFailed{Field: "type", Reason: "required"}
	}
	if ev.Status == "" {
		ev.Status = model.EventActive
	}
	return s.records.Create(ctx, ev)
}

func (s *EventStore) Get(ctx context.Context, householdID, id string) (*model.NotificationEvent, error) {
	return s.records.Get(ctx, householdID, id)
}

func (s *EventStore) ListActive(ctx context.Context, householdID string) ([]model.NotificationEvent, error) {
	return s.records.List(ctx, householdID, record.WithStatus(model.EventActive))
}

// ActiveByRef returns the active event of the given type for the referenced
// entity, or nil.
func (s *EventStore) ActiveByRef(ctx context.Context, householdID string, typ model.NotificationType, refID string) (*model.NotificationEvent, error) {
	events, err := s.records.List(ctx, householdID,
		record.WithStatus(model.EventActive), record.WithRef(refID))
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].Type == typ {
			return &events[i], nil
		}
	}
	return nil, nil
}

// EnsureActive creates an active event for (type, refID) unless one already
// exists, in which case the existing event is returned and created is false.
// Creation goes through the deterministic claim row in one transactional
// write, so two concurrent callers can never both create an event.
func (s *EventStore) EnsureActive(ctx context.Context, ev *model.NotificationEvent) (*model.NotificationEvent, bool, error) {
	if ev.Type == "" {
		return nil, false, &fault.ValidationFailed{Field: "type", Reason: "required"}
	}
	ev.Status = model.EventActive
	sk := claimSortKey(ev.Type, ev.RefID)

	var lastErr error
	for attempt := 0; attempt < ledgerRetries; attempt++ {
		claim, err := s.kv.Get(ctx, ev.HouseholdID, sk)
		if err != nil {
			return nil, false, err
		}

		if claim != nil && claim.Status == model.EventActive {
			var c eventClaim
			if err := json.Unmarshal(claim.Body, &c); err != nil {
				return nil, false, fmt.Errorf("decode event claim %s: %w", sk, err)
			}
			existing, err := s.records.Get(ctx, ev.HouseholdID, c.EventID)
			if err != nil {
				return nil, false, err
			}
			if existing != nil && existing.Status == model.EventActive {
				return existing, false, nil
			}
			// The claim outlived its event; fall through and re-point it.
		}

		evWrite, err := s.records.CreateWrite(ev)
		if err != nil {
			return nil, false, err
		}
		body, err := json.Marshal(eventClaim{EventID: ev.ID})
		if err != nil {
			return nil, false, err
		}

		claimWrite := kv.Write{Put: &kv.Item{
			PartitionKey: ev.HouseholdID,
			SortKey:      sk,
			Type:         "event_claim",
			Status:       model.EventActive,
			RefID:        ev.RefID,
			Body:         body,
		}}
		if claim != nil {
			claimWrite = kv.Write{Update: &kv.Update{
				PartitionKey:    ev.HouseholdID,
				SortKey:         sk,
				ExpectedVersion: claim.Version,
				Status:          model.EventActive,
				RefID:           ev.RefID,
				Body:            body,
			}}
		}

		err = s.kv.TransactWrite(ctx, claimWrite, evWrite)
		if err == nil {
			return ev, true, nil
		}
		var wa *kv.WriteAbortedError
		if !errors.As(err, &wa) {
			return nil, false, err
		}
		// Lost the claim race; the next pass returns the winner's event.
		lastErr = err
	}
	return nil, false, fmt.Errorf("ensure active event %s for %s: %w", ev.Type, ev.RefID, lastErr)
}

// ResolveActive resolves the active event of the given type for refID,
// releasing its claim in the same transactional write. Resolving when none
// is active is a no-op.
func (s *EventStore) ResolveActive(ctx context.Context, householdID string, typ model.NotificationType, refID string) (bool, error) {
	ev, err := s.ActiveByRef(ctx, householdID, typ, refID)
	if err != nil {
		return false, err
	}
	if ev == nil {
		return false, nil
	}

	resolved := *ev
	resolved.Status = model.EventResolved
	evWrite, err := s.records.UpdateWrite(&resolved, ev.Version, model.EventActive)
	if err != nil {
		return false, err
	}
	writes := []kv.Write{evWrite}

	// Events created directly (no EnsureActive) have no claim row.
	claim, err := s.kv.Get(ctx, householdID, claimSortKey(typ, refID))
	if err != nil {
		return false, err
	}
	if claim != nil {
		writes = append(writes, kv.Write{Update: &kv.Update{
			PartitionKey:    householdID,
			SortKey:         claim.SortKey,
			ExpectedVersion: claim.Version,
			Status:          model.EventResolved,
			RefID:           claim.RefID,
			Body:            claim.Body,
		}})
	}

	if err := s.kv.TransactWrite(ctx, writes...); err != nil {
		var wa *kv.WriteAbortedError
		if !errors.As(err, &wa) {
			return false, err
		}
		// Someone else moved the event; if they resolved it, the goal is
		// already met.
		cur, gerr := s.records.Get(ctx, householdID, ev.ID)
		if gerr == nil && cur != nil && cur.Status == model.EventResolved {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkLedger records a completed delivery for the channel/cadence key as a
// conditional single-record update, retrying the merge on a lost race.
func (s *EventStore) MarkLedger(ctx context.Context, householdID, id, key string, sentAt time.Time) error {
	var lastErr error
	for attempt := 0; attempt < ledgerRetries; attempt++ {
		ev, err := s.records.Get(ctx, householdID, id)
		if err != nil {
			return err
		}
		if ev == nil {
			return &fault.NotFound{Entity: "notification_event", ID: id}
		}
		_, err = s.records.Update(ctx, householdID, id, ev.Version, func(e *model.NotificationEvent) error {
			if e.Ledger == nil {
				e.Ledger = make(map[string]model.LedgerEntry)
			}
			e.Ledger[key] = model.LedgerEntry{LastSentAt: sentAt}
			return nil
		})
		if err == nil {
			return nil
		}
		var vc *fault.VersionConflict
		if !errors.As(err, &vc) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("mark ledger %s on event %s: %w", key, id, lastErr)
}
