// Package record layers versioned entities over the kv store. Every entity
// carries Meta with an integer version starting at 1; every mutating write
// supplies the version it read and loses the race if the stored version has
// moved on. The losing caller gets the authoritative record back and decides
// what to do; nothing here retries automatically.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
)

// Meta is the shared base of every stored entity.
type Meta struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"household_id"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Index holds the denormalized secondary-access fields a record exposes.
type Index struct {
	Status    string
	RefID     string
	Token     string
	ExpiresAt *time.Time
}

// Entity is implemented by every stored model (on the pointer receiver).
type Entity interface {
	RecordMeta() *Meta
	Kind() string
	Index() Index
}

// Ptr constrains P to a pointer to T that implements Entity.
type Ptr[T any] interface {
	*T
	Entity
}

// Store is a typed optimistic-concurrency wrapper for one entity kind.
type Store[T any, P Ptr[T]] struct {
	kv  *kv.Store
	now func() time.Time
}

func NewStore[T any, P Ptr[T]](store *kv.Store) *Store[T, P] {
	return &Store[T, P]{kv: store, now: func() time.Time { return time.Now().UTC() }}
}

// SortKey builds the composite sort key for an entity kind and id.
func SortKey(kind, id string) string {
	return kind + "#" + id
}

func (s *Store[T, P]) decode(it *kv.Item) (P, error) {
	e := P(new(T))
	if err := json.Unmarshal(it.Body, e); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", it.Type, err)
	}
	return e, nil
}

func (s *Store[T, P]) encode(e P) (*kv.Item, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", e.Kind(), err)
	}
	m := e.RecordMeta()
	idx := e.Index()
	return &kv.Item{
		PartitionKey: m.HouseholdID,
		SortKey:      SortKey(e.Kind(), m.ID),
		Type:         e.Kind(),
		Status:       idx.Status,
		RefID:        idx.RefID,
		Token:        idx.Token,
		Version:      m.Version,
		Body:         body,
		ExpiresAt:    idx.ExpiresAt,
	}, nil
}

// Create inserts the entity at version 1, assigning an id when absent.
// A taken key surfaces as a typed duplicate carrying the existing record.
func (s *Store[T, P]) Create(ctx context.Context, e P) error {
	m := e.RecordMeta()
	if m.HouseholdID == "" {
		return &fault.ValidationFailed{Field: "household_id", Reason: "required"}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Version = 1
	now := s.now()
	m.CreatedAt = now
	m.UpdatedAt = now

	item, err := s.encode(e)
	if err != nil {
		return err
	}
	if err := s.kv.PutIfAbsent(ctx, item); err != nil {
		var ke *kv.KeyExistsError
		if errors.As(err, &ke) {
			var existing any
			if ke.Existing != nil {
				if dec, derr := s.decode(ke.Existing); derr == nil {
					existing = dec
				}
			}
			return &fault.DuplicateExists{Entity: e.Kind(), Existing: existing}
		}
		return err
	}
	return nil
}

// CreateWrite prepares the entity like Create but returns the kv write for
// composition into a multi-item transaction instead of committing it.
func (s *Store[T, P]) CreateWrite(e P) (kv.Write, error) {
	m := e.RecordMeta()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Version = 1
	now := s.now()
	m.CreatedAt = now
	m.UpdatedAt = now

	item, err := s.encode(e)
	if err != nil {
		return kv.Write{}, err
	}
	return kv.Write{Put: item}, nil
}

// Get returns the entity or nil when it does not exist.
func (s *Store[T, P]) Get(ctx context.Context, householdID, id string) (P, error) {
	e := P(new(T))
	it, err := s.kv.Get(ctx, householdID, SortKey(e.Kind(), id))
	if err != nil || it == nil {
		return nil, err
	}
	return s.decode(it)
}

// GetByToken looks the entity up by its globally unique secondary id.
func (s *Store[T, P]) GetByToken(ctx context.Context, token string) (P, error) {
	it, err := s.kv.GetByToken(ctx, token)
	if err != nil || it == nil {
		return nil, err
	}
	e := P(new(T))
	if it.Type != e.Kind() {
		return nil, nil
	}
	return s.decode(it)
}

// ListOption narrows a List call to a secondary access path.
type ListOption func(*kv.Query)

func WithStatus(status string) ListOption {
	return func(q *kv.Query) { q.Status = status }
}

func WithRef(refID string) ListOption {
	return func(q *kv.Query) { q.RefID = refID }
}

// List returns all entities of this kind in the household, oldest first.
func (s *Store[T, P]) List(ctx context.Context, householdID string, opts ...ListOption) ([]T, error) {
	e := P(new(T))
	q := kv.Query{Partition: householdID, Type: e.Kind()}
	for _, opt := range opts {
		opt(&q)
	}
	items, err := s.kv.List(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i := range items {
		dec, err := s.decode(&items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dec)
	}
	return out, nil
}

// Update applies mutate to the stored entity under an optimistic lock. The
// conditional write commits only if the stored version still equals
// expectedVersion; otherwise the caller gets a VersionConflict carrying the
// current record. On success the returned entity is at expectedVersion+1.
func (s *Store[T, P]) Update(ctx context.Context, householdID, id string, expectedVersion int64, mutate func(P) error) (P, error) {
	e, err := s.Get(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &fault.NotFound{Entity: P(new(T)).Kind(), ID: id}
	}
	if e.RecordMeta().Version != expectedVersion {
		return nil, &fault.VersionConflict{
			Entity:   e.Kind(),
			ID:       id,
			Expected: expectedVersion,
			Current:  e,
		}
	}

	if err := mutate(e); err != nil {
		return nil, err
	}
	u, err := s.UpdateWrite(e, expectedVersion, "")
	if err != nil {
		return nil, err
	}

	if _, err := s.kv.ConditionalUpdate(ctx, u.Update); err != nil {
		var cf *kv.ConditionFailedError
		if errors.As(err, &cf) {
			if cf.Current == nil {
				return nil, &fault.NotFound{Entity: e.Kind(), ID: id}
			}
			current, derr := s.decode(cf.Current)
			if derr != nil {
				return nil, derr
			}
			return nil, &fault.VersionConflict{
				Entity:   e.Kind(),
				ID:       id,
				Expected: expectedVersion,
				Current:  current,
			}
		}
		return nil, err
	}
	return e, nil
}

// UpdateWrite prepares a conditional update for the already-mutated entity,
// stamping version expectedVersion+1, for use in a multi-item transaction.
// expectedStatus adds a stored-status guard when non-empty.
func (s *Store[T, P]) UpdateWrite(e P, expectedVersion int64, expectedStatus string) (kv.Write, error) {
	m := e.RecordMeta()
	m.Version = expectedVersion + 1
	m.UpdatedAt = s.now()

	item, err := s.encode(e)
	if err != nil {
		return kv.Write{}, err
	}
	return kv.Write{Update: &kv.Update{
		PartitionKey:    item.PartitionKey,
		SortKey:         item.SortKey,
		ExpectedVersion: expectedVersion,
		ExpectedStatus:  expectedStatus,
		Status:          item.Status,
		RefID:           item.RefID,
		Body:            item.Body,
		ExpiresAt:       item.ExpiresAt,
	}}, nil
}
