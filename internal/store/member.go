package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
)

type MemberStore struct {
	records *record.Store[model.Member, *model.Member]
}

func NewMemberStore(kvs *kv.Store) *MemberStore {
	return &MemberStore{records: record.NewStore[model.Member, *model.Member](kvs)}
}

// Create inserts a member, minting a bearer token when none is supplied.
func (s *MemberStore) Create(ctx context.Context, m *model.Member) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return &fault.ValidationFailed{Field: "name", Reason: "required"}
	}
	if m.Role == "" {
		return &fault.ValidationFailed{Field: "role", Reason: "required"}
	}
	if m.Token == "" {
		m.Token = uuid.NewString()
	}
	return s.records.Create(ctx, m)
}

func (s *MemberStore) Get(ctx context.Context, householdID, id string) (*model.Member, error) {
	return s.records.Get(ctx, householdID, id)
}

// GetByToken resolves a member by bearer token across all households.
func (s *MemberStore) GetByToken(ctx context.Context, token string) (*model.Member, error) {
	return s.records.GetByToken(ctx, token)
}

func (s *MemberStore) ListByHousehold(ctx context.Context, householdID string) ([]model.Member, error) {
	return s.records.List(ctx, householdID)
}

// UpdatePreferences replaces the member's preference map under the
// optimistic lock. Values arrive already normalized by FrequencySet.
func (s *MemberStore) UpdatePreferences(ctx context.Context, householdID, id string, expectedVersion int64, prefs map[string]model.FrequencySet) (*model.Member, error) {
	for key, set := range prefs {
		for _, f := range set {
			if !f.Valid() {
				return nil, &fault.ValidationFailed{Field: key, Reason: "unknown frequency"}
			}
		}
	}
	return s.records.Update(ctx, householdID, id, expectedVersion, func(m *model.Member) error {
		m.Preferences = prefs
		return nil
	})
}

// SetUnsubscribeAllEmail flips the member-level email kill switch.
func (s *MemberStore) SetUnsubscribeAllEmail(ctx context.Context, householdID, id string, expectedVersion int64, unsubscribed bool) (*model.Member, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(m *model.Member) error {
		m.UnsubscribeAllEmail = unsubscribed
		return nil
	})
}

// SetPushSubscription stores or clears the member's web-push keys.
func (s *MemberStore) SetPushSubscription(ctx context.Context, householdID, id string, expectedVersion int64, sub *model.PushSubscription) (*model.Member, error) {
	return s.records.Update(ctx, householdID, id, expectedVersion, func(m *model.Member) error {
		m.Push = sub
		return nil
	})
}
