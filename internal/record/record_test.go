package record

import (
	"context"
	"errors"
	"testing"

	"github.com/ewhitaker/larder/internal/database"
	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
)

type gadget struct {
	Meta
	Name   string `json:"name"`
	State  string `json:"state"`
	Secret string `json:"secret,omitempty"`
}

func (g *gadget) RecordMeta() *Meta { return &g.Meta }
func (g *gadget) Kind() string      { return "gadget" }
func (g *gadget) Index() Index {
	return Index{Status: g.State, Token: g.Secret}
}

func setupGadgetStore(t *testing.T) (*Store[gadget, *gadget], *kv.Store) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	kvs := kv.NewStore(db)
	return NewStore[gadget, *gadget](kvs), kvs
}

func TestCreateAssignsIdentity(t *testing.T) {
	s, _ := setupGadgetStore(t)
	ctx := context.Background()

	g := &gadget{Meta: Meta{HouseholdID: "hh1"}, Name: "sprocket", State: "active"}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID == "" {
		t.Error("expected generated id")
	}
	if g.Version != 1 {
		t.Errorf("version = %d, want 1", g.Version)
	}
	if g.CreatedAt.IsZero() || g.UpdatedAt.IsZero() {
		t.Error("expected timestamps")
	}
}

func TestCreateRequiresHousehold(t *testing.T) {
	s, _ := setupGadgetStore(t)

	err := s.Create(context.Background(), &gadget{Name: "sprocket"})
	var vf *fault.ValidationFailed
	if !errors.As(err, &vf) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestCreateDuplicateCarriesExisting(t *testing.T) {
	s, _ := setupGadgetStore(t)
	ctx := context.Background()

	g := &gadget{Meta: Meta{HouseholdID: "hh1", ID: "fixed"}, Name: "first", State: "active"}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Create(ctx, &gadget{Meta: Meta{HouseholdID: "hh1", ID: "fixed"}, Name: "second", State: "active"})
	var de *fault.DuplicateExists
	if !errors.As(err, &de) {
		t.Fatalf("expected DuplicateExists, got %v", err)
	}
	existing, ok := de.Existing.(*gadget)
	if !ok || existing.Name != "first" {
		t.Errorf("expected existing gadget %q, got %+v", "first", de.Existing)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s, _ := setupGadgetStore(t)

	g, err := s.Get(context.Background(), "hh1", "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g != nil {
		t.Errorf("expected nil, got %+v", g)
	}
}

func TestUpdateBumpsVersion(t *testing.T) {
	s, _ := setupGadgetStore(t)
	ctx := context.Background()

	g := &gadget{Meta: Meta{HouseholdID: "hh1"}, Name: "sprocket", State: "active"}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(ctx, "hh1", g.ID, 1, func(x *gadget) error {
		x.Name = "cog"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.Name != "cog" {
		t.Errorf("got version=%d name=%q", updated.Version, updated.Name)
	}
}

func TestUpdateStaleVersionCarriesCurrent(t *testing.T) {
	s, _ := setupGadgetStore(t)
	ctx := context.Background()

	g := &gadget{Meta: Meta{HouseholdID: "hh1"}, Name: "sprocket", State: "active"}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Update(ctx, "hh1", g.ID, 1, func(x *gadget) error {
		x.Name = "winner"
		return nil
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// Second writer still holds version 1.
	_, err := s.Update(ctx, "hh1", g.ID, 1, func(x *gadget) error {
		x.Name = "loser"
		return nil
	})
	var vc *fault.VersionConflict
	if !errors.As(err, &vc) {
		t.Fatalf("expected VersionConflict, got %v", err)
	}
	current, ok := vc.Current.(*gadget)
	if !ok {
		t.Fatalf("expected current gadget, got %T", vc.Current)
	}
	if current.Name != "winner" || current.Version != 2 {
		t.Errorf("current = %+v", current)
	}

	// Loser's mutation was never applied.
	stored, _ := s.Get(ctx, "hh1", g.ID)
	if stored.Name != "winner" {
		t.Errorf("stored name = %q, want winner", stored.Name)
	}
}

func TestUpdateMissingReturnsNotFound(t *testing.T) {
	s, _ := setupGadgetStore(t)

	_, err := s.Update(context.Background(), "hh1", "nope", 1, func(x *gadget) error { return nil })
	var nf *fault.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetByTokenChecksKind(t *testing.T) {
	s, kvs := setupGadgetStore(t)
	ctx := context.Background()

	g := &gadget{Meta: Meta{HouseholdID: "hh1"}, Name: "sprocket", State: "active", Secret: "tok-1"}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.ID != g.ID {
		t.Fatalf("got %+v", got)
	}

	// A record of another kind with a matching token never decodes as ours.
	other := &kv.Item{
		PartitionKey: "hh1", SortKey: "other#1", Type: "other",
		Token: "tok-2", Body: []byte(`{}`),
	}
	if err := kvs.PutIfAbsent(ctx, other); err != nil {
		t.Fatalf("put other: %v", err)
	}
	got, err = s.GetByToken(ctx, "tok-2")
	if err != nil {
		t.Fatalf("get by foreign token: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for foreign kind, got %+v", got)
	}
}

func TestListWithOptions(t *testing.T) {
	s, _ := setupGadgetStore(t)
	ctx := context.Background()

	for _, state := range []string{"active", "active", "archived"} {
		if err := s.Create(ctx, &gadget{Meta: Meta{HouseholdID: "hh1"}, Name: "g", State: state}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, err := s.List(ctx, "hh1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}

	active, err := s.List(ctx, "hh1", WithStatus("active"))
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active = %d, want 2", len(active))
	}
}
