package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ewhitaker/larder/internal/database"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func testItem(pk, sk string) *Item {
	return &Item{
		PartitionKey: pk,
		SortKey:      sk,
		Type:         "widget",
		Status:       "active",
		Body:         []byte(`{"name":"test"}`),
	}
}

func TestPutIfAbsentAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	it := testItem("hh1", "widget#1")
	if err := s.PutIfAbsent(ctx, it); err != nil {
		t.Fatalf("put: %v", err)
	}
	if it.Version != 1 {
		t.Errorf("version = %d, want 1", it.Version)
	}

	got, err := s.Get(ctx, "hh1", "widget#1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.Status != "active" || string(got.Body) != `{"name":"test"}` {
		t.Errorf("got status=%q body=%q", got.Status, got.Body)
	}
}

func TestPutIfAbsentDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1")); err != nil {
		t.Fatalf("first put: %v", err)
	}

	err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1"))
	var ke *KeyExistsError
	if !errors.As(err, &ke) {
		t.Fatalf("expected KeyExistsError, got %v", err)
	}
	if ke.Existing == nil {
		t.Error("expected existing item in error")
	}
}

func TestGetMissing(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.Get(context.Background(), "hh1", "widget#nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestConditionalUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	updated, err := s.ConditionalUpdate(ctx, &Update{
		PartitionKey:    "hh1",
		SortKey:         "widget#1",
		ExpectedVersion: 1,
		Status:          "archived",
		Body:            []byte(`{"name":"test2"}`),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	if updated.Status != "archived" {
		t.Errorf("status = %q, want archived", updated.Status)
	}
}

func TestConditionalUpdateStaleVersion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := s.ConditionalUpdate(ctx, &Update{
		PartitionKey:    "hh1",
		SortKey:         "widget#1",
		ExpectedVersion: 99,
		Status:          "archived",
		Body:            []byte(`{}`),
	})
	var cf *ConditionFailedError
	if !errors.As(err, &cf) {
		t.Fatalf("expected ConditionFailedError, got %v", err)
	}
	if cf.Current == nil || cf.Current.Version != 1 {
		t.Errorf("expected current item at version 1, got %+v", cf.Current)
	}

	// Stored record untouched
	got, _ := s.Get(ctx, "hh1", "widget#1")
	if got.Status != "active" {
		t.Errorf("status = %q, want active", got.Status)
	}
}

func TestConditionalUpdateStatusGuard(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := s.ConditionalUpdate(ctx, &Update{
		PartitionKey:    "hh1",
		SortKey:         "widget#1",
		ExpectedVersion: 1,
		ExpectedStatus:  "pending",
		Status:          "approved",
		Body:            []byte(`{}`),
	})
	var cf *ConditionFailedError
	if !errors.As(err, &cf) {
		t.Fatalf("expected ConditionFailedError on status mismatch, got %v", err)
	}
}

func TestTransactWriteAllOrNothing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Second write's precondition fails: nothing from the batch commits.
	err := s.TransactWrite(ctx,
		Write{Put: testItem("hh1", "widget#2")},
		Write{Update: &Update{
			PartitionKey:    "hh1",
			SortKey:         "widget#1",
			ExpectedVersion: 99,
			Status:          "archived",
			Body:            []byte(`{}`),
		}},
	)
	var wa *WriteAbortedError
	if !errors.As(err, &wa) {
		t.Fatalf("expected WriteAbortedError, got %v", err)
	}

	if got, _ := s.Get(ctx, "hh1", "widget#2"); got != nil {
		t.Error("aborted put is visible")
	}
	if got, _ := s.Get(ctx, "hh1", "widget#1"); got.Status != "active" {
		t.Errorf("aborted update applied: status = %q", got.Status)
	}
}

func TestTransactWriteCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.PutIfAbsent(ctx, testItem("hh1", "widget#1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := s.TransactWrite(ctx,
		Write{Update: &Update{
			PartitionKey:    "hh1",
			SortKey:         "widget#1",
			ExpectedVersion: 1,
			Status:          "archived",
			Body:            []byte(`{}`),
		}},
		Write{Put: testItem("hh1", "widget#2")},
	)
	if err != nil {
		t.Fatalf("transact write: %v", err)
	}

	if got, _ := s.Get(ctx, "hh1", "widget#1"); got.Status != "archived" || got.Version != 2 {
		t.Errorf("update not applied: %+v", got)
	}
	if got, _ := s.Get(ctx, "hh1", "widget#2"); got == nil {
		t.Error("put not applied")
	}
}

func TestGetByToken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	it := testItem("hh1", "widget#1")
	it.Token = "tok-abc"
	if err := s.PutIfAbsent(ctx, it); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetByToken(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.SortKey != "widget#1" {
		t.Fatalf("got %+v", got)
	}

	missing, err := s.GetByToken(ctx, "tok-missing")
	if err != nil {
		t.Fatalf("get missing token: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %+v", missing)
	}
}

func TestListFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := testItem("hh1", "widget#1")
	b := testItem("hh1", "widget#2")
	b.Status = "archived"
	b.RefID = "ref-9"
	c := testItem("hh1", "gadget#1")
	c.Type = "gadget"
	d := testItem("hh2", "widget#1")
	for _, it := range []*Item{a, b, c, d} {
		if err := s.PutIfAbsent(ctx, it); err != nil {
			t.Fatalf("put %s: %v", it.SortKey, err)
		}
	}

	items, err := s.List(ctx, Query{Partition: "hh1", Type: "widget"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("list by type: got %d items, want 2", len(items))
	}

	items, _ = s.List(ctx, Query{Partition: "hh1", Type: "widget", Status: "archived"})
	if len(items) != 1 || items[0].SortKey != "widget#2" {
		t.Fatalf("list by status: got %+v", items)
	}

	items, _ = s.List(ctx, Query{Partition: "hh1", RefID: "ref-9"})
	if len(items) != 1 || items[0].SortKey != "widget#2" {
		t.Fatalf("list by ref: got %+v", items)
	}
}

func TestTTLVisibilityAndPurge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	expired := testItem("hh1", "widget#expired")
	expired.ExpiresAt = &past
	live := testItem("hh1", "widget#live")
	live.ExpiresAt = &future
	for _, it := range []*Item{expired, live} {
		if err := s.PutIfAbsent(ctx, it); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	// Lapsed items are invisible before any purge runs.
	if got, _ := s.Get(ctx, "hh1", "widget#expired"); got != nil {
		t.Error("expired item visible via Get")
	}
	items, _ := s.List(ctx, Query{Partition: "hh1", Type: "widget"})
	if len(items) != 1 {
		t.Errorf("expired item visible via List: %d items", len(items))
	}

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	if got, _ := s.Get(ctx, "hh1", "widget#live"); got == nil {
		t.Error("live item purged")
	}
}

func TestPartitions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i, pk := range []string{"hh2", "hh1", "hh1"} {
		it := testItem(pk, fmt.Sprintf("widget#%d", i))
		if err := s.PutIfAbsent(ctx, it); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	parts, err := s.Partitions(ctx, "widget")
	if err != nil {
		t.Fatalf("partitions: %v", err)
	}
	if len(parts) != 2 || parts[0] != "hh1" || parts[1] != "hh2" {
		t.Errorf("partitions = %v, want [hh1 hh2]", parts)
	}
}
