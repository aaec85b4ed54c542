package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/database"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/store"
)

func setupMembers(t *testing.T) *store.MemberStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewMemberStore(kv.NewStore(db))
}

func seedMember(t *testing.T, members *store.MemberStore, role string) *model.Member {
	t.Helper()
	m := &model.Member{
		Meta:  record.Meta{HouseholdID: "hh1"},
		Name:  "Alice",
		Email: "alice@example.com",
		Role:  role,
	}
	if err := members.Create(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func TestRequireAuthMissingToken(t *testing.T) {
	members := setupMembers(t)
	handler := RequireAuth(members)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/inventory", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	members := setupMembers(t)
	seedMember(t, members, auth.RoleAdult)

	handler := RequireAuth(members)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest("GET", "/api/inventory", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthPopulatesContext(t *testing.T) {
	members := setupMembers(t)
	m := seedMember(t, members, auth.RoleAdult)

	var got auth.AuthContext
	handler := RequireAuth(members)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/inventory", nil)
	req.Header.Set("Authorization", "Bearer "+m.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.MemberID != m.ID || got.HouseholdID != "hh1" || got.Role != auth.RoleAdult {
		t.Errorf("auth context = %+v", got)
	}
	if got.MemberName != "Alice" {
		t.Errorf("member name = %q, want Alice", got.MemberName)
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		role string
		want int
	}{
		{auth.RoleAdmin, http.StatusNoContent},
		{auth.RoleAdult, http.StatusForbidden},
		{auth.RoleChild, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/api/members", nil)
		ctx := auth.WithAuth(req.Context(), auth.AuthContext{MemberID: "m1", HouseholdID: "hh1", Role: tc.role})
		rec := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(rec, req.WithContext(ctx))
		if rec.Code != tc.want {
			t.Errorf("role %s: status = %d, want %d", tc.role, rec.Code, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc123", "abc123"},
		{"Bearer   abc123  ", "abc123"},
		{"Basic abc123", ""},
		{"abc123", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
