// Package auth carries the resolved caller identity through request context.
// Identity is established by the outer layer; nothing in here re-verifies it.
package auth

import (
	"context"
	"errors"
)

// ErrForbidden is returned by authorization decisions that deny an operation.
var ErrForbidden = errors.New("forbidden")

// Member roles.
const (
	RoleAdmin = "admin"
	RoleAdult = "adult"
	RoleChild = "child"
)

type contextKey struct{}

type AuthContext struct {
	MemberID    string
	MemberName  string
	HouseholdID string
	Role        string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func HouseholdID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.HouseholdID
}

func MemberID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.MemberID
}

// MemberName returns the acting member's display name, snapshotted at
// authentication time.
func MemberName(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.MemberName
}

// CanReview reports whether the caller may approve or reject suggestions.
func CanReview(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleAdmin || ac.Role == RoleAdult
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleAdmin
}
