package middleware

import (
	"net/http"
	"strings"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/store"
)

// RequireAuth validates the Authorization bearer token and populates the
// request context with the resolved member's identity.
func RequireAuth(members *store.MemberStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			member, err := members.GetByToken(r.Context(), token)
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if member == nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ac := auth.AuthContext{
				MemberID:    member.ID,
				MemberName:  member.Name,
				HouseholdID: member.HouseholdID,
				Role:        member.Role,
			}

			annotate(r.Context(), member.ID, member.HouseholdID)
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated member has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
