package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/push"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/store"
)

type MemberHandler struct {
	members *store.MemberStore
	pushSvc *push.Service // nil when VAPID keys are not configured
	logger  *slog.Logger
}

func NewMemberHandler(members *store.MemberStore, pushSvc *push.Service, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, pushSvc: pushSvc, logger: logger}
}

// sanitize strips the bearer token before a member record goes over the wire.
func sanitize(m model.Member) model.Member {
	m.Token = ""
	return m
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		out = append(out, sanitize(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type memberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Create adds a household member. Admin only; the response includes the
// minted bearer token exactly once.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	m := &model.Member{
		Meta:  record.Meta{HouseholdID: auth.HouseholdID(r.Context())},
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	}
	if err := h.members.Create(r.Context(), m); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetPreferences returns the caller's own notification preferences.
func (h *MemberHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	m, err := h.members.Get(r.Context(), ac.HouseholdID, ac.MemberID)
	if err != nil || m == nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preferences":           m.Preferences,
		"unsubscribe_all_email": m.UnsubscribeAllEmail,
		"version":               m.Version,
	})
}

type preferencesRequest struct {
	Preferences map[string]model.FrequencySet `json:"preferences"`
	Version     int64                         `json:"version"`
}

// UpdatePreferences replaces the caller's preference map. FrequencySet
// accepts a scalar or a list per key; both land here normalized.
func (h *MemberHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	m, err := h.members.UpdatePreferences(r.Context(), ac.HouseholdID, ac.MemberID, req.Version, req.Preferences)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitize(*m))
}

type unsubscribeRequest struct {
	Unsubscribed bool  `json:"unsubscribed"`
	Version      int64 `json:"version"`
}

func (h *MemberHandler) SetUnsubscribeAllEmail(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	m, err := h.members.SetUnsubscribeAllEmail(r.Context(), ac.HouseholdID, ac.MemberID, req.Version, req.Unsubscribed)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitize(*m))
}

// UnsubscribeByToken is the public one-click endpoint linked from every
// outbound email. It needs no session; the member token authenticates it.
func (h *MemberHandler) UnsubscribeByToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	m, err := h.members.GetByToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "unknown token")
		return
	}

	if _, err := h.members.SetUnsubscribeAllEmail(r.Context(), m.HouseholdID, m.ID, m.Version, true); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

type pushSubscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
	Version   int64  `json:"version"`
}

func (h *MemberHandler) SubscribePush(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	m, err := h.members.SetPushSubscription(r.Context(), ac.HouseholdID, ac.MemberID, req.Version, &model.PushSubscription{
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitize(*m))
}

func (h *MemberHandler) UnsubscribePush(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	m, err := h.members.SetPushSubscription(r.Context(), ac.HouseholdID, ac.MemberID, req.Version, nil)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitize(*m))
}

func (h *MemberHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.pushSvc == nil {
		writeError(w, http.StatusNotFound, "push notifications not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.pushSvc.VAPIDPublicKey()})
}
