package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/notify"
	"github.com/ewhitaker/larder/internal/store"
)

type EventHandler struct {
	events  *store.EventStore
	router  *notify.Router
	digests map[model.Channel]*notify.Digest
	logger  *slog.Logger
}

func NewEventHandler(events *store.EventStore, router *notify.Router, digests map[model.Channel]*notify.Digest, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, router: router, digests: digests, logger: logger}
}

func (h *EventHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListActive(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Resend re-runs the immediate delivery path for one event. Channels whose
// IMMEDIATE ledger key is already marked are skipped, so this only fills
// gaps left by earlier failures.
func (h *EventHandler) Resend(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.Get(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	if err := h.router.Deliver(r.Context(), ev); err != nil {
		h.logger.Error("resend event", "event_id", ev.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "delivery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dispatched"})
}

type digestRunRequest struct {
	Cadence model.Frequency `json:"cadence"`
}

// RunDigest triggers a digest pass on demand. Admin only; the scheduler
// covers the normal cadence.
func (h *EventHandler) RunDigest(w http.ResponseWriter, r *http.Request) {
	var req digestRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	results := make(map[string]notify.RunStats, len(h.digests))
	for ch, d := range h.digests {
		stats, err := d.Run(r.Context(), req.Cadence)
		if err != nil {
			writeFault(w, err)
			return
		}
		results[string(ch)] = stats
	}
	writeJSON(w, http.StatusOK, results)
}
