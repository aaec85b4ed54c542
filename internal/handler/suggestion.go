package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/store"
	"github.com/ewhitaker/larder/internal/suggestion"
	ws "github.com/ewhitaker/larder/internal/websocket"
)

type SuggestionHandler struct {
	suggestions *store.SuggestionStore
	engine      *suggestion.Engine
	hub         *ws.Hub
	logger      *slog.Logger
}

func NewSuggestionHandler(sg *store.SuggestionStore, engine *suggestion.Engine, hub *ws.Hub, logger *slog.Logger) *SuggestionHandler {
	return &SuggestionHandler{suggestions: sg, engine: engine, hub: hub, logger: logger}
}

type suggestionRequest struct {
	Type              model.SuggestionType `json:"type"`
	InventoryItemID   string               `json:"inventory_item_id"`
	ItemName          string               `json:"item_name"`
	ProposedQuantity  int                  `json:"proposed_quantity"`
	ProposedThreshold int                  `json:"proposed_threshold"`
}

func (h *SuggestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sg := &model.Suggestion{
		Meta:              record.Meta{HouseholdID: auth.HouseholdID(r.Context())},
		AuthorID:          auth.MemberID(r.Context()),
		AuthorName:        auth.MemberName(r.Context()),
		Type:              req.Type,
		InventoryItemID:   req.InventoryItemID,
		ItemName:          req.ItemName,
		ProposedQuantity:  req.ProposedQuantity,
		ProposedThreshold: req.ProposedThreshold,
	}
	if err := h.suggestions.Create(r.Context(), sg); err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("suggestion", "created", sg.HouseholdID, sg.ID))
	writeJSON(w, http.StatusCreated, sg)
}

func (h *SuggestionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.suggestions.ListPending(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list suggestions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *SuggestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sg, err := h.suggestions.Get(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get suggestion")
		return
	}
	if sg == nil {
		writeError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

type reviewRequest struct {
	Version int64  `json:"version"`
	Notes   string `json:"notes"`
}

func (h *SuggestionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sg, err := h.engine.Approve(r.Context(), r.PathValue("id"), req.Version)
	if err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("suggestion", "approved", sg.HouseholdID, sg.ID))
	writeJSON(w, http.StatusOK, sg)
}

func (h *SuggestionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sg, err := h.engine.Reject(r.Context(), r.PathValue("id"), req.Version, req.Notes)
	if err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("suggestion", "rejected", sg.HouseholdID, sg.ID))
	writeJSON(w, http.StatusOK, sg)
}
