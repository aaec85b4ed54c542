package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/store"
	ws "github.com/ewhitaker/larder/internal/websocket"
)

type ShoppingHandler struct {
	shopping *store.ShoppingListStore
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewShoppingHandler(shopping *store.ShoppingListStore, hub *ws.Hub, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{shopping: shopping, hub: hub, logger: logger}
}

type shoppingItemRequest struct {
	Name            string `json:"name"`
	InventoryItemID string `json:"inventory_item_id"`
	StoreID         string `json:"store_id"`
	Force           bool   `json:"force"`
}

// Add creates a pending shopping item. Linked duplicates are rejected with
// the existing record unless the caller sets force.
func (h *ShoppingHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req shoppingItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item := &model.ShoppingListItem{
		Meta:            record.Meta{HouseholdID: auth.HouseholdID(r.Context())},
		Name:            req.Name,
		InventoryItemID: req.InventoryItemID,
		StoreID:         req.StoreID,
		AddedBy:         auth.MemberID(r.Context()),
	}
	if err := h.shopping.Add(r.Context(), item, req.Force); err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("shopping_item", "created", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusCreated, item)
}

func (h *ShoppingHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		items []model.ShoppingListItem
		err   error
	)
	if r.URL.Query().Get("include_purchased") == "true" {
		items, err = h.shopping.List(r.Context(), auth.HouseholdID(r.Context()))
	} else {
		items, err = h.shopping.ListPending(r.Context(), auth.HouseholdID(r.Context()))
	}
	if err != nil {
		h.logger.Error("list shopping items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.ShoppingListItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type shoppingStatusRequest struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func (h *ShoppingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req shoppingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item, err := h.shopping.UpdateStatus(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"), req.Version, req.Status)
	if err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("shopping_item", "updated", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusOK, item)
}

type shoppingRenameRequest struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

func (h *ShoppingHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req shoppingRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item, err := h.shopping.Rename(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"), req.Version, req.Name)
	if err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("shopping_item", "updated", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusOK, item)
}
