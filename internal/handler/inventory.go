package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/stock"
	"github.com/ewhitaker/larder/internal/store"
	ws "github.com/ewhitaker/larder/internal/websocket"
)

type InventoryHandler struct {
	inventory *store.InventoryStore
	monitor   *stock.Monitor
	hub       *ws.Hub
	logger    *slog.Logger
}

func NewInventoryHandler(inv *store.InventoryStore, monitor *stock.Monitor, hub *ws.Hub, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inv, monitor: monitor, hub: hub, logger: logger}
}

type inventoryItemRequest struct {
	Name              string `json:"name"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	LocationID        string `json:"location_id"`
	StoreID           string `json:"store_id"`
	Version           int64  `json:"version"`
}

func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req inventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item := &model.InventoryItem{
		Meta:              record.Meta{HouseholdID: auth.HouseholdID(r.Context())},
		Name:              req.Name,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		LocationID:        req.LocationID,
		StoreID:           req.StoreID,
	}
	if err := h.inventory.Create(r.Context(), item); err != nil {
		writeFault(w, err)
		return
	}

	h.monitor.Observe(r.Context(), item)
	h.hub.Broadcast(ws.NewMessage("inventory_item", "created", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusCreated, item)
}

func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		items []model.InventoryItem
		err   error
	)
	if r.URL.Query().Get("include_archived") == "true" {
		items, err = h.inventory.List(r.Context(), auth.HouseholdID(r.Context()))
	} else {
		items, err = h.inventory.ListActive(r.Context(), auth.HouseholdID(r.Context()))
	}
	if err != nil {
		h.logger.Error("list inventory", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.inventory.Get(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req inventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item, err := h.inventory.Update(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"),
		req.Version, req.Name, req.LowStockThreshold, req.LocationID, req.StoreID)
	if err != nil {
		writeFault(w, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("inventory_item", "updated", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusOK, item)
}

type quantityRequest struct {
	Quantity *int  `json:"quantity"`
	Delta    *int  `json:"delta"`
	Version  int64 `json:"version"`
}

// SetQuantity handles both absolute updates and signed adjustments. Exactly
// one of quantity or delta must be present.
func (h *InventoryHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if (req.Quantity == nil) == (req.Delta == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of quantity or delta is required")
		return
	}

	householdID := auth.HouseholdID(r.Context())
	id := r.PathValue("id")

	var (
		item *model.InventoryItem
		err  error
	)
	if req.Quantity != nil {
		item, err = h.inventory.SetQuantity(r.Context(), householdID, id, req.Version, *req.Quantity)
	} else {
		item, err = h.inventory.AdjustQuantity(r.Context(), householdID, id, req.Version, *req.Delta)
	}
	if err != nil {
		writeFault(w, err)
		return
	}

	h.monitor.Observe(r.Context(), item)
	h.hub.Broadcast(ws.NewMessage("inventory_item", "updated", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusOK, item)
}

type versionRequest struct {
	Version int64 `json:"version"`
}

func (h *InventoryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item, err := h.inventory.Archive(r.Context(), auth.HouseholdID(r.Context()), r.PathValue("id"), req.Version)
	if err != nil {
		writeFault(w, err)
		return
	}

	// Archiving resolves any open low-stock event for the item.
	h.monitor.Observe(r.Context(), item)
	h.hub.Broadcast(ws.NewMessage("inventory_item", "archived", item.HouseholdID, item.ID))
	writeJSON(w, http.StatusOK, item)
}
