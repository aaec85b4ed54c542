// Package stock watches inventory mutations and keeps low-stock
// notification events in step with item quantities.
package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/record"
	"github.com/ewhitaker/larder/internal/store"
)

// Dispatcher hands a freshly created event to the delivery router.
type Dispatcher interface {
	Deliver(ctx context.Context, ev *model.NotificationEvent) error
}

// Monitor observes inventory items after every quantity/status mutation.
// It only moves NotificationEvent state; delivery is the router's problem.
type Monitor struct {
	events   *store.EventStore
	dispatch Dispatcher // optional
	logger   *slog.Logger
}

func NewMonitor(events *store.EventStore, dispatch Dispatcher, logger *slog.Logger) *Monitor {
	return &Monitor{events: events, dispatch: dispatch, logger: logger}
}

// Observe reconciles low-stock event state with the item. It never returns
// an error: notification bookkeeping must not fail or roll back the
// inventory mutation that triggered it.
func (m *Monitor) Observe(ctx context.Context, item *model.InventoryItem) {
	if item.IsLowStock() {
		ev := &model.NotificationEvent{
			Meta:    record.Meta{HouseholdID: item.HouseholdID},
			Type:    model.NotifLowStock,
			Status:  model.EventActive,
			Subject: item.Name,
			Detail:  fmt.Sprintf("%s is down to %d (threshold %d)", item.Name, item.Quantity, item.LowStockThreshold),
			RefID:   item.ID,
		}
		ev, created, err := m.events.EnsureActive(ctx, ev)
		if err != nil {
			m.logger.Error("ensure low-stock event", "item_id", item.ID, "error", err)
			return
		}
		if created && m.dispatch != nil {
			if err := m.dispatch.Deliver(ctx, ev); err != nil {
				m.logger.Error("deliver low-stock event", "event_id", ev.ID, "error", err)
			}
		}
		return
	}

	// Above threshold or archived: resolve any active event. A later
	// crossing creates a new event rather than resurrecting this one.
	if _, err := m.events.ResolveActive(ctx, item.HouseholdID, model.NotifLowStock, item.ID); err != nil {
		m.logger.Error("resolve low-stock event", "item_id", item.ID, "error", err)
	}
}
