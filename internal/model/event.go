package model

import (
	"time"

	"github.com/ewhitaker/larder/internal/record"
)

// Notification event statuses.
const (
	EventActive   = "active"
	EventResolved = "resolved"
)

// LedgerEntry records one completed delivery for a channel/cadence key.
type LedgerEntry struct {
	LastSentAt time.Time `json:"last_sent_at"`
}

// NotificationEvent is a pending or resolved fact worth telling members
// about. The delivery ledger is embedded so marking a delivery is a
// single-record conditional write, never a cross-record transaction.
type NotificationEvent struct {
	record.Meta
	Type    NotificationType `json:"type"`
	Status  string           `json:"status"`
	Subject string           `json:"subject"`
	Detail  string           `json:"detail,omitempty"`
	RefID   string           `json:"ref_id,omitempty"`
	// Recipient narrows delivery to a single member id; empty means all
	// eligible household members.
	Recipient string                 `json:"recipient,omitempty"`
	Ledger    map[string]LedgerEntry `json:"delivery_ledger,omitempty"`
}

func (e *NotificationEvent) RecordMeta() *record.Meta { return &e.Meta }
func (e *NotificationEvent) Kind() string             { return "notification_event" }

func (e *NotificationEvent) Index() record.Index {
	return record.Index{Status: e.Status, RefID: e.RefID}
}

// SentSince reports whether the ledger key was marked at or after the
// given window start.
func (e *NotificationEvent) SentSince(key string, windowStart time.Time) bool {
	entry, ok := e.Ledger[key]
	return ok && !entry.LastSentAt.Before(windowStart)
}
