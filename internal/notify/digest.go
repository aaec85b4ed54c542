package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/store"
)

// RunStats counts one digest run's outcomes across all households.
type RunStats struct {
	Targeted int // members with a non-empty batch
	Sent     int
	Skipped  int // members with nothing to send
	Errored  int
}

// Digest batches all undelivered cadence-eligible events per member into
// one outbound message.
type Digest struct {
	kvs      *kv.Store
	members  *store.MemberStore
	events   *store.EventStore
	resolver *Resolver
	channel  model.Channel
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewDigest(kvs *kv.Store, members *store.MemberStore, events *store.EventStore, resolver *Resolver, channel model.Channel, notifier Notifier, logger *slog.Logger) *Digest {
	return &Digest{
		kvs:      kvs,
		members:  members,
		events:   events,
		resolver: resolver,
		channel:  channel,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// windowStart truncates now to the current cadence window: midnight UTC for
// DAILY, Monday midnight UTC for WEEKLY. An event already ledgered at or
// after the window start is excluded; an event still active into the next
// window becomes eligible again.
func windowStart(cadence model.Frequency, now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if cadence == model.FreqWeekly {
		offset := (int(now.Weekday()) + 6) % 7 // days since Monday
		day = day.AddDate(0, 0, -offset)
	}
	return day
}

// Run executes one digest pass for the cadence over every household.
// Failures are isolated per member: one member's dead mailbox never blocks
// the rest of the household or other households.
func (d *Digest) Run(ctx context.Context, cadence model.Frequency) (RunStats, error) {
	var stats RunStats
	if cadence != model.FreqDaily && cadence != model.FreqWeekly {
		return stats, &fault.ValidationFailed{Field: "cadence", Reason: "must be DAILY or WEEKLY"}
	}

	households, err := d.kvs.Partitions(ctx, "notification_event")
	if err != nil {
		return stats, err
	}

	for _, hh := range households {
		d.runHousehold(ctx, hh, cadence, &stats)
	}

	d.logger.Info("digest run complete", "cadence", cadence,
		"targeted", stats.Targeted, "sent", stats.Sent, "skipped", stats.Skipped, "errored", stats.Errored)
	return stats, nil
}

func (d *Digest) runHousehold(ctx context.Context, householdID string, cadence model.Frequency, stats *RunStats) {
	key := model.LedgerKey(d.channel, cadence)
	start := windowStart(cadence, d.now())

	active, err := d.events.ListActive(ctx, householdID)
	if err != nil {
		d.logger.Error("digest: list events", "household_id", householdID, "error", err)
		stats.Errored++
		return
	}
	var eligible []*model.NotificationEvent
	for i := range active {
		if !active[i].SentSince(key, start) {
			eligible = append(eligible, &active[i])
		}
	}
	if len(eligible) == 0 {
		return
	}

	members, err := d.members.ListByHousehold(ctx, householdID)
	if err != nil {
		d.logger.Error("digest: list members", "household_id", householdID, "error", err)
		stats.Errored++
		return
	}

	// Track delivery outcomes per event across the member loop so the
	// ledger is marked only for events whose every attempted send
	// succeeded; a partial failure leaves the event eligible for retry.
	attempted := make(map[string]bool)
	failed := make(map[string]bool)

	for i := range members {
		member := &members[i]
		if !reachable(member, d.channel) {
			stats.Skipped++
			continue
		}

		var batch []*model.NotificationEvent
		for _, ev := range eligible {
			if ev.Recipient != "" && ev.Recipient != member.ID {
				continue
			}
			if d.resolver.Resolve(member, ev.Type, d.channel).Contains(cadence) {
				batch = append(batch, ev)
			}
		}
		if len(batch) == 0 {
			stats.Skipped++
			continue
		}

		stats.Targeted++
		if err := d.notifier.Send(ctx, member, renderDigest(batch, cadence)); err != nil {
			stats.Errored++
			d.logger.Error("digest send failed",
				"household_id", householdID, "member_id", member.ID, "cadence", cadence, "error", err)
			for _, ev := range batch {
				failed[ev.ID] = true
			}
			continue
		}
		stats.Sent++
		for _, ev := range batch {
			attempted[ev.ID] = true
		}
	}

	sentAt := d.now()
	for _, ev := range eligible {
		if !attempted[ev.ID] || failed[ev.ID] {
			continue
		}
		if err := d.events.MarkLedger(ctx, householdID, ev.ID, key, sentAt); err != nil {
			d.logger.Error("digest: mark ledger", "event_id", ev.ID, "error", err)
		}
	}
}
