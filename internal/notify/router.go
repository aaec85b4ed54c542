package notify

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/store"
)

// Router decides, per recipient and channel, whether an event goes out now,
// waits for a digest, or is skipped. Only confirmed sends mark the ledger;
// marking before delivery would turn a send failure into silent loss.
type Router struct {
	members   *store.MemberStore
	events    *store.EventStore
	resolver  *Resolver
	notifiers map[model.Channel]Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewRouter(members *store.MemberStore, events *store.EventStore, resolver *Resolver, notifiers map[model.Channel]Notifier, logger *slog.Logger) *Router {
	return &Router{
		members:   members,
		events:    events,
		resolver:  resolver,
		notifiers: notifiers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// channels returns the configured channels in stable order.
func (r *Router) channels() []model.Channel {
	chs := make([]model.Channel, 0, len(r.notifiers))
	for ch := range r.notifiers {
		chs = append(chs, ch)
	}
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
	return chs
}

// recipients resolves the event's candidate recipients: the designated
// member, or every household member.
func (r *Router) recipients(ctx context.Context, ev *model.NotificationEvent) ([]model.Member, error) {
	if ev.Recipient != "" {
		m, err := r.members.Get(ctx, ev.HouseholdID, ev.Recipient)
		if err != nil || m == nil {
			return nil, err
		}
		return []model.Member{*m}, nil
	}
	return r.members.ListByHousehold(ctx, ev.HouseholdID)
}

// Deliver runs the immediate path for an active event. DAILY/WEEKLY
// preferences are left untouched; the unmarked cadence keys are what make
// the event visible to the digest aggregator. The IMMEDIATE
// ledger key is marked only once every attempted send succeeded, so a
// partial failure keeps the event eligible for a retry pass; a bounded
// duplicate beats a silent loss.
func (r *Router) Deliver(ctx context.Context, ev *model.NotificationEvent) error {
	if ev.Status != model.EventActive {
		return nil
	}
	candidates, err := r.recipients(ctx, ev)
	if err != nil {
		return err
	}

	for _, ch := range r.channels() {
		key := model.LedgerKey(ch, model.FreqImmediate)
		if _, done := ev.Ledger[key]; done {
			continue
		}

		attempted, failed := 0, 0
		for i := range candidates {
			member := &candidates[i]
			freqs := r.resolver.Resolve(member, ev.Type, ch)
			if !freqs.Contains(model.FreqImmediate) || !reachable(member, ch) {
				continue
			}
			attempted++
			if err := r.notifiers[ch].Send(ctx, member, renderEvent(ev)); err != nil {
				failed++
				r.logger.Error("immediate send failed",
					"event_id", ev.ID, "member_id", member.ID, "channel", ch, "error", err)
			}
		}

		if attempted > 0 && failed == 0 {
			if err := r.events.MarkLedger(ctx, ev.HouseholdID, ev.ID, key, r.now()); err != nil {
				r.logger.Error("mark immediate ledger", "event_id", ev.ID, "channel", ch, "error", err)
			}
		}
	}
	return nil
}
