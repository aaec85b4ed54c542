// Package notify routes notification events to members: immediately, into
// a digest, or not at all, according to each member's resolved preferences.
// Delivery is best-effort and decoupled; nothing in here ever fails the
// state mutation that produced an event.
package notify

import (
	"context"

	"github.com/ewhitaker/larder/internal/model"
)

// Message is one rendered outbound notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Notifier is the external delivery sink for one channel. Send failures are
// typed (fault.NotifierUnavailable) so permanent recipient problems can be
// told apart from transient outages; neither marks the delivery ledger.
type Notifier interface {
	Send(ctx context.Context, member *model.Member, msg Message) error
}

// reachable reports whether the member can be addressed on the channel at
// all. Unreachable members are skipped rather than counted as failures, so
// a member without an email or push subscription never pins an event in
// the retry path.
func reachable(m *model.Member, ch model.Channel) bool {
	switch ch {
	case model.ChannelEmail:
		return m.Email != ""
	case model.ChannelPush:
		return m.Push != nil
	}
	return false
}
