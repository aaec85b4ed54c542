package model

import (
	"encoding/json"
	"fmt"
)

// Notification event types.
type NotificationType string

const (
	NotifLowStock           NotificationType = "LOW_STOCK"
	NotifSuggestionResponse NotificationType = "SUGGESTION_RESPONSE"
)

// Delivery channels.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// Delivery frequencies. None means "no delivery" and is never combined
// with the others.
type Frequency string

const (
	FreqNone      Frequency = "NONE"
	FreqImmediate Frequency = "IMMEDIATE"
	FreqDaily     Frequency = "DAILY"
	FreqWeekly    Frequency = "WEEKLY"
)

func (f Frequency) Valid() bool {
	switch f {
	case FreqNone, FreqImmediate, FreqDaily, FreqWeekly:
		return true
	}
	return false
}

// FrequencySet is an ordered set of frequencies. Stored preference values
// are historically either a single frequency or a list under the same key;
// UnmarshalJSON is the single normalization boundary: after it, everything
// downstream sees a deduplicated list and never branches on the stored shape.
type FrequencySet []Frequency

func (s *FrequencySet) UnmarshalJSON(data []byte) error {
	var one Frequency
	if err := json.Unmarshal(data, &one); err == nil {
		*s = normalizeFrequencies([]Frequency{one})
		return nil
	}
	var many []Frequency
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("frequency set: expected string or list: %w", err)
	}
	*s = normalizeFrequencies(many)
	return nil
}

func normalizeFrequencies(in []Frequency) FrequencySet {
	out := make(FrequencySet, 0, len(in))
	seen := make(map[Frequency]bool, len(in))
	for _, f := range in {
		if !f.Valid() || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func (s FrequencySet) Contains(f Frequency) bool {
	for _, v := range s {
		if v == f {
			return true
		}
	}
	return false
}

// PrefKey is the member-preference map key for a type/channel pair.
func PrefKey(t NotificationType, ch Channel) string {
	return string(t) + ":" + string(ch)
}

// LedgerKey is the delivery-ledger map key for a channel/cadence pair.
func LedgerKey(ch Channel, f Frequency) string {
	return string(ch) + ":" + string(f)
}
