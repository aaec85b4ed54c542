package notify

import "github.com/ewhitaker/larder/internal/model"

// Resolver maps (member, notification type, channel) to the member's
// effective delivery frequencies.
type Resolver struct {
	defaultFrequency model.Frequency
}

func NewResolver(defaultFrequency model.Frequency) *Resolver {
	if !defaultFrequency.Valid() {
		defaultFrequency = model.FreqImmediate
	}
	return &Resolver{defaultFrequency: defaultFrequency}
}

// Resolve returns the effective frequency set. A missing preference key
// falls back to the single system default; the member-level email
// unsubscribe forces every EMAIL key to empty regardless of stored values;
// NONE means "no delivery" and never survives into the effective set.
func (r *Resolver) Resolve(m *model.Member, t model.NotificationType, ch model.Channel) model.FrequencySet {
	if ch == model.ChannelEmail && m.UnsubscribeAllEmail {
		return nil
	}
	set, ok := m.Preferences[model.PrefKey(t, ch)]
	if !ok {
		set = model.FrequencySet{r.defaultFrequency}
	}
	out := make(model.FrequencySet, 0, len(set))
	for _, f := range set {
		if f == model.FreqNone {
			continue
		}
		out = append(out, f)
	}
	return out
}
