package model

import "github.com/ewhitaker/larder/internal/record"

// PushSubscription holds the web-push keys for one member device.
type PushSubscription struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

// Member is a household member. Token is the globally unique secondary id
// used for bearer lookup. Preferences maps "{TYPE}:{CHANNEL}" to the
// member's chosen frequencies; a missing key falls back to the system
// default. UnsubscribeAllEmail overrides every EMAIL key to the empty set.
type Member struct {
	record.Meta
	Name                string                  `json:"name"`
	Email               string                  `json:"email"`
	Role                string                  `json:"role"`
	Token               string                  `json:"token,omitempty"`
	UnsubscribeAllEmail bool                    `json:"unsubscribe_all_email"`
	Preferences         map[string]FrequencySet `json:"preferences,omitempty"`
	Push                *PushSubscription       `json:"push,omitempty"`
}

func (m *Member) RecordMeta() *record.Meta { return &m.Meta }
func (m *Member) Kind() string             { return "member" }

func (m *Member) Index() record.Index {
	return record.Index{Status: m.Role, Token: m.Token}
}
