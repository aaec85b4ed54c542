package model

import (
	"encoding/json"
	"testing"
)

func TestFrequencySetAcceptsScalar(t *testing.T) {
	var prefs map[string]FrequencySet
	data := []byte(`{"LOW_STOCK:EMAIL": "DAILY"}`)
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	set := prefs["LOW_STOCK:EMAIL"]
	if len(set) != 1 || set[0] != FreqDaily {
		t.Errorf("set = %v, want [DAILY]", set)
	}
}

func TestFrequencySetAcceptsList(t *testing.T) {
	var set FrequencySet
	if err := json.Unmarshal([]byte(`["IMMEDIATE","WEEKLY"]`), &set); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(set) != 2 || !set.Contains(FreqImmediate) || !set.Contains(FreqWeekly) {
		t.Errorf("set = %v", set)
	}
}

func TestFrequencySetDedupesAndDropsUnknown(t *testing.T) {
	var set FrequencySet
	if err := json.Unmarshal([]byte(`["DAILY","DAILY","HOURLY"]`), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(set) != 1 || set[0] != FreqDaily {
		t.Errorf("set = %v, want [DAILY]", set)
	}
}

func TestFrequencySetRejectsWrongShape(t *testing.T) {
	var set FrequencySet
	if err := json.Unmarshal([]byte(`{"freq":"DAILY"}`), &set); err == nil {
		t.Error("expected error for object shape")
	}
}

func TestLedgerAndPrefKeys(t *testing.T) {
	if got := PrefKey(NotifLowStock, ChannelEmail); got != "LOW_STOCK:EMAIL" {
		t.Errorf("pref key = %q", got)
	}
	if got := LedgerKey(ChannelPush, FreqWeekly); got != "PUSH:WEEKLY" {
		t.Errorf("ledger key = %q", got)
	}
}
