package relaylist

import (
	"testing"

	"github.com/nostrkit/relaypool/event"
)

func TestParseEventMarkers(t *testing.T) {
	ev := &event.Event{
		Kind: int(event.KindRelayList),
		Tags: event.Tags{
			{"r", "wss://relay.read-only", "read"},
			{"r", "wss://relay.write-only", "write"},
			{"r", "wss://relay.both"},
		},
	}

	entries, err := ParseEvent(ev)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].Read || entries[0].Write {
		t.Errorf("expected read-only entry, got %+v", entries[0])
	}
	if entries[1].Read || !entries[1].Write {
		t.Errorf("expected write-only entry, got %+v", entries[1])
	}
	if !entries[2].Read || !entries[2].Write {
		t.Errorf("expected no-marker entry to mean both, got %+v", entries[2])
	}
}

func TestParseEventWrongKind(t *testing.T) {
	ev := &event.Event{Kind: int(event.KindTextNote)}
	if _, err := ParseEvent(ev); err != ErrWrongKind {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}

func TestBuildTagsRoundTrip(t *testing.T) {
	entries := []Entry{
		{URL: "wss://a", Read: true, Write: true},
		{URL: "wss://b", Read: true},
		{URL: "wss://c", Write: true},
	}
	ev := &event.Event{Kind: int(event.KindRelayList), Tags: BuildTags(entries)}

	decoded, err := ParseEvent(ev)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("expected 3 decoded entries, got %d", len(decoded))
	}
	for i, e := range entries {
		if decoded[i] != e {
			t.Errorf("entry %d: expected %+v, got %+v", i, e, decoded[i])
		}
	}
}

func TestCheckURL(t *testing.T) {
	cases := map[string]bool{
		"wss://relay.example":  true,
		"ws://relay.local.dev": true,
		"":                     false,
		"   ":                  false,
		"https://example.com":  false,
		"wss://noperiod":       false,
	}
	for url, want := range cases {
		if got := CheckURL(url); got != want {
			t.Errorf("CheckURL(%q) = %v, want %v", url, got, want)
		}
	}
}
