// Package relaylist parses and builds NIP-65 kind:10002 relay list
// events: the "r" tags that tell other clients which relays to read a
// user's notes from and which to write new ones to.
package relaylist

import (
	"errors"
	"strings"

	"github.com/nostrkit/relaypool/event"
)

// ErrWrongKind is returned when ParseEvent is given an event whose Kind
// is not KindRelayList.
var ErrWrongKind = errors.New("relaylist: event is not a kind:10002 relay list")

// Entry is one relay URL plus its read/write markers. A tag with no
// marker at all means both.
type Entry struct {
	URL   string
	Read  bool
	Write bool
}

// ParseEvent extracts the relay list from ev's "r" tags.
func ParseEvent(ev *event.Event) ([]Entry, error) {
	if ev.Kind != int(event.KindRelayList) {
		return nil, ErrWrongKind
	}

	var entries []Entry
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		url := tag[1]
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}

		e := Entry{URL: url}
		switch marker {
		case "read":
			e.Read = true
		case "write":
			e.Write = true
		default:
			e.Read = true
			e.Write = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// BuildTags renders entries back into the "r" tag form ParseEvent
// expects, for constructing a kind:10002 event to publish.
func BuildTags(entries []Entry) event.Tags {
	tags := make(event.Tags, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.Read && e.Write:
			tags = append(tags, []string{"r", e.URL})
		case e.Read:
			tags = append(tags, []string{"r", e.URL, "read"})
		case e.Write:
			tags = append(tags, []string{"r", e.URL, "write"})
		}
	}
	return tags
}

// CheckURL reports whether url looks like a usable relay address: a
// non-empty string that contains "ws" (covering both ws:// and wss://)
// and a dot, per the same loose sanity check used to filter malformed
// relay-list entries before dialing them.
func CheckURL(url string) bool {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return false
	}
	if !strings.Contains(trimmed, "ws") {
		return false
	}
	return strings.Contains(trimmed, ".")
}
