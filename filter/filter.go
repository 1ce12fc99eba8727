// Package filter implements Nostr subscription filters and the
// FilterList OR-of-filters used both to describe server-side REQ
// subscriptions and to re-verify events on the client.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nostrkit/relaypool/event"
)

// Filter is a single predicate over events. Every present field narrows
// the match (AND across fields); a list field matches if any of its
// values match (OR within a field). A zero-value Filter with no fields
// set matches every event.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string // single-letter tag type -> acceptable values
	Since   *int64
	Until   *int64
	Limit   int
}

// Matches reports whether ev satisfies every present field of f.
func (f *Filter) Matches(ev *event.Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, ev.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	for key, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		matched := false
		for _, v := range ev.Tags.Values(key) {
			if containsString(values, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MarshalJSON renders the JSON shape actually sent on the wire: a plain
// object whose tag fields are dynamically keyed ("#e", "#p", ...).
// Filter.Tags is keyed without the '#' internally; it is added/stripped
// only at the wire boundary.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 6+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	for key, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		m["#"+key] = values
	}
	return json.Marshal(m)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*f = Filter{Tags: make(map[string][]string)}

	for key, raw := range m {
		switch key {
		case "ids":
			if err := json.Unmarshal(raw, &f.IDs); err != nil {
				return err
			}
		case "authors":
			if err := json.Unmarshal(raw, &f.Authors); err != nil {
				return err
			}
		case "kinds":
			if err := json.Unmarshal(raw, &f.Kinds); err != nil {
				return err
			}
		case "since":
			var v int64
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			f.Since = &v
		case "until":
			var v int64
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			f.Until = &v
		case "limit":
			if err := json.Unmarshal(raw, &f.Limit); err != nil {
				return err
			}
		default:
			if strings.HasPrefix(key, "#") && len(key) == 2 {
				var values []string
				if err := json.Unmarshal(raw, &values); err != nil {
					return err
				}
				f.Tags[key[1:]] = values
			}
		}
	}
	return nil
}

// FilterList is an ordered OR-of-filters: it matches an event iff any
// contained filter matches.
type FilterList []Filter

// Matches reports whether any filter in the list matches ev.
func (fl FilterList) Matches(ev *event.Event) bool {
	for i := range fl {
		if fl[i].Matches(ev) {
			return true
		}
	}
	return false
}

// ToJSONArray renders the list as the bare sequence of filter objects
// used inside REQ/COUNT frames, useful for assertions against a relay's
// outgoing queue per the subscription-lifecycle testable property.
func (fl FilterList) ToJSONArray() ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(fl))
	for i, f := range fl {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// Equal compares two filter lists by their canonical JSON encoding,
// primarily for tests asserting round-trip fidelity.
func (fl FilterList) Equal(other FilterList) bool {
	a, errA := json.Marshal(fl)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
