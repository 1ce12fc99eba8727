// Package subscription identifies a (subscription id, FilterList) pair
// and renders it as the outgoing wire frames a relay connection writes.
package subscription

import (
	"encoding/json"

	"github.com/nostrkit/relaypool/filter"
)

// Subscription is a client-named stream over a FilterList. It carries no
// back-pointer to its owning relay or manager; dispatch is always by id,
// per the cyclic-reference design note.
type Subscription struct {
	ID      string
	Filters filter.FilterList
}

// New returns a Subscription with the given id and filters.
func New(id string, filters filter.FilterList) *Subscription {
	return &Subscription{ID: id, Filters: filters}
}

// ToReqFrame renders ["REQ", id, filter_0, filter_1, ...].
func (s *Subscription) ToReqFrame() ([]byte, error) {
	return marshalFrame("REQ", s.ID, s.Filters)
}

// ToCloseFrame renders ["CLOSE", id].
func (s *Subscription) ToCloseFrame() ([]byte, error) {
	frame := []interface{}{"CLOSE", s.ID}
	return json.Marshal(frame)
}

// ToCountFrame renders ["COUNT", id, filter_0, ...].
func (s *Subscription) ToCountFrame() ([]byte, error) {
	return marshalFrame("COUNT", s.ID, s.Filters)
}

func marshalFrame(label, id string, filters filter.FilterList) ([]byte, error) {
	frame := make([]interface{}, 0, 2+len(filters))
	frame = append(frame, label, id)
	for i := range filters {
		frame = append(frame, filters[i])
	}
	return json.Marshal(frame)
}
