package messagepool

import "github.com/nostrkit/relaypool/event"

// RelayMessage is the tagged union of everything a relay connection can
// hand to the pool. Implementations are sealed to this package's six
// concrete types via the unexported marker method, so callers dispatch
// with a type switch instead of probing fields at runtime.
type RelayMessage interface {
	relayMessage()
	// URL returns the relay that produced this message.
	URL() string
}

type base struct {
	RelayURL string
}

func (base) relayMessage() {}
func (b base) URL() string { return b.RelayURL }

// EventMessage wraps an event delivered in response to a subscription.
type EventMessage struct {
	base
	SubscriptionID string
	Event          *event.Event
}

// NoticeMessage is a human-readable message from the relay, not tied to
// any subscription.
type NoticeMessage struct {
	base
	Text string
}

// OkMessage reports whether a published event was accepted.
type OkMessage struct {
	base
	EventID string
	Accepted bool
	Message  string
}

// EoseMessage marks the end of stored events for a subscription.
type EoseMessage struct {
	base
	SubscriptionID string
}

// AuthMessage carries a NIP-42 challenge from the relay.
type AuthMessage struct {
	base
	Challenge string
}

// CountMessage carries the result of a COUNT request.
type CountMessage struct {
	base
	SubscriptionID string
	Count          int
}
