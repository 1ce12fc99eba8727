// Package messagepool implements the thread-safe multi-queue
// demultiplexer that parses inbound relay frames, deduplicates events
// across relays, and exposes drainable per-kind queues to the
// application. It never blocks the caller and never surfaces malformed
// frames — they are dropped and counted.
package messagepool

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nostrkit/relaypool/event"
)

// DedupMode selects how MessagePool deduplicates EVENT frames across
// relays.
type DedupMode int

const (
	// AllCopies delivers one EventMessage per (event id, relay url) pair.
	AllCopies DedupMode = iota
	// FirstResponseOnly delivers exactly one EventMessage per event id,
	// regardless of how many relays sent it.
	FirstResponseOnly
)

// MessagePool owns one FIFO per message kind plus the dedup set guarding
// EVENT enqueues. A single mutex serializes the dedup set and every
// queue; it is held only across one message's enqueue.
type MessagePool struct {
	mu   sync.Mutex
	mode DedupMode
	seen map[string]struct{}

	store    DedupStore
	dedupTTL time.Duration

	events  []EventMessage
	notices []NoticeMessage
	oks     []OkMessage
	eoses   []EoseMessage
	auths   []AuthMessage
	counts  []CountMessage

	dropped atomic.Int64
}

// New returns an empty MessagePool operating in the given dedup mode,
// backed by the in-process MemoryDedupStore until SetDedupStore is
// called with something else (e.g. a RedisDedupStore, for a fleet of
// processes sharing one dedup set).
func New(mode DedupMode) *MessagePool {
	p := &MessagePool{
		mode: mode,
		seen: make(map[string]struct{}),
	}
	p.store = NewMemoryDedupStore(p)
	return p
}

// SetDedupStore swaps the backend consulted by handleEvent to decide
// whether an EVENT frame has already been delivered. Safe to call
// before the pool is handed to any relay; not safe to call
// concurrently with AddMessage.
func (p *MessagePool) SetDedupStore(store DedupStore) {
	p.store = store
}

// SetDedupTTL sets the expiry passed to DedupStore.MarkSeen for every
// dedup key. The default, zero, means entries never expire — matching
// MemoryDedupStore's unbounded map. Backends that can expire keys (e.g.
// RedisDedupStore) use this to bound memory instead of growing forever.
func (p *MessagePool) SetDedupTTL(ttl time.Duration) {
	p.dedupTTL = ttl
}

// Dropped returns the lifetime count of frames that failed shape
// validation and were silently discarded.
func (p *MessagePool) Dropped() int64 {
	return p.dropped.Load()
}

// AddMessage parses raw (a JSON array frame) and, if well-formed,
// enqueues the corresponding typed message. Malformed frames are
// dropped silently per the wire-validity rules and counted in Dropped;
// AddMessage reports nothing to the caller.
func (p *MessagePool) AddMessage(raw []byte, relayURL string) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 1 {
		p.dropped.Add(1)
		return
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		p.dropped.Add(1)
		return
	}

	switch label {
	case "EVENT":
		p.handleEvent(frame, relayURL)
	case "NOTICE":
		p.handleNotice(frame, relayURL)
	case "OK":
		p.handleOk(frame, relayURL)
	case "EOSE":
		p.handleEose(frame, relayURL)
	case "AUTH":
		p.handleAuth(frame, relayURL)
	case "COUNT":
		p.handleCount(frame, relayURL)
	default:
		p.dropped.Add(1)
	}
}

func (p *MessagePool) handleEvent(frame []json.RawMessage, relayURL string) {
	if len(frame) != 3 {
		p.dropped.Add(1)
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		p.dropped.Add(1)
		return
	}
	ev, err := event.FromJSON(frame[2])
	if err != nil {
		p.dropped.Add(1)
		return
	}

	key := ev.ID
	if p.mode == AllCopies {
		key = ev.ID + "|" + relayURL
	}

	firstSighting, err := p.store.MarkSeen(context.Background(), key, p.dedupTTL)
	if err != nil {
		p.dropped.Add(1)
		return
	}
	if !firstSighting {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, EventMessage{
		base:           base{relayURL},
		SubscriptionID: subID,
		Event:          ev,
	})
}

func (p *MessagePool) handleNotice(frame []json.RawMessage, relayURL string) {
	if len(frame) != 2 {
		p.dropped.Add(1)
		return
	}
	var text string
	if err := json.Unmarshal(frame[1], &text); err != nil {
		p.dropped.Add(1)
		return
	}
	p.mu.Lock()
	p.notices = append(p.notices, NoticeMessage{base{relayURL}, text})
	p.mu.Unlock()
}

func (p *MessagePool) handleOk(frame []json.RawMessage, relayURL string) {
	if len(frame) != 4 {
		p.dropped.Add(1)
		return
	}
	var eventID string
	if err := json.Unmarshal(frame[1], &eventID); err != nil {
		p.dropped.Add(1)
		return
	}
	accepted, ok := decodeLenientBool(frame[2])
	if !ok {
		p.dropped.Add(1)
		return
	}
	var msg string
	if err := json.Unmarshal(frame[3], &msg); err != nil {
		p.dropped.Add(1)
		return
	}
	p.mu.Lock()
	p.oks = append(p.oks, OkMessage{base{relayURL}, eventID, accepted, msg})
	p.mu.Unlock()
}

// decodeLenientBool accepts a JSON boolean or, per the source's leniency
// requirement, the literal strings "true"/"false".
func decodeLenientBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func (p *MessagePool) handleEose(frame []json.RawMessage, relayURL string) {
	if len(frame) != 2 {
		p.dropped.Add(1)
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		p.dropped.Add(1)
		return
	}
	p.mu.Lock()
	p.eoses = append(p.eoses, EoseMessage{base{relayURL}, subID})
	p.mu.Unlock()
}

func (p *MessagePool) handleAuth(frame []json.RawMessage, relayURL string) {
	if len(frame) != 2 {
		p.dropped.Add(1)
		return
	}
	var challenge string
	if err := json.Unmarshal(frame[1], &challenge); err != nil {
		p.dropped.Add(1)
		return
	}
	p.mu.Lock()
	p.auths = append(p.auths, AuthMessage{base{relayURL}, challenge})
	p.mu.Unlock()
}

func (p *MessagePool) handleCount(frame []json.RawMessage, relayURL string) {
	if len(frame) != 3 {
		p.dropped.Add(1)
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		p.dropped.Add(1)
		return
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(frame[2], &payload); err != nil {
		p.dropped.Add(1)
		return
	}
	p.mu.Lock()
	p.counts = append(p.counts, CountMessage{base{relayURL}, subID, payload.Count})
	p.mu.Unlock()
}

// GetEvent pops the oldest queued EventMessage, or (zero, false) if the
// queue is empty.
func (p *MessagePool) GetEvent() (EventMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return EventMessage{}, false
	}
	m := p.events[0]
	p.events = p.events[1:]
	return m, true
}

// GetAllEvents drains and returns every queued EventMessage.
func (p *MessagePool) GetAllEvents() []EventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

// HasEvents is a non-blocking check for queued events.
func (p *MessagePool) HasEvents() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events) > 0
}

// GetNotice pops the oldest queued NoticeMessage.
func (p *MessagePool) GetNotice() (NoticeMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.notices) == 0 {
		return NoticeMessage{}, false
	}
	m := p.notices[0]
	p.notices = p.notices[1:]
	return m, true
}

// GetAllNotices drains every queued NoticeMessage.
func (p *MessagePool) GetAllNotices() []NoticeMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.notices
	p.notices = nil
	return out
}

// HasNotices is a non-blocking check for queued notices.
func (p *MessagePool) HasNotices() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.notices) > 0
}

// GetOk pops the oldest queued OkMessage.
func (p *MessagePool) GetOk() (OkMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.oks) == 0 {
		return OkMessage{}, false
	}
	m := p.oks[0]
	p.oks = p.oks[1:]
	return m, true
}

// GetAllOks drains every queued OkMessage.
func (p *MessagePool) GetAllOks() []OkMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.oks
	p.oks = nil
	return out
}

// HasOks is a non-blocking check for queued OK messages.
func (p *MessagePool) HasOks() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.oks) > 0
}

// GetEose pops the oldest queued EoseMessage.
func (p *MessagePool) GetEose() (EoseMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.eoses) == 0 {
		return EoseMessage{}, false
	}
	m := p.eoses[0]
	p.eoses = p.eoses[1:]
	return m, true
}

// GetAllEoses drains every queued EoseMessage.
func (p *MessagePool) GetAllEoses() []EoseMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.eoses
	p.eoses = nil
	return out
}

// HasEoses is a non-blocking check for queued EOSE messages.
func (p *MessagePool) HasEoses() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.eoses) > 0
}

// GetAuth pops the oldest queued AuthMessage.
func (p *MessagePool) GetAuth() (AuthMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.auths) == 0 {
		return AuthMessage{}, false
	}
	m := p.auths[0]
	p.auths = p.auths[1:]
	return m, true
}

// GetAllAuths drains every queued AuthMessage.
func (p *MessagePool) GetAllAuths() []AuthMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.auths
	p.auths = nil
	return out
}

// HasAuths is a non-blocking check for queued AUTH messages.
func (p *MessagePool) HasAuths() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.auths) > 0
}

// GetCount pops the oldest queued CountMessage.
func (p *MessagePool) GetCount() (CountMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.counts) == 0 {
		return CountMessage{}, false
	}
	m := p.counts[0]
	p.counts = p.counts[1:]
	return m, true
}

// GetAllCounts drains every queued CountMessage.
func (p *MessagePool) GetAllCounts() []CountMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.counts
	p.counts = nil
	return out
}

// HasCounts is a non-blocking check for queued COUNT messages.
func (p *MessagePool) HasCounts() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts) > 0
}

// Snapshot is a point-in-time copy of every queue, returned by GetAll.
type Snapshot struct {
	Events  []EventMessage
	Notices []NoticeMessage
	Oks     []OkMessage
	Eoses   []EoseMessage
	Auths   []AuthMessage
	Counts  []CountMessage
}

// GetAll drains every queue at once and returns the combined snapshot.
func (p *MessagePool) GetAll() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		Events:  p.events,
		Notices: p.notices,
		Oks:     p.oks,
		Eoses:   p.eoses,
		Auths:   p.auths,
		Counts:  p.counts,
	}
	p.events, p.notices, p.oks, p.eoses, p.auths, p.counts = nil, nil, nil, nil, nil, nil
	return s
}
