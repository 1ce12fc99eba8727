// Package relaymanager implements the fleet controller that owns a set
// of relay connections sharing one MessagePool: adding/removing relays,
// fanning a subscription out across the fleet, publishing events, and
// running every relay's connect task concurrently with per-relay
// deadlines.
package relaymanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nostrkit/relaypool/event"
	"github.com/nostrkit/relaypool/filter"
	"github.com/nostrkit/relaypool/messagepool"
	"github.com/nostrkit/relaypool/relay"
	"github.com/nostrkit/relaypool/relaylist"
)

var (
	// ErrUnknownRelay is returned when an operation names a relay url the
	// manager has not been told about.
	ErrUnknownRelay = errors.New("relaymanager: unknown relay")
	// ErrRelayNotReadable is returned by subscription operations targeting
	// a write-only relay.
	ErrRelayNotReadable = errors.New("relaymanager: relay does not accept subscriptions")
	// ErrRelayNotWritable is returned by PublishEvent when every selected
	// relay is read-only.
	ErrRelayNotWritable = errors.New("relaymanager: relay does not accept publishes")
	// ErrEventUnsigned is returned by PublishEvent when ev fails
	// Verify(), matching the protocol-level rejection described in §4.6.
	ErrEventUnsigned = errors.New("relaymanager: event is unsigned or fails verification")
)

// RelayError pairs a relay URL with the error that occurred for it, used
// whenever an operation fans out across the fleet and must report
// per-relay outcomes rather than a single aggregate error.
type RelayError struct {
	URL string
	Err error
}

func (e *RelayError) Error() string { return fmt.Sprintf("%s: %v", e.URL, e.Err) }
func (e *RelayError) Unwrap() error { return e.Err }

// Manager owns a fleet of relay.Relay connections and the MessagePool
// they all write into.
type Manager struct {
	mu     sync.RWMutex
	relays map[string]*relay.Relay
	pool   *messagepool.MessagePool

	defaultOpts []relay.Option
	dialTimeout time.Duration
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithDefaultRelayOptions applies opts to every relay added without its
// own explicit options.
func WithDefaultRelayOptions(opts ...relay.Option) Option {
	return func(m *Manager) { m.defaultOpts = opts }
}

// WithDialTimeout bounds how long RunSync waits for each relay's initial
// handshake before treating it as a timeout fault.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

// WithDedupStore swaps the MessagePool's event-dedup backend, e.g. to a
// messagepool.RedisDedupStore shared by a fleet of Manager processes
// that must agree on a single "already delivered" set. The default is
// an in-process map, sufficient for a single process.
func WithDedupStore(store messagepool.DedupStore) Option {
	return func(m *Manager) { m.pool.SetDedupStore(store) }
}

// New returns a Manager backed by a fresh MessagePool in the given dedup
// mode.
func New(mode messagepool.DedupMode, opts ...Option) *Manager {
	m := &Manager{
		relays:      make(map[string]*relay.Relay),
		pool:        messagepool.New(mode),
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pool returns the shared MessagePool every relay forwards into.
func (m *Manager) Pool() *messagepool.MessagePool { return m.pool }

// AddRelay registers a new relay connection under url with the given
// read/write policy. It is a no-op, returning the existing relay, if url
// is already registered.
func (m *Manager) AddRelay(url string, policy relay.Policy, opts ...relay.Option) *relay.Relay {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.relays[url]; ok {
		return r
	}
	if len(opts) == 0 {
		opts = m.defaultOpts
	}
	// Applied last so the manager's dial timeout is authoritative for every
	// relay it owns, regardless of what defaultOpts/opts specify.
	opts = append(append([]relay.Option{}, opts...), relay.WithHandshakeTimeout(m.dialTimeout))
	r := relay.New(url, policy, m.pool, opts...)
	m.relays[url] = r
	return r
}

// AddRelayList registers every relay named in a parsed NIP-65 relay
// list, translating its read/write markers into relay.Policy.
func (m *Manager) AddRelayList(entries []relaylist.Entry) {
	for _, e := range entries {
		m.AddRelay(e.URL, relay.Policy{Read: e.Read, Write: e.Write})
	}
}

// RemoveRelay closes and forgets the relay at url.
func (m *Manager) RemoveRelay(url string) {
	m.mu.Lock()
	r, ok := m.relays[url]
	delete(m.relays, url)
	m.mu.Unlock()
	if ok {
		r.Close()
	}
}

// RemoveClosedRelays drops every relay whose connect task has reached
// the terminal Closed state, returning the URLs removed.
func (m *Manager) RemoveClosedRelays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for url, r := range m.relays {
		if r.State() == relay.Closed {
			delete(m.relays, url)
			removed = append(removed, url)
		}
	}
	return removed
}

// Relay returns the relay registered at url, if any.
func (m *Manager) Relay(url string) (*relay.Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[url]
	return r, ok
}

// Relays returns every currently registered relay. The slice is a copy;
// mutating it does not affect the manager's fleet.
func (m *Manager) Relays() []*relay.Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*relay.Relay, 0, len(m.relays))
	for _, r := range m.relays {
		out = append(out, r)
	}
	return out
}

// ConnectionStatus is a snapshot of one relay's health counters, used by
// ConnectionStatuses to report fleet health without exposing relay.Relay
// internals.
type ConnectionStatus struct {
	URL                 string
	State               relay.State
	ErrorCounter        int
	TimeoutErrorCounter int
	SentEvents          int
}

// ConnectionStatuses returns a status snapshot for every registered
// relay.
func (m *Manager) ConnectionStatuses() []ConnectionStatus {
	m.mu.RLock()
	relays := make([]*relay.Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()

	out := make([]ConnectionStatus, 0, len(relays))
	for _, r := range relays {
		out = append(out, ConnectionStatus{
			URL:                 r.URL,
			State:               r.State(),
			ErrorCounter:        r.ErrorCounter(),
			TimeoutErrorCounter: r.TimeoutErrorCounter(),
			SentEvents:          r.SentEvents(),
		})
	}
	return out
}

// AddSubscriptionOnAll opens id/filters on every readable relay in the
// fleet, collecting a *RelayError for each relay that failed rather than
// stopping at the first failure.
func (m *Manager) AddSubscriptionOnAll(id string, filters filter.FilterList) []*RelayError {
	var errs []*RelayError
	for _, r := range m.Relays() {
		if !r.Policy.Read {
			continue
		}
		if err := m.AddSubscriptionOnRelay(r.URL, id, filters); err != nil {
			errs = append(errs, &RelayError{URL: r.URL, Err: err})
		}
	}
	return errs
}

// AddSubscriptionOnRelay opens id/filters on exactly one relay.
func (m *Manager) AddSubscriptionOnRelay(url, id string, filters filter.FilterList) error {
	r, ok := m.Relay(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelay, url)
	}
	if !r.Policy.Read {
		return fmt.Errorf("%w: %s", ErrRelayNotReadable, url)
	}
	return r.AddSubscription(id, filters)
}

// CloseSubscriptionOnAll closes id on every relay that currently has it
// open.
func (m *Manager) CloseSubscriptionOnAll(id string) {
	for _, r := range m.Relays() {
		if r.HasSubscription(id) {
			_ = r.EnqueueClose(id)
		}
	}
}

// CloseSubscriptionOnRelay closes id on exactly one relay.
func (m *Manager) CloseSubscriptionOnRelay(url, id string) error {
	r, ok := m.Relay(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelay, url)
	}
	return r.EnqueueClose(id)
}

// PublishEvent writes ev to every writable relay in the fleet. ev must
// already be signed; an unsigned or invalid event is rejected before any
// relay is touched, per §4.6's "Publish rejects invalid events" rule.
func (m *Manager) PublishEvent(ev *event.Event) []*RelayError {
	if !ev.Verify() {
		return []*RelayError{{URL: "*", Err: ErrEventUnsigned}}
	}

	var errs []*RelayError
	wrote := false
	for _, r := range m.Relays() {
		if !r.Policy.Write {
			continue
		}
		wrote = true
		if err := r.Publish(ev); err != nil {
			errs = append(errs, &RelayError{URL: r.URL, Err: err})
		}
	}
	if !wrote {
		errs = append(errs, &RelayError{URL: "*", Err: ErrRelayNotWritable})
	}
	return errs
}

// RunSync launches every registered relay's Connect task under one
// errgroup.Group and blocks until ctx is canceled or every task returns.
// A relay that exhausts its error/timeout threshold ends its own task by
// returning nil rather than an error, so one dead relay never cancels
// its siblings through errgroup's shared context; only ctx's own
// cancellation (or Connect returning ctx.Err()) brings every relay down
// together.
func (m *Manager) RunSync(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range m.Relays() {
		r := r
		g.Go(func() error {
			return r.Connect(gctx)
		})
	}
	return g.Wait()
}

// Shutdown closes every registered relay and forgets them.
func (m *Manager) Shutdown() {
	for _, r := range m.Relays() {
		r.Close()
	}
	m.mu.Lock()
	m.relays = make(map[string]*relay.Relay)
	m.mu.Unlock()
}
