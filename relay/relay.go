// Package relay implements the per-URL protocol state machine for a
// single Nostr relay connection: connect, send outgoing frames, receive
// inbound frames, validate them, forward into a shared MessagePool, and
// track error/timeout/EOSE counters.
package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/singleflight"

	"github.com/nostrkit/relaypool/event"
	"github.com/nostrkit/relaypool/filter"
	"github.com/nostrkit/relaypool/messagepool"
	"github.com/nostrkit/relaypool/subscription"
)

// State is one of the five positions in the relay connection's lifecycle.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Policy describes whether a relay may be read from, written to, or
// both.
type Policy struct {
	Read  bool
	Write bool
}

// ProxyType selects how Options.Proxy is applied to the outbound
// WebSocket dial.
type ProxyType string

const (
	ProxyHTTP   ProxyType = "http"
	ProxySOCKS5 ProxyType = "socks5"
)

// ProxyConfig configures an optional outbound proxy for the WebSocket
// connection.
type ProxyConfig struct {
	Host string
	Port int
	Type ProxyType
}

var (
	// ErrNotRegistered is returned when an operation targets a
	// subscription id the relay does not recognize.
	ErrNotRegistered = errors.New("relay: subscription not registered")
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("relay: connection closed")
)

// Relay is a single relay connection: URL, policy, connection state,
// subscriptions, outgoing queue, and the counters the state machine and
// manager use to decide retry/removal.
type Relay struct {
	URL    string
	Policy Policy

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	subscriptions map[string]*subscription.Subscription

	errorCounter        int
	timeoutErrorCounter int
	eoseCounter         int
	eoseThreshold       int
	sentEvents          int

	errorThreshold        int
	timeoutErrorThreshold int
	closeOnEOSE           bool
	handshakeTimeout      time.Duration
	pingInterval          time.Duration
	pingTimeout           time.Duration
	proxy                 *ProxyConfig
	tlsConfig             *tls.Config
	messageCallback       func(raw []byte, relayURL string)
	logger                *slog.Logger

	outgoing chan []byte

	pool *messagepool.MessagePool

	cachedMetadata *Metadata
	metadataGroup  singleflight.Group
}

// Option configures a Relay at construction time.
type Option func(*Relay)

func WithErrorThreshold(n int) Option        { return func(r *Relay) { r.errorThreshold = n } }
func WithTimeoutErrorThreshold(n int) Option { return func(r *Relay) { r.timeoutErrorThreshold = n } }
func WithCloseOnEOSE(b bool) Option          { return func(r *Relay) { r.closeOnEOSE = b } }
func WithHandshakeTimeout(d time.Duration) Option { return func(r *Relay) { r.handshakeTimeout = d } }
func WithPingInterval(d time.Duration) Option { return func(r *Relay) { r.pingInterval = d } }
func WithPingTimeout(d time.Duration) Option  { return func(r *Relay) { r.pingTimeout = d } }
func WithProxy(p ProxyConfig) Option          { return func(r *Relay) { r.proxy = &p } }
func WithTLS(cfg *tls.Config) Option          { return func(r *Relay) { r.tlsConfig = cfg } }
func WithLogger(l *slog.Logger) Option        { return func(r *Relay) { r.logger = l } }

// WithMessageCallback registers a hook invoked on every validated inbound
// frame just before it is forwarded to the MessagePool.
func WithMessageCallback(fn func(raw []byte, relayURL string)) Option {
	return func(r *Relay) { r.messageCallback = fn }
}

// New constructs a Relay wired to pool. Default thresholds match §4.5:
// error_threshold=3, timeout_error_threshold=10, close_on_eose=true,
// ping interval 60s with a 120s pong deadline.
func New(relayURL string, policy Policy, pool *messagepool.MessagePool, opts ...Option) *Relay {
	r := &Relay{
		URL:                   relayURL,
		Policy:                policy,
		state:                 Idle,
		subscriptions:         make(map[string]*subscription.Subscription),
		errorThreshold:        3,
		timeoutErrorThreshold: 10,
		closeOnEOSE:           true,
		handshakeTimeout:      10 * time.Second,
		pingInterval:          60 * time.Second,
		pingTimeout:           120 * time.Second,
		outgoing:              make(chan []byte, 256),
		pool:                  pool,
		logger:                slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the relay's current lifecycle position.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsConnected reports whether the relay is in the Open state.
func (r *Relay) IsConnected() bool {
	return r.State() == Open
}

// ErrorCounter returns the count of failed connection attempts since the
// last successful connect, which resets it to zero.
func (r *Relay) ErrorCounter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCounter
}

// TimeoutErrorCounter returns the count of handshake timeouts since the
// last successful connect, which resets it to zero.
func (r *Relay) TimeoutErrorCounter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeoutErrorCounter
}

// SentEvents returns the lifetime count of frames written to the socket.
func (r *Relay) SentEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentEvents
}

// AddSubscription atomically registers sub, enqueues its REQ frame, and
// bumps eoseThreshold — the lifetime count of subscriptions opened or
// updated, per §4.5.
func (r *Relay) AddSubscription(id string, filters filter.FilterList) error {
	sub := subscription.New(id, filters)
	req, err := sub.ToReqFrame()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.subscriptions[id] = sub
	r.eoseThreshold++
	r.mu.Unlock()

	r.enqueue(req)
	return nil
}

// UpdateSubscription replaces the filters for an existing subscription
// id and re-emits REQ. Per §4.5 this still increments eoseThreshold,
// since the threshold counts lifetime add/update calls (see DESIGN.md
// for the Open Question this resolves).
func (r *Relay) UpdateSubscription(id string, filters filter.FilterList) error {
	return r.AddSubscription(id, filters)
}

// CloseSubscription removes id from the relay's subscription map. The
// caller (typically RelayManager) is responsible for sending the
// matching CLOSE frame; EnqueueClose does both steps at once.
func (r *Relay) CloseSubscription(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscriptions, id)
}

// EnqueueClose builds and enqueues a CLOSE frame for subscription id,
// if it is currently registered.
func (r *Relay) EnqueueClose(id string) error {
	r.mu.Lock()
	sub, ok := r.subscriptions[id]
	delete(r.subscriptions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	frame, err := sub.ToCloseFrame()
	if err != nil {
		return err
	}
	r.enqueue(frame)
	return nil
}

// HasSubscription reports whether id is currently registered.
func (r *Relay) HasSubscription(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subscriptions[id]
	return ok
}

// Publish enqueues a raw EVENT frame. Delivery confirmation, if any,
// arrives later as an OK message in the MessagePool matched by event id;
// Publish itself carries no acknowledgment semantics beyond counting.
func (r *Relay) Publish(ev *event.Event) error {
	payload, err := ev.ToJSON()
	if err != nil {
		return err
	}
	frame, err := json.Marshal([]interface{}{"EVENT", json.RawMessage(payload)})
	if err != nil {
		return err
	}
	r.enqueue(frame)
	return nil
}

func (r *Relay) enqueue(frame []byte) {
	select {
	case r.outgoing <- frame:
	default:
		// outgoing queue full; drop oldest to make room rather than block
		// the caller, matching the non-suspending enqueue guarantee in §5.
		select {
		case <-r.outgoing:
		default:
		}
		r.outgoing <- frame
	}
}

// Close transitions the relay toward Closed. It is idempotent; the
// connect loop observes the closing state on its next read and exits.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.state == Closed {
		r.mu.Unlock()
		return
	}
	r.state = Closing
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Connect runs the relay's single cooperative connect task: it dials,
// retries per the error/timeout thresholds with a 1s backoff, then runs
// the read/write loop until the connection ends. It returns when the
// relay reaches a terminal Closed state or ctx is canceled.
func (r *Relay) Connect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.setState(Closed)
			return ctx.Err()
		default:
		}

		r.setState(Connecting)
		dialCtx, cancel := context.WithTimeout(ctx, r.handshakeTimeout)
		conn, err := r.dial(dialCtx)
		cancel()
		if err != nil {
			terminal := r.recordConnectFailure(dialCtx, err)
			if terminal {
				// Exhausting the retry budget ends this relay's task without
				// propagating an error: callers running many relays under one
				// errgroup (see relaymanager.Manager.RunSync) rely on one
				// relay giving up to never cancel its siblings. The outcome
				// is observable via State() and the error counters instead.
				r.setState(Closed)
				return nil
			}
			select {
			case <-time.After(1 * time.Second):
			case <-ctx.Done():
				r.setState(Closed)
				return ctx.Err()
			}
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.errorCounter = 0
		r.timeoutErrorCounter = 0
		r.state = Open
		r.mu.Unlock()

		r.runLoop(ctx, conn)

		r.mu.Lock()
		closedForGood := r.state == Closing || ctx.Err() != nil
		r.mu.Unlock()
		if closedForGood {
			r.setState(Closed)
			return nil
		}
		// remote closed without an explicit local Close(): treat like a
		// connection fault and allow the retry/threshold discipline above
		// to decide whether to reconnect.
		terminal := r.recordConnectFailure(ctx, errors.New("remote closed connection"))
		if terminal {
			r.setState(Closed)
			return nil
		}
	}
}

// recordConnectFailure classifies err as a timeout or a generic
// connection fault, bumps the matching counter, and reports whether the
// relay has now exceeded its threshold and should stop retrying.
func (r *Relay) recordConnectFailure(ctx context.Context, err error) (terminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.timeoutErrorCounter++
		r.logger.Warn("relay handshake timeout", "url", r.URL, "count", r.timeoutErrorCounter)
		return r.timeoutErrorCounter > r.timeoutErrorThreshold
	}
	r.errorCounter++
	r.logger.Warn("relay connection error", "url", r.URL, "error", err, "count", r.errorCounter)
	return r.errorCounter > r.errorThreshold
}

func (r *Relay) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = r.tlsConfig

	if r.proxy != nil {
		if err := applyProxy(&dialer, r.proxy); err != nil {
			return nil, err
		}
	}

	conn, _, err := dialer.DialContext(ctx, r.URL, nil)
	return conn, err
}

func applyProxy(dialer *websocket.Dialer, cfg *ProxyConfig) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	switch cfg.Type {
	case ProxyHTTP:
		u := &url.URL{Scheme: "http", Host: addr}
		dialer.Proxy = http.ProxyURL(u)
	case ProxySOCKS5:
		socksDialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return err
		}
		dialer.NetDial = socksDialer.Dial
	default:
		return fmt.Errorf("relay: unknown proxy type %q", cfg.Type)
	}
	return nil
}

// runLoop is the per-connection body of the connect task: while open, it
// drains one outgoing frame (non-blocking check), then blocks on one
// inbound read. Ping/pong liveness resets the read deadline on every
// pong; a read that times out or errors ends the loop so Connect's
// retry discipline can take over.
func (r *Relay) runLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(r.pingTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(r.pingTimeout))

	lastPing := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.Lock()
		closing := r.state == Closing
		r.mu.Unlock()
		if closing {
			return
		}

		if time.Since(lastPing) >= r.pingInterval {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
			lastPing = time.Now()
		}

		select {
		case frame := <-r.outgoing:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			r.mu.Lock()
			r.sentEvents++
			r.mu.Unlock()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		r.handleInbound(raw)

		r.mu.Lock()
		shouldClose := r.closeOnEOSE && r.eoseThreshold > 0 && r.eoseCounter >= r.eoseThreshold
		r.mu.Unlock()
		if shouldClose {
			r.setState(Closing)
			return
		}
	}
}

// handleInbound validates raw per §4.3 and, if valid, forwards it to the
// pool. EVENT frames additionally require the subscription id to be
// registered, the embedded event to verify cryptographically, and the
// subscription's FilterList to match; everything else failing these
// checks is dropped silently.
func (r *Relay) handleInbound(raw []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 1 {
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if !r.validEventFrame(frame) {
			return
		}
	case "EOSE":
		r.mu.Lock()
		r.eoseCounter++
		r.mu.Unlock()
	case "OK", "NOTICE", "AUTH", "COUNT":
		// shape validated uniformly by MessagePool.AddMessage
	default:
		return
	}

	if r.messageCallback != nil {
		r.messageCallback(raw, r.URL)
	}
	r.pool.AddMessage(raw, r.URL)
}

func (r *Relay) validEventFrame(frame []json.RawMessage) bool {
	if len(frame) != 3 {
		return false
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		return false
	}
	r.mu.Lock()
	sub, ok := r.subscriptions[subID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	ev, err := event.FromJSON(frame[2])
	if err != nil {
		return false
	}
	if !ev.Verify() {
		return false
	}
	return sub.Filters.Matches(ev)
}
