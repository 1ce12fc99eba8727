package relaymanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrkit/relaypool/event"
	"github.com/nostrkit/relaypool/messagepool"
	"github.com/nostrkit/relaypool/relay"
)

// wsEchoServer starts a test WebSocket server that accepts the handshake
// after delay, then idles until the client disconnects.
func wsEchoServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv
}

func toWS(httpURL string) string {
	if len(httpURL) > 4 && httpURL[:4] == "http" {
		return "ws" + httpURL[4:]
	}
	return httpURL
}

// countingDedupStore counts MarkSeen calls so a test can confirm
// WithDedupStore actually reaches the Manager's MessagePool.
type countingDedupStore struct {
	inner messagepool.DedupStore
	calls int
}

func (c *countingDedupStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.calls++
	return c.inner.MarkSeen(ctx, key, ttl)
}

func (c *countingDedupStore) Close() error { return c.inner.Close() }

func TestWithDedupStoreWiresIntoPool(t *testing.T) {
	m := New(messagepool.FirstResponseOnly)
	store := &countingDedupStore{inner: messagepool.NewMemoryDedupStore(m.Pool())}
	WithDedupStore(store)(m)

	raw, _ := json.Marshal([]interface{}{
		"EVENT", "sub1", map[string]interface{}{
			"id":         "abc",
			"pubkey":     "da15317263858ad496a21c79c6dc5f5cf9af880adf3a6794dbbf2883186c9d81",
			"created_at": 1671406583,
			"kind":       1,
			"tags":       []interface{}{},
			"content":    "hello",
			"sig":        "00",
		},
	})
	m.Pool().AddMessage(raw, "wss://relay.example")

	if store.calls != 1 {
		t.Fatalf("expected the manager's pool to consult the configured DedupStore, got %d calls", store.calls)
	}
}

func TestAddRelayIsIdempotent(t *testing.T) {
	m := New(messagepool.AllCopies)
	r1 := m.AddRelay("wss://relay.example", relay.Policy{Read: true, Write: true})
	r2 := m.AddRelay("wss://relay.example", relay.Policy{Read: false})
	if r1 != r2 {
		t.Fatal("expected AddRelay to return the existing relay on a duplicate URL")
	}
	if len(m.Relays()) != 1 {
		t.Fatalf("expected exactly one relay registered, got %d", len(m.Relays()))
	}
}

func TestAddSubscriptionOnRelayRejectsWriteOnly(t *testing.T) {
	m := New(messagepool.AllCopies)
	m.AddRelay("wss://relay.example", relay.Policy{Read: false, Write: true})

	err := m.AddSubscriptionOnRelay("wss://relay.example", "sub1", nil)
	if err == nil {
		t.Fatal("expected an error subscribing on a write-only relay")
	}
}

func TestAddSubscriptionOnRelayUnknownURL(t *testing.T) {
	m := New(messagepool.AllCopies)
	if err := m.AddSubscriptionOnRelay("wss://nope", "sub1", nil); err == nil {
		t.Fatal("expected an error for an unregistered relay URL")
	}
}

func TestPublishEventRejectsUnsigned(t *testing.T) {
	m := New(messagepool.AllCopies)
	m.AddRelay("wss://relay.example", relay.Policy{Read: true, Write: true})

	ev := event.New("abc", event.KindTextNote, "hello")
	errs := m.PublishEvent(ev)
	if len(errs) != 1 || errs[0].Err != ErrEventUnsigned {
		t.Fatalf("expected unsigned event to be rejected before touching any relay, got %+v", errs)
	}
}

func TestRemoveClosedRelaysPrunesTerminalStates(t *testing.T) {
	m := New(messagepool.AllCopies)
	m.AddRelay("wss://a", relay.Policy{Read: true})
	m.AddRelay("wss://b", relay.Policy{Read: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, r := range m.Relays() {
		r.Connect(ctx)
	}

	removed := m.RemoveClosedRelays()
	if len(removed) != 2 {
		t.Fatalf("expected both relays pruned as closed, got %v", removed)
	}
	if len(m.Relays()) != 0 {
		t.Fatal("expected the fleet to be empty after pruning")
	}
}

// TestRunSyncIsolatesOneRelaysTimeout reproduces the manager-isolation
// scenario: one relay's handshake succeeds quickly, the other's handshake
// is slower than the manager's dial timeout. RunSync must complete, and
// only the slow relay should show a timeout fault.
func TestRunSyncIsolatesOneRelaysTimeout(t *testing.T) {
	fast := wsEchoServer(t, 10*time.Millisecond)
	defer fast.Close()
	slow := wsEchoServer(t, 500*time.Millisecond)
	defer slow.Close()

	m := New(messagepool.AllCopies, WithDialTimeout(150*time.Millisecond))
	m.AddRelay(toWS(fast.URL), relay.Policy{Read: true, Write: true})
	m.AddRelay(toWS(slow.URL), relay.Policy{Read: true, Write: true},
		relay.WithErrorThreshold(0), relay.WithTimeoutErrorThreshold(0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.RunSync(ctx) }()

	time.Sleep(300 * time.Millisecond)
	for _, r := range m.Relays() {
		r.Close()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSync did not complete after both relays were closed")
	}

	statuses := map[string]ConnectionStatus{}
	for _, s := range m.ConnectionStatuses() {
		statuses[s.URL] = s
	}

	slowStatus := statuses[toWS(slow.URL)]
	if slowStatus.State != relay.Closed {
		t.Fatalf("expected slow relay to be terminal Closed, got %v", slowStatus.State)
	}
	if slowStatus.TimeoutErrorCounter != 1 {
		t.Fatalf("expected slow relay timeout_error_counter == 1, got %d", slowStatus.TimeoutErrorCounter)
	}
}
