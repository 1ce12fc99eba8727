package messagepool

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// recordingDedupStore wraps MemoryDedupStore and counts MarkSeen calls,
// so tests can confirm handleEvent actually consults the pluggable
// DedupStore rather than a bare map.
type recordingDedupStore struct {
	inner   *MemoryDedupStore
	calls   int
	lastTTL time.Duration
}

func (r *recordingDedupStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.calls++
	r.lastTTL = ttl
	return r.inner.MarkSeen(ctx, key, ttl)
}

func (r *recordingDedupStore) Close() error { return r.inner.Close() }

func eventFrame(id, subID string) []byte {
	raw, _ := json.Marshal([]interface{}{
		"EVENT", subID, map[string]interface{}{
			"id":         id,
			"pubkey":     "da15317263858ad496a21c79c6dc5f5cf9af880adf3a6794dbbf2883186c9d81",
			"created_at": 1671406583,
			"kind":       1,
			"tags":       []interface{}{},
			"content":    "hello",
			"sig":        "00",
		},
	})
	return raw
}

func TestDedupFirstResponseOnly(t *testing.T) {
	p := New(FirstResponseOnly)
	for i := 0; i < 3; i++ {
		p.AddMessage(eventFrame("abc", "sub1"), "wss://relay.example")
	}
	events := p.GetAllEvents()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event in first-response-only mode, got %d", len(events))
	}
}

func TestDedupAllCopies(t *testing.T) {
	p := New(AllCopies)
	urls := []string{"wss://a", "wss://b", "wss://c"}
	for _, u := range urls {
		p.AddMessage(eventFrame("abc", "sub1"), u)
	}
	events := p.GetAllEvents()
	if len(events) != len(urls) {
		t.Fatalf("expected %d events in all-copies mode, got %d", len(urls), len(events))
	}
	seen := map[string]bool{}
	for _, e := range events {
		seen[e.RelayURL] = true
	}
	for _, u := range urls {
		if !seen[u] {
			t.Errorf("missing event from relay %s", u)
		}
	}
}

func TestOkFrameAcceptance(t *testing.T) {
	p := New(AllCopies)
	raw, _ := json.Marshal([]interface{}{"OK", "deadbeef", false, "blocked: not on white-list"})
	p.AddMessage(raw, "wss://relay.example")

	oks := p.GetAllOks()
	if len(oks) != 1 {
		t.Fatalf("expected exactly 1 OK message, got %d", len(oks))
	}
	if oks[0].Accepted != false || oks[0].Message != "blocked: not on white-list" {
		t.Fatalf("unexpected OK message: %+v", oks[0])
	}
}

func TestOkFrameWrongLengthRejected(t *testing.T) {
	p := New(AllCopies)
	raw, _ := json.Marshal([]interface{}{"OK", "deadbeef", false})
	p.AddMessage(raw, "wss://relay.example")

	if p.HasOks() {
		t.Fatal("expected three-element OK frame to be dropped")
	}
	if p.Dropped() != 1 {
		t.Fatalf("expected dropped count 1, got %d", p.Dropped())
	}
}

func TestOkFrameLenientBoolString(t *testing.T) {
	p := New(AllCopies)
	raw, _ := json.Marshal([]interface{}{"OK", "deadbeef", "true", "stored"})
	p.AddMessage(raw, "wss://relay.example")

	oks := p.GetAllOks()
	if len(oks) != 1 || !oks[0].Accepted {
		t.Fatalf("expected lenient string \"true\" to decode as accepted, got %+v", oks)
	}
}

func TestSetDedupStoreIsConsultedByHandleEvent(t *testing.T) {
	p := New(FirstResponseOnly)
	store := &recordingDedupStore{inner: NewMemoryDedupStore(p)}
	p.SetDedupStore(store)
	p.SetDedupTTL(5 * time.Minute)

	p.AddMessage(eventFrame("abc", "sub1"), "wss://relay.example")
	p.AddMessage(eventFrame("abc", "sub1"), "wss://relay.example")

	if store.calls != 2 {
		t.Fatalf("expected the pluggable DedupStore to be consulted twice, got %d", store.calls)
	}
	if store.lastTTL != 5*time.Minute {
		t.Fatalf("expected configured TTL to reach MarkSeen, got %v", store.lastTTL)
	}
	if len(p.GetAllEvents()) != 1 {
		t.Fatalf("expected the duplicate to still be suppressed via the swapped store")
	}
}

func TestMalformedFrameDroppedSilently(t *testing.T) {
	p := New(AllCopies)
	p.AddMessage([]byte(`not json`), "wss://relay.example")
	p.AddMessage([]byte(`["UNKNOWN"]`), "wss://relay.example")

	if p.Dropped() != 2 {
		t.Fatalf("expected 2 dropped frames, got %d", p.Dropped())
	}
	snap := p.GetAll()
	if len(snap.Events)+len(snap.Notices)+len(snap.Oks)+len(snap.Eoses)+len(snap.Auths)+len(snap.Counts) != 0 {
		t.Fatal("expected no messages enqueued from malformed frames")
	}
}
