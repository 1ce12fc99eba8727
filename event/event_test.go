package event

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

// TestCanonicalID reproduces the known-answer fixture from the
// testable-properties section: the public key derived from private key
// 964b29795d621cdacf05fd94fb23206c88742db1fa50b34d7545f3a2221d8124,
// content "Hello Nostr!", created_at 1671406583, kind 1, empty tags,
// must hash to the exact id below — a regression in canonical
// serialization would silently change this value.
func TestCanonicalID(t *testing.T) {
	e := &Event{
		PubKey:    "da15317263858ad496a21c79c6dc5f5cf9af880adf3a6794dbbf2883186c9d81",
		CreatedAt: 1671406583,
		Kind:      1,
		Tags:      Tags{},
		Content:   "Hello Nostr!",
	}
	const wantID = "23411895658d374ec922adf774a70172290b2c738ae67815bd8945e5d8fff3bb"
	id, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	if id != wantID {
		t.Fatalf("canonical id mismatch:\n got  %s\n want %s", id, wantID)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	pub := priv.PubKey().SerializeCompressed()[1:]

	e := New(hex.EncodeToString(pub), 1, "hello")
	if err := e.Sign(priv.Serialize()); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !e.Verify() {
		t.Fatal("expected freshly signed event to verify")
	}

	mutations := []func(*Event){
		func(ev *Event) { ev.Content = "tampered" },
		func(ev *Event) { ev.CreatedAt++ },
		func(ev *Event) { ev.Kind = 2 },
		func(ev *Event) { ev.Tags = Tags{{"e", "x"}} },
		func(ev *Event) { ev.PubKey = flipLastHex(ev.PubKey) },
		func(ev *Event) { ev.ID = flipLastHex(ev.ID) },
		func(ev *Event) { ev.Sig = flipLastHex(ev.Sig) },
	}
	for i, mutate := range mutations {
		clone := *e
		mutate(&clone)
		if clone.Verify() {
			t.Errorf("mutation %d: expected verify to fail", i)
		}
	}
}

// flipLastHex replaces the last hex digit of s with a different one, so
// the mutation always changes the value.
func flipLastHex(s string) string {
	last := "0"
	if s[len(s)-1] == '0' {
		last = "1"
	}
	return s[:len(s)-1] + last
}

func TestRoundTripJSON(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pub := priv.PubKey().SerializeCompressed()[1:]
	e := New(hex.EncodeToString(pub), 1, "round trip")
	e.Tags = Tags{{"e", "abc"}, {"p", "def"}}
	if err := e.Sign(priv.Serialize()); err != nil {
		t.Fatal(err)
	}

	raw, err := e.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := FromJSON(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !e.Equal(parsed) {
		t.Fatalf("round trip id mismatch: %+v vs %+v", e, parsed)
	}
}

func TestValidateContentForbidden(t *testing.T) {
	e := &Event{
		PubKey:  "da15317263858ad496a21c79c6dc5f5cf9af880adf3a6794dbbf2883186c9d81",
		Kind:    int(KindContactList),
		Content: "should not be here",
	}
	if err := e.Validate(); err == nil {
		t.Fatal("expected content-forbidden error for contact list")
	}
}
