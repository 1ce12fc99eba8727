package nip04

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func keypair(seed byte) (privHex, pubHex string) {
	raw := make([]byte, 32)
	raw[31] = seed
	priv, pub := btcec.PrivKeyFromBytes(raw)
	return hex.EncodeToString(priv.Serialize()), hex.EncodeToString(pub.SerializeCompressed()[1:])
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	alicePriv, alicePub := keypair(1)
	bobPriv, bobPub := keypair(2)

	a, err := SharedSecret(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("alice shared secret: %v", err)
	}
	b, err := SharedSecret(bobPriv, alicePub)
	if err != nil {
		t.Fatalf("bob shared secret: %v", err)
	}
	if hex.EncodeToString(a) != hex.EncodeToString(b) {
		t.Fatal("expected symmetric shared secret")
	}
}

// TestSharedSecretKnownAnswer pins the testable-properties fixture: sender
// sk 29307c…c9f and recipient sk 4138d1…f983 must derive the exact shared
// secret 646570…44e1 regardless of which side computes it, since the wire
// encryption depends on this raw ECDH X-coordinate being bit-for-bit
// reproducible across implementations.
func TestSharedSecretKnownAnswer(t *testing.T) {
	const (
		senderPriv    = "29307c4354b7d9d311d2cec4878c0de56c93a921d300273c19577e9004de3c9f"
		recipientPriv = "4138d1b6dde34f81c38cef2630429e85847dd5b70508e37f53c844f66f19f983"
		recipientPub  = "a1db8e8b047e1350958a55e0a853151d0e1f685fa5cf3772e01bccc5aa5cb2eb"
		senderPub     = "f3c25355c29f64ea8e9b4e11b583ac0a7d0d8235f156cffec2b73e5756aab206"
		wantSecret    = "646570d4716e0c7e4106788f113a410d5b647225dca3b47ef98bedb64c8044e1"
	)

	fromSender, err := SharedSecret(senderPriv, recipientPub)
	if err != nil {
		t.Fatalf("SharedSecret(sender, recipientPub): %v", err)
	}
	if got := hex.EncodeToString(fromSender); got != wantSecret {
		t.Fatalf("shared secret mismatch:\n got  %s\n want %s", got, wantSecret)
	}

	fromRecipient, err := SharedSecret(recipientPriv, senderPub)
	if err != nil {
		t.Fatalf("SharedSecret(recipient, senderPub): %v", err)
	}
	if got := hex.EncodeToString(fromRecipient); got != wantSecret {
		t.Fatalf("shared secret mismatch:\n got  %s\n want %s", got, wantSecret)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alicePriv, alicePub := keypair(1)
	bobPriv, bobPub := keypair(2)

	wire, err := Encrypt("hello bob", alicePriv, bobPub)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.Contains(wire, ivMarker) {
		t.Fatalf("expected wire form to contain %q, got %q", ivMarker, wire)
	}

	plaintext, err := Decrypt(wire, bobPriv, alicePub)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != "hello bob" {
		t.Fatalf("expected round-tripped plaintext, got %q", plaintext)
	}
}

func TestDecryptRejectsMalformedWireForm(t *testing.T) {
	priv, pub := keypair(1)
	if _, err := Decrypt("not-a-valid-message", priv, pub); err != ErrMalformedWire {
		t.Fatalf("expected ErrMalformedWire, got %v", err)
	}
}
