// Package keys provides secp256k1 keypair generation and the raw-scalar
// / x-only-pubkey conversions the rest of the module builds on.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ErrInvalidKey is returned when a key is not valid hex or does not
// decode to exactly 32 bytes. Whether the bytes form a valid curve
// point or scalar is not checked.
var ErrInvalidKey = errors.New("keys: invalid key")

// KeyPair is a secp256k1 private scalar paired with its BIP-340 x-only
// public key, both hex-encoded the way events and NIP-19 codecs expect.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Generate returns a fresh random KeyPair.
func Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keys: generating private key: %w", err)
	}
	return fromPrivateKey(priv), nil
}

// FromPrivateKeyHex derives the public key for an existing 32-byte
// hex-encoded private scalar.
func FromPrivateKeyHex(privHex string) (*KeyPair, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes hex", ErrInvalidKey)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return fromPrivateKey(priv), nil
}

func fromPrivateKey(priv *btcec.PrivateKey) *KeyPair {
	pub := priv.PubKey()
	xOnly := pub.SerializeCompressed()[1:] // drop the leading parity byte
	return &KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		PublicKey:  hex.EncodeToString(xOnly),
	}
}

// PublicKeyFromPrivateKeyHex is a convenience wrapper for callers that
// only need the derived public key.
func PublicKeyFromPrivateKeyHex(privHex string) (string, error) {
	kp, err := FromPrivateKeyHex(privHex)
	if err != nil {
		return "", err
	}
	return kp.PublicKey, nil
}

// ValidatePublicKeyHex checks that pubHex is hex that decodes to 32
// bytes, the shape of an x-only public key; it does not check that the
// bytes name a point on the curve.
func ValidatePublicKeyHex(pubHex string) error {
	raw, err := hex.DecodeString(pubHex)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: public key must be 32 bytes hex", ErrInvalidKey)
	}
	return nil
}

// RandomPrivateKeyBytes returns 32 cryptographically random bytes
// suitable as a raw secp256k1 scalar, without constructing a full
// KeyPair. Used by the pow package's vanity-key search, which derives a
// KeyPair from each candidate to test its npub against the
// prefix/suffix.
func RandomPrivateKeyBytes() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
