// Package event implements the Nostr signed event envelope: canonical
// serialization, id computation, Schnorr signing/verification, and tag
// accessors.
package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Kind enumerates the event kinds this package has built-in knowledge of.
// Any integer kind is otherwise valid; this is only used for a handful of
// validation rules (e.g. content must be empty on a contact list).
type Kind int

const (
	KindMetadata    Kind = 0
	KindTextNote    Kind = 1
	KindContactList Kind = 3
	KindEncryptedDM Kind = 4
	KindDeletion    Kind = 5
	KindReaction    Kind = 7
	KindRelayList   Kind = 10002
)

var (
	ErrInvalidHex        = errors.New("event: invalid hex encoding")
	ErrMissingField      = errors.New("event: missing required field")
	ErrContentForbidden  = errors.New("event: content not permitted for this kind")
	ErrSignatureInvalid  = errors.New("event: failed to verify signature")
	ErrEventUnsigned     = errors.New("event: not signed")
	ErrIDMismatch        = errors.New("event: id does not match computed value")
)

// Tags is the ordered list of tag tuples carried by an Event. Each tag is
// itself an ordered list of strings with at least one element (the tag
// type, e.g. "e" or "p").
type Tags [][]string

// GetAll returns every tag whose first element equals typ, in order.
func (t Tags) GetAll(typ string) Tags {
	var out Tags
	for _, tag := range t {
		if len(tag) > 0 && tag[0] == typ {
			out = append(out, tag)
		}
	}
	return out
}

// Values returns the second element of every tag matching typ, skipping
// tags that are too short to carry a value.
func (t Tags) Values(typ string) []string {
	var out []string
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == typ {
			out = append(out, tag[1])
		}
	}
	return out
}

// Count returns the number of tags whose first element equals typ.
func (t Tags) Count(typ string) int {
	n := 0
	for _, tag := range t {
		if len(tag) > 0 && tag[0] == typ {
			n++
		}
	}
	return n
}

// ContainsValue reports whether any tag of the given type carries value
// as its second element.
func (t Tags) ContainsValue(typ, value string) bool {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == typ && tag[1] == value {
			return true
		}
	}
	return false
}

// Event is an immutable, signed Nostr record. Construct one with New,
// populate Tags/Content, then call Sign; mutating any field after signing
// invalidates Sig and ID without recomputing them automatically, by
// design — callers must call Sign again.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// New returns an Event stamped with the current time and an empty tag
// list, ready for the caller to fill in Kind/Content/Tags before signing.
func New(pubkey string, kind int, content string) *Event {
	return &Event{
		PubKey:    pubkey,
		CreatedAt: time.Now().Unix(),
		Kind:      kind,
		Tags:      Tags{},
		Content:   content,
	}
}

// canonicalBytes renders the canonical array form
// [0,pubkey,created_at,kind,tags,content] used both to compute id and as
// the pre-image for signing. It is serialized compactly with HTML
// escaping disabled so Unicode content is preserved byte-for-byte, which
// is required for cross-implementation id agreement.
func (e *Event) canonicalBytes() ([]byte, error) {
	if e.PubKey == "" {
		return nil, fmt.Errorf("%w: pubkey", ErrMissingField)
	}
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; the canonical form
	// has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the hex-encoded SHA-256 of the canonical serialization
// without mutating the event.
func (e *Event) ComputeID() (string, error) {
	b, err := e.canonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the id from the event's current fields, signs it with
// privKey (32-byte raw secp256k1 scalar), and sets ID and Sig.
func (e *Event) Sign(privKey []byte) error {
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	priv, _ := btcec.PrivKeyFromBytes(privKey)
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return err
	}
	e.ID = id
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify recomputes the id from the event's current fields and checks Sig
// against PubKey. Any mutation to content, created_at, kind, tags, or
// pubkey since signing causes this to return false, since the recomputed
// id will differ from the one the signature covers.
func (e *Event) Verify() bool {
	if e.Sig == "" || e.PubKey == "" || e.ID == "" {
		return false
	}
	id, err := e.ComputeID()
	if err != nil || id != e.ID {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != 64 {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubKeyBytes) != 32 {
		return false
	}
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pubKey)
}

// Validate checks NIP-level structural constraints independent of
// signature verification: required fields are present and well-formed
// hex, and content obeys kind-specific rules (e.g. a contact list, kind
// 3, carries no content).
func (e *Event) Validate() error {
	if e.PubKey == "" {
		return fmt.Errorf("%w: pubkey", ErrMissingField)
	}
	if _, err := hex.DecodeString(e.PubKey); err != nil || len(e.PubKey) != 64 {
		return fmt.Errorf("%w: pubkey", ErrInvalidHex)
	}
	if e.ID != "" {
		if _, err := hex.DecodeString(e.ID); err != nil || len(e.ID) != 64 {
			return fmt.Errorf("%w: id", ErrInvalidHex)
		}
	}
	if e.Kind == int(KindContactList) && e.Content != "" {
		// contact lists historically carry no content; tolerated by most
		// relays but flagged here for callers that want strict validation
		return fmt.Errorf("%w: kind %d", ErrContentForbidden, e.Kind)
	}
	return nil
}

// Equal compares two events by recomputed id, per spec: two events are
// the same event iff their canonical ids match.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	a, errA := e.ComputeID()
	b, errB := other.ComputeID()
	return errA == nil && errB == nil && a == b
}

// CheckPow returns the number of leading zero bits of the event id,
// i.e. the proof-of-work difficulty the event satisfies.
func (e *Event) CheckPow() int {
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return 0
	}
	return leadingZeroBits(idBytes)
}

func leadingZeroBits(b []byte) int {
	n := 0
	for _, by := range b {
		if by == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(by)
		break
	}
	return n
}

// ToJSON renders the full wire object (id, pubkey, created_at, kind,
// tags, content, sig) as used in EVENT frames and storage.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses a wire event object. It does not verify the signature;
// call Verify separately once the relay's context (if any) is known.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
