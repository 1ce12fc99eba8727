// Package pow implements proof-of-work mining for event ids and vanity
// public keys: a self-contained compute loop that is not otherwise
// threaded through the connection engine, per the calling application's
// own scheduling (run it in a goroutine, bound it with a context or a
// guess/duration budget).
package pow

import (
	"context"
	"encoding/hex"
	"errors"
	"math/bits"
	"strconv"
	"time"

	"github.com/nostrkit/relaypool/event"
	"github.com/nostrkit/relaypool/keys"
	"github.com/nostrkit/relaypool/nip19"
)

// ErrNoTarget is returned by MineVanityPubKey when neither prefix nor
// suffix is given.
var ErrNoTarget = errors.New("pow: at least one of prefix or suffix is required")

// EventResult reports the outcome of a MineEvent call.
type EventResult struct {
	Bits     int
	Tries    int
	Duration time.Duration
}

// MineEvent searches for a nonce value that makes ev's id satisfy at
// least difficulty leading zero bits, per NIP-13. It mutates ev in
// place: a ["nonce", value, target] tag is inserted (or updated) as the
// first tag, and ev.ID is set to the best id found once the search ends
// — by reaching the target, by ctx cancellation, or by exhausting
// maxTries/maxDuration (either being 0 disables that bound). The caller
// still has to Sign ev afterward; mining never touches Sig.
func MineEvent(ctx context.Context, ev *event.Event, difficulty int, maxTries int, maxDuration time.Duration) (*EventResult, error) {
	nonce := 0
	if len(ev.Tags) == 0 || len(ev.Tags[0]) == 0 || ev.Tags[0][0] != "nonce" {
		ev.Tags = append(event.Tags{{"nonce", "0", strconv.Itoa(difficulty)}}, ev.Tags...)
	} else {
		ev.Tags[0][2] = strconv.Itoa(difficulty)
	}

	start := time.Now()
	bestBits := -1
	tries := 0

	for {
		select {
		case <-ctx.Done():
			return &EventResult{Bits: bestBits, Tries: tries, Duration: time.Since(start)}, ctx.Err()
		default:
		}

		ev.Tags[0][1] = strconv.Itoa(nonce)
		id, err := ev.ComputeID()
		if err != nil {
			return nil, err
		}
		gotBits := leadingZeroBitsHex(id)
		tries++
		if gotBits > bestBits {
			bestBits = gotBits
			ev.ID = id
		}
		if bestBits >= difficulty {
			return &EventResult{Bits: bestBits, Tries: tries, Duration: time.Since(start)}, nil
		}
		if maxTries > 0 && tries >= maxTries {
			return &EventResult{Bits: bestBits, Tries: tries, Duration: time.Since(start)}, nil
		}
		if maxDuration > 0 && time.Since(start) >= maxDuration {
			return &EventResult{Bits: bestBits, Tries: tries, Duration: time.Since(start)}, nil
		}
		nonce++
	}
}

// VanityResult reports the outcome of a MineVanityPubKey call.
type VanityResult struct {
	KeyPair *keys.KeyPair
	Npub    string
	Tries   int
	Duration time.Duration
}

// MineVanityPubKey repeatedly generates random keypairs until one's npub
// encoding starts with prefix and/or ends with suffix (both checked
// against the bech32 body, after the fixed "npub1" header), or ctx is
// canceled, or maxTries/maxDuration is exhausted.
func MineVanityPubKey(ctx context.Context, prefix, suffix string, maxTries int, maxDuration time.Duration) (*VanityResult, error) {
	if prefix == "" && suffix == "" {
		return nil, ErrNoTarget
	}

	start := time.Now()
	tries := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candidate, err := keys.RandomPrivateKeyBytes()
		if err != nil {
			return nil, err
		}
		kp, err := keys.FromPrivateKeyHex(hex.EncodeToString(candidate))
		if err != nil {
			return nil, err
		}
		npub, err := nip19.EncodeNpub(kp.PublicKey)
		if err != nil {
			return nil, err
		}
		tries++

		if matchesVanity(npub, prefix, suffix) {
			return &VanityResult{KeyPair: kp, Npub: npub, Tries: tries, Duration: time.Since(start)}, nil
		}
		if maxTries > 0 && tries >= maxTries {
			return nil, errors.New("pow: exhausted max tries without a match")
		}
		if maxDuration > 0 && time.Since(start) >= maxDuration {
			return nil, errors.New("pow: exhausted max duration without a match")
		}
	}
}

func matchesVanity(npub, prefix, suffix string) bool {
	const hrpLen = len("npub1")
	body := npub[hrpLen:]
	if prefix != "" && (len(body) < len(prefix) || body[:len(prefix)] != prefix) {
		return false
	}
	if suffix != "" && (len(body) < len(suffix) || body[len(body)-len(suffix):] != suffix) {
		return false
	}
	return true
}

func leadingZeroBitsHex(hexStr string) int {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return 0
	}
	n := 0
	for _, b := range raw {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}
