// Package nip19 implements the bech32-based human-readable identifiers
// for Nostr entities: the plain npub/nsec/note forms and the TLV-encoded
// nprofile/nevent/naddr forms that optionally carry relay hints.
package nip19

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	tlvSpecial = 0 // event_id (nevent) / pubkey (nprofile)
	tlvRelay   = 1
	tlvAuthor  = 2
	tlvKind    = 3
	tlvDTag    = 4
)

var (
	ErrWrongPrefix  = errors.New("nip19: unexpected bech32 prefix")
	ErrWrongLength  = errors.New("nip19: decoded value has the wrong length")
	ErrMissingField = errors.New("nip19: required TLV field missing")
)

// Profile is the payload of an nprofile1... identifier.
type Profile struct {
	PubKey     string
	RelayHints []string
}

// EventPointer is the payload of an nevent1... identifier.
type EventPointer struct {
	EventID    string
	Author     string
	RelayHints []string
}

// EntityPointer is the payload of an naddr1... identifier, addressing a
// parameterized-replaceable event by (kind, author, d-tag).
type EntityPointer struct {
	Kind       uint32
	Author     string
	DTag       string
	RelayHints []string
}

// EncodeNpub renders a 32-byte hex public key as npub1...
func EncodeNpub(pubKeyHex string) (string, error) {
	return encodeSimple("npub", pubKeyHex)
}

// DecodeNpub parses an npub1... identifier back to hex.
func DecodeNpub(npub string) (string, error) {
	return decodeSimple("npub", npub)
}

// EncodeNsec renders a 32-byte hex private key as nsec1...
func EncodeNsec(privKeyHex string) (string, error) {
	return encodeSimple("nsec", privKeyHex)
}

// DecodeNsec parses an nsec1... identifier back to hex.
func DecodeNsec(nsec string) (string, error) {
	return decodeSimple("nsec", nsec)
}

// EncodeNote renders a 32-byte hex event id as note1...
func EncodeNote(eventIDHex string) (string, error) {
	return encodeSimple("note", eventIDHex)
}

// DecodeNote parses a note1... identifier back to hex.
func DecodeNote(note string) (string, error) {
	return decodeSimple("note", note)
}

func encodeSimple(hrp, hexValue string) (string, error) {
	raw, err := hex.DecodeString(hexValue)
	if err != nil || len(raw) != 32 {
		return "", ErrWrongLength
	}
	data, err := convertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return encode(hrp, data)
}

func decodeSimple(wantHRP, bech string) (string, error) {
	if !strings.HasPrefix(bech, wantHRP+"1") {
		return "", ErrWrongPrefix
	}
	hrp, data, err := decode(bech)
	if err != nil {
		return "", err
	}
	if hrp != wantHRP {
		return "", ErrWrongPrefix
	}
	raw, err := convertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}
	if len(raw) != 32 {
		return "", ErrWrongLength
	}
	return hex.EncodeToString(raw), nil
}

func appendTLV(buf []byte, typ byte, value []byte) []byte {
	buf = append(buf, typ, byte(len(value)))
	return append(buf, value...)
}

// EncodeNprofile renders a pubkey plus optional relay hints as
// nprofile1...
func EncodeNprofile(p Profile) (string, error) {
	pubBytes, err := hex.DecodeString(p.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return "", ErrWrongLength
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, pubBytes)
	for _, relayURL := range p.RelayHints {
		tlv = appendTLV(tlv, tlvRelay, []byte(relayURL))
	}
	return encodeTLV("nprofile", tlv)
}

// DecodeNprofile parses an nprofile1... identifier.
func DecodeNprofile(nprofile string) (*Profile, error) {
	tlv, err := decodeTLV("nprofile", nprofile)
	if err != nil {
		return nil, err
	}
	p := &Profile{}
	walkTLV(tlv, func(typ byte, value []byte) {
		switch typ {
		case tlvSpecial:
			if len(value) == 32 {
				p.PubKey = hex.EncodeToString(value)
			}
		case tlvRelay:
			p.RelayHints = append(p.RelayHints, string(value))
		}
	})
	if p.PubKey == "" {
		return nil, ErrMissingField
	}
	return p, nil
}

// EncodeNevent renders an event pointer as nevent1...
func EncodeNevent(p EventPointer) (string, error) {
	idBytes, err := hex.DecodeString(p.EventID)
	if err != nil || len(idBytes) != 32 {
		return "", ErrWrongLength
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, idBytes)
	for _, relayURL := range p.RelayHints {
		tlv = appendTLV(tlv, tlvRelay, []byte(relayURL))
	}
	if p.Author != "" {
		authorBytes, err := hex.DecodeString(p.Author)
		if err != nil || len(authorBytes) != 32 {
			return "", ErrWrongLength
		}
		tlv = appendTLV(tlv, tlvAuthor, authorBytes)
	}
	return encodeTLV("nevent", tlv)
}

// DecodeNevent parses an nevent1... identifier.
func DecodeNevent(nevent string) (*EventPointer, error) {
	tlv, err := decodeTLV("nevent", nevent)
	if err != nil {
		return nil, err
	}
	p := &EventPointer{}
	walkTLV(tlv, func(typ byte, value []byte) {
		switch typ {
		case tlvSpecial:
			if len(value) == 32 {
				p.EventID = hex.EncodeToString(value)
			}
		case tlvRelay:
			p.RelayHints = append(p.RelayHints, string(value))
		case tlvAuthor:
			if len(value) == 32 {
				p.Author = hex.EncodeToString(value)
			}
		}
	})
	if p.EventID == "" {
		return nil, ErrMissingField
	}
	return p, nil
}

// EncodeNaddr renders an entity pointer as naddr1...
func EncodeNaddr(p EntityPointer) (string, error) {
	authorBytes, err := hex.DecodeString(p.Author)
	if err != nil || len(authorBytes) != 32 {
		return "", ErrWrongLength
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvDTag, []byte(p.DTag))
	for _, relayURL := range p.RelayHints {
		tlv = appendTLV(tlv, tlvRelay, []byte(relayURL))
	}
	tlv = appendTLV(tlv, tlvAuthor, authorBytes)
	kindBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(kindBytes, p.Kind)
	tlv = appendTLV(tlv, tlvKind, kindBytes)
	return encodeTLV("naddr", tlv)
}

// DecodeNaddr parses an naddr1... identifier.
func DecodeNaddr(naddr string) (*EntityPointer, error) {
	tlv, err := decodeTLV("naddr", naddr)
	if err != nil {
		return nil, err
	}
	p := &EntityPointer{}
	var hasKind, hasAuthor bool
	walkTLV(tlv, func(typ byte, value []byte) {
		switch typ {
		case tlvAuthor:
			if len(value) == 32 {
				p.Author = hex.EncodeToString(value)
				hasAuthor = true
			}
		case tlvKind:
			if len(value) == 4 {
				p.Kind = binary.BigEndian.Uint32(value)
				hasKind = true
			}
		case tlvDTag:
			p.DTag = string(value)
		case tlvRelay:
			p.RelayHints = append(p.RelayHints, string(value))
		}
	})
	if !hasKind || !hasAuthor {
		return nil, ErrMissingField
	}
	return p, nil
}

func encodeTLV(hrp string, tlv []byte) (string, error) {
	data, err := convertBits(tlv, 8, 5, true)
	if err != nil {
		return "", err
	}
	return encode(hrp, data)
}

func decodeTLV(wantHRP, bech string) ([]byte, error) {
	if !strings.HasPrefix(bech, wantHRP+"1") {
		return nil, ErrWrongPrefix
	}
	hrp, data, err := decode(bech)
	if err != nil {
		return nil, err
	}
	if hrp != wantHRP {
		return nil, ErrWrongPrefix
	}
	return convertBits(data, 5, 8, false)
}

func walkTLV(data []byte, visit func(typ byte, value []byte)) {
	for i := 0; i+2 <= len(data); {
		typ := data[i]
		length := int(data[i+1])
		i += 2
		if i+length > len(data) {
			return
		}
		visit(typ, data[i:i+length])
		i += length
	}
}
