// Package nip04 implements the legacy NIP-04 direct-message cipher: an
// AES-256-CBC encryption under a shared secret taken directly from the
// raw X-coordinate of an ECDH key exchange (no HKDF, unlike NIP-44),
// wire-encoded as "<base64 ciphertext>?iv=<base64 iv>".
package nip04

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	ErrInvalidKey     = errors.New("nip04: invalid key")
	ErrMalformedWire  = errors.New("nip04: malformed encrypted message")
	ErrPadding        = errors.New("nip04: invalid PKCS7 padding")
)

const ivMarker = "?iv="

// SharedSecret computes the NIP-04 shared secret: the raw 32-byte
// X-coordinate of privKeyHex's scalar multiplied against pubKeyHex's
// curve point. Unlike nip44.ConversationKey this value is used directly
// as the AES key; it is not passed through HKDF.
func SharedSecret(privKeyHex, pubKeyHex string) ([]byte, error) {
	privBytes, err := hex.DecodeString(privKeyHex)
	if err != nil || len(privBytes) != 32 {
		return nil, fmt.Errorf("%w: private key", ErrInvalidKey)
	}
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pubBytes) != 32 {
		return nil, fmt.Errorf("%w: public key", ErrInvalidKey)
	}

	priv, _ := btcec.PrivKeyFromBytes(privBytes)

	pubKeyWithPrefix := append([]byte{0x02}, pubBytes...)
	pub, err := btcec.ParsePubKey(pubKeyWithPrefix)
	if err != nil {
		pubKeyWithPrefix[0] = 0x03
		pub, err = btcec.ParsePubKey(pubKeyWithPrefix)
		if err != nil {
			return nil, fmt.Errorf("%w: public key", ErrInvalidKey)
		}
	}

	sharedX, _ := pub.ToECDSA().Curve.ScalarMult(pub.X(), pub.Y(), priv.Serialize())
	secret := make([]byte, 32)
	raw := sharedX.Bytes()
	copy(secret[32-len(raw):], raw)
	return secret, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, ErrPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrPadding
		}
	}
	return data[:len(data)-padLen], nil
}

// Encrypt encrypts message under the shared secret derived from
// privKeyHex and recipientPubKeyHex, returning the wire-encoded
// "<ciphertext>?iv=<iv>" string.
func Encrypt(message, privKeyHex, recipientPubKeyHex string) (string, error) {
	secret, err := SharedSecret(privKeyHex, recipientPubKeyHex)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(secret)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(message), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) + ivMarker + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt given the wire-encoded message and the shared
// secret derived from privKeyHex and the sender's senderPubKeyHex.
func Decrypt(encoded, privKeyHex, senderPubKeyHex string) (string, error) {
	parts := strings.SplitN(encoded, ivMarker, 2)
	if len(parts) != 2 {
		return "", ErrMalformedWire
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext not valid base64", ErrMalformedWire)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv not valid", ErrMalformedWire)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext not block-aligned", ErrMalformedWire)
	}

	secret, err := SharedSecret(privKeyHex, senderPubKeyHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return "", err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
