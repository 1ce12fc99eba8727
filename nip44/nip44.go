// Package nip44 implements NIP-44 version 2 payload encryption: an ECDH
// shared secret, HKDF-derived per-message keys, ChaCha20 encryption, and
// an HMAC-SHA256 authentication tag over length-padded plaintext.
package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	version          = 2
	conversationSalt = "nip44-v2"
	minPlaintextSize = 1
	maxPlaintextSize = 65535
)

var (
	ErrInvalidKey        = errors.New("nip44: invalid key")
	ErrUnsupportedVersion = errors.New("nip44: unsupported payload version")
	ErrInvalidPayload    = errors.New("nip44: malformed payload")
	ErrMACMismatch       = errors.New("nip44: authentication tag mismatch")
)

// ConversationKey derives the shared secret between a local private key
// and a remote x-only public key via ECDH followed by HKDF-extract with
// the fixed "nip44-v2" salt.
func ConversationKey(privKeyHex, pubKeyHex string) ([]byte, error) {
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
	sharedXBytes := make([]byte, 32)
	raw := sharedX.Bytes()
	copy(sharedXBytes[32-len(raw):], raw)

	return hkdf.Extract(sha256.New, sharedXBytes, []byte(conversationSalt)), nil
}

func messageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, errors.New("nip44: invalid conversation key length")
	}
	if len(nonce) != 32 {
		return nil, nil, nil, errors.New("nip44: invalid nonce length")
	}
	reader := hkdf.Expand(sha256.New, conversationKey, nonce)
	keys := make([]byte, 76)
	if _, err := reader.Read(keys); err != nil {
		return nil, nil, nil, err
	}
	return keys[0:32], keys[32:44], keys[44:76], nil
}

func paddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << (int(math.Floor(math.Log2(float64(unpaddedLen-1)))) + 1)
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * (int(math.Floor(float64(unpaddedLen-1)/float64(chunk))) + 1)
}

func pad(plaintext []byte) ([]byte, error) {
	n := len(plaintext)
	if n < minPlaintextSize || n > maxPlaintextSize {
		return nil, fmt.Errorf("%w: plaintext length %d out of range", ErrInvalidPayload, n)
	}
	out := make([]byte, 2+paddedLen(n))
	binary.BigEndian.PutUint16(out[0:2], uint16(n))
	copy(out[2:], plaintext)
	return out, nil
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, fmt.Errorf("%w: truncated padding header", ErrInvalidPayload)
	}
	n := int(binary.BigEndian.Uint16(padded[0:2]))
	if n == 0 || n > len(padded)-2 {
		return nil, fmt.Errorf("%w: inconsistent plaintext length", ErrInvalidPayload)
	}
	if len(padded) != 2+paddedLen(n) {
		return nil, fmt.Errorf("%w: padded length does not match length prefix", ErrInvalidPayload)
	}
	return padded[2 : 2+n], nil
}

func hmacAAD(key, message, aad []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(aad)
	h.Write(message)
	return h.Sum(nil)
}

// Encrypt encrypts plaintext for conversationKey using a fresh random
// nonce.
func Encrypt(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return encryptWithNonce(plaintext, conversationKey, nonce)
}

func encryptWithNonce(plaintext string, conversationKey, nonce []byte) (string, error) {
	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	padded, err := pad([]byte(plaintext))
	if err != nil {
		return "", err
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	cipher.XORKeyStream(ciphertext, padded)

	mac := hmacAAD(hmacKey, ciphertext, nonce)

	result := make([]byte, 1+32+len(ciphertext)+32)
	result[0] = version
	copy(result[1:33], nonce)
	copy(result[33:33+len(ciphertext)], ciphertext)
	copy(result[33+len(ciphertext):], mac)

	return base64.StdEncoding.EncodeToString(result), nil
}

// Decrypt verifies and decrypts a NIP-44 v2 payload under conversationKey.
func Decrypt(payload string, conversationKey []byte) (string, error) {
	if len(payload) > 0 && payload[0] == '#' {
		return "", ErrUnsupportedVersion
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: not valid base64", ErrInvalidPayload)
	}
	if len(data) < 99 || len(data) > 65603 {
		return "", fmt.Errorf("%w: payload size out of range", ErrInvalidPayload)
	}
	if data[0] != version {
		return "", ErrUnsupportedVersion
	}

	nonce := data[1:33]
	ciphertext := data[33 : len(data)-32]
	mac := data[len(data)-32:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	if !hmac.Equal(hmacAAD(hmacKey, ciphertext, nonce), mac) {
		return "", ErrMACMismatch
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	cipher.XORKeyStream(padded, ciphertext)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
