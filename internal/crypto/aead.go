// Package crypto provides the one symmetric AEAD primitive the rest of the
// module builds on: a 256-bit key, a 96-bit random nonce per encryption, and
// a nonce||ciphertext_with_tag wire format (spec §4.B).
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required symmetric key length in bytes.
const KeySize = chacha20poly1305.KeySize // 32

// NonceSize is the random nonce length in bytes.
const NonceSize = chacha20poly1305.NonceSize // 12

// ErrInvalidKeySize is returned when a key is not exactly KeySize bytes.
var ErrInvalidKeySize = errors.New("crypto: key must be 32 bytes")

// ErrCiphertextTooShort is returned when a ciphertext is shorter than a
// single nonce, and therefore cannot be well-formed.
var ErrCiphertextTooShort = errors.New("crypto: ciphertext shorter than nonce")

// Encrypt seals plaintext under key, returning nonce||ciphertext_with_tag.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Decrypt opens a nonce||ciphertext_with_tag blob produced by Encrypt. It
// fails with ErrCiphertextTooShort, ErrInvalidKeySize, or an AEAD
// authentication error (tampered ciphertext / wrong key).
func Decrypt(key, blob []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < NonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptToBase64 is Encrypt followed by standard base64 encoding, for
// storing ciphertext in text-only sinks.
func EncryptToBase64(key, plaintext []byte) (string, error) {
	blob, err := Encrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptFromBase64 reverses EncryptToBase64.
func DecryptFromBase64(key []byte, encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode base64: %w", err)
	}
	return Decrypt(key, blob)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return chacha20poly1305.New(key)
}
