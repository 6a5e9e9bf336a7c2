package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("hardware-bound license payload")

	blob, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(key, blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncryptDecryptBase64RoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte(`{"license_key":"LIC-ABCD-EFGH-JKMN-PQRS"}`)

	encoded, err := EncryptToBase64(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptToBase64: %v", err)
	}

	got, err := DecryptFromBase64(key, encoded)
	if err != nil {
		t.Fatalf("DecryptFromBase64: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key := randomKey(t)
	blob, err := Encrypt(key, []byte("untouched"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := Decrypt(key, tampered); err == nil {
		t.Fatal("expected tampered ciphertext to fail decryption")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := randomKey(t)
	other := randomKey(t)
	blob, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(other, blob); err == nil {
		t.Fatal("expected wrong key to fail decryption")
	}
}

func TestEncryptRejectsBadKeySize(t *testing.T) {
	if _, err := Encrypt(make([]byte, 16), []byte("x")); err != ErrInvalidKeySize {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	key := randomKey(t)
	if _, err := Decrypt(key, []byte("short")); err != ErrCiphertextTooShort {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}
