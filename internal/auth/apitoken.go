package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TokenPrefix is prepended to every generated raw API token for
// recognizability, grounded on original_source/src/server/tokens.rs's
// generate_raw_token ("talos_" + uuid).
const TokenPrefix = "talos_"

// GenerateRawToken returns a new raw API token value. It is returned to the
// caller exactly once at creation time; only its hash is ever persisted.
func GenerateRawToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate raw token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken produces the SHA-256 hex digest stored in place of the raw
// token value, matching the teacher's HashToken helper.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
