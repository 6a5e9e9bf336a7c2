// Package licensekey generates and validates human-readable license keys of
// the form PREFIX-SEG-SEG-..., grounded on the same unambiguous alphabet and
// retry-on-collision strategy as the original Rust implementation.
package licensekey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Charset excludes visually ambiguous characters: 0, O, I, L, 1.
const Charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// ErrGenerationExhausted is returned when GenerateUnique exhausts its retry
// budget without finding a free key.
var ErrGenerationExhausted = errors.New("licensekey: exhausted retries generating a unique key")

// Config controls the shape of generated keys (spec §6: "PREFIX-SEG{2..5}"
// where each SEG is 2..6 characters).
type Config struct {
	Prefix        string
	Segments      int
	SegmentLength int
}

// DefaultConfig matches spec §6's default: LIC-XXXX-XXXX-XXXX-XXXX.
func DefaultConfig() Config {
	return Config{Prefix: "LIC", Segments: 4, SegmentLength: 4}
}

// Generate produces one key under cfg without checking for collisions.
func Generate(cfg Config) (string, error) {
	segments := make([]string, cfg.Segments)
	for i := range segments {
		seg, err := generateSegment(cfg.SegmentLength)
		if err != nil {
			return "", err
		}
		segments[i] = seg
	}
	return cfg.Prefix + "-" + strings.Join(segments, "-"), nil
}

func generateSegment(length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(Charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("licensekey: generate segment: %w", err)
		}
		b[i] = Charset[n.Int64()]
	}
	return string(b), nil
}

// GenerateUnique generates keys under cfg, calling exists for each candidate,
// until it finds one exists reports as free or maxRetries attempts are used.
// Grounded on original_source/src/license_key.rs::generate_unique_license_key.
func GenerateUnique(cfg Config, maxRetries int, exists func(key string) (bool, error)) (string, error) {
	if maxRetries < 1 {
		maxRetries = 5
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		key, err := Generate(cfg)
		if err != nil {
			return "", err
		}
		taken, err := exists(key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
	}
	return "", ErrGenerationExhausted
}

// ValidateFormat reports whether key matches PREFIX-SEG{2..5} with each
// segment 2..6 characters drawn from Charset. Prefix is not validated
// against any particular value, only that it is non-empty and alphanumeric.
func ValidateFormat(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) < 3 || len(parts) > 6 { // prefix + 2..5 segments
		return false
	}
	prefix := parts[0]
	if prefix == "" {
		return false
	}
	for _, r := range prefix {
		if !isAlnum(r) {
			return false
		}
	}

	segments := parts[1:]
	for _, seg := range segments {
		if len(seg) < 2 || len(seg) > 6 {
			return false
		}
		for _, r := range seg {
			if !strings.ContainsRune(Charset, r) {
				return false
			}
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Parsed is the result of splitting a license key into its components.
type Parsed struct {
	Prefix   string
	Segments []string
}

// ErrInvalidFormat is returned by Parse when the key fails ValidateFormat.
var ErrInvalidFormat = errors.New("licensekey: invalid key format")

// Parse splits a validated key into its prefix and segments.
func Parse(key string) (Parsed, error) {
	if !ValidateFormat(key) {
		return Parsed{}, ErrInvalidFormat
	}
	parts := strings.Split(key, "-")
	return Parsed{Prefix: parts[0], Segments: parts[1:]}, nil
}
