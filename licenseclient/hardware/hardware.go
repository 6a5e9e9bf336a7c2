// Package hardware derives a stable, privilege-free fingerprint for the
// current machine (spec §4.A), grounded on original_source/src/hardware.rs's
// per-platform hostname+serial composition, generalized into a single
// portable implementation since no cgo or elevated platform API is
// available here.
package hardware

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// Provider returns a hardware fingerprint, or an error if none could be
// derived. Callers needing a fingerprint for tests can substitute their own
// Provider instead of Default.
type Provider func() (string, error)

// Default composes the machine hostname with a machine-id-ish source
// (/etc/machine-id on Linux when present, otherwise a per-user value cached
// under the user's config directory on first use) and hashes the result
// with SHA-256, so the fingerprint is stable across process restarts but
// never exposes the raw inputs.
func Default() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	machineID, err := machineIdentifier()
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(strings.ToLower(hostname) + "|" + machineID))
	return hex.EncodeToString(sum[:]), nil
}

func machineIdentifier() (string, error) {
	if id, err := os.ReadFile("/etc/machine-id"); err == nil {
		if trimmed := strings.TrimSpace(string(id)); trimmed != "" {
			return trimmed, nil
		}
	}
	return cachedRandomID()
}

// cachedRandomID reads a previously generated per-user random identifier
// from the user's config directory, generating and persisting one on first
// use. This stands in for a platform serial number on systems without
// /etc/machine-id (macOS, Windows, or a Linux system where the file is
// absent).
func cachedRandomID() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "talos")
	path := filepath.Join(dir, "machine-id")

	if data, err := os.ReadFile(path); err == nil {
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			return trimmed, nil
		}
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	id := hex.EncodeToString(raw)

	if err := os.MkdirAll(dir, 0700); err == nil {
		_ = os.WriteFile(path, []byte(id), 0600)
	}
	return id, nil
}
