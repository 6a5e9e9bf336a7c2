// Package storage implements the client SDK's tiered local persistence
// (spec §4.C): OS credential vault first, then an application-data
// directory file, then (read-only, migrate-on-hit) a legacy
// current-working-directory file. Every value passed in is already
// ciphertext produced by internal/crypto — this layer performs no
// encryption of its own.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// Kind distinguishes the two blob types a Chain ever stores, so their
// derived keys never collide even for the same hardware ID.
type Kind string

const (
	KindLicense Kind = "license"
	KindCache   Kind = "cache"
)

const (
	keyringService = "talos"
	licenseKindSalt = "talos-license-v1"
	cacheKindSalt   = "talos-cache-v1"
)

// ErrNotFound is returned by Chain.Read when no tier holds a value for key.
var ErrNotFound = errors.New("storage: not found")

// deriveKey computes the per-device storage key: SHA-256 over
// "<kind_salt>:" || hardware_id, so a cache-layer compromise can never be
// used to read a license blob or vice versa.
func deriveKey(kind Kind, hardwareID string) string {
	salt := licenseKindSalt
	if kind == KindCache {
		salt = cacheKindSalt
	}
	sum := sha256.Sum256([]byte(salt + ":" + hardwareID))
	return hex.EncodeToString(sum[:])
}

// Tier is one storage backend in the chain of responsibility. tryRead
// reports ("", false, nil) on a clean miss and clear treats a missing value
// as success; errors are reserved for genuine I/O failures (and, for the
// legacy tier, for any write).
type Tier interface {
	tryWrite(key, value string) error
	tryRead(key string) (string, bool, error)
	clear(key string) error
}

// Chain drives an ordered list of Tiers: reads stop at the first hit and,
// if the hit came from a tier after the first, the value is migrated
// forward; writes attempt every tier and succeed if any one does; clears
// are applied to every tier.
type Chain struct {
	tiers []Tier
}

// NewChain builds the default tier order: OS keyring, then an app-data
// file, then a legacy CWD file (read/migrate only).
func NewChain() *Chain {
	return &Chain{tiers: []Tier{
		&keyringTier{},
		newAppDataTier(),
		newLegacyTier(),
	}}
}

// NewChainWithoutKeyring builds a Chain that skips the OS credential vault,
// for headless servers and containers with no secret-service/dbus session
// to back go-keyring.
func NewChainWithoutKeyring() *Chain {
	return &Chain{tiers: []Tier{
		newAppDataTier(),
		newLegacyTier(),
	}}
}

// NewChainAt builds a Chain rooted entirely under dir, skipping the OS
// keyring. Intended for tests and for embedders that want the SDK's file
// storage isolated from the real user config directory and working
// directory.
func NewChainAt(dir string) *Chain {
	return &Chain{tiers: []Tier{
		&appDataTier{dir: filepath.Join(dir, "appdata")},
		&legacyTier{dir: filepath.Join(dir, "legacy")},
	}}
}

// Write stores value for (kind, hardwareID), trying every tier. It
// succeeds if at least one tier accepts the write.
func (c *Chain) Write(kind Kind, hardwareID, value string) error {
	key := deriveKey(kind, hardwareID)
	var lastErr error
	wrote := false
	for _, t := range c.tiers {
		if err := t.tryWrite(key, value); err != nil {
			lastErr = err
			continue
		}
		wrote = true
	}
	if !wrote {
		if lastErr != nil {
			return lastErr
		}
		return errors.New("storage: no tier accepted the write")
	}
	return nil
}

// Read returns the first hit for (kind, hardwareID) across the tier chain,
// migrating it forward to the earliest (most preferred) tier if it was
// found in a later one. Returns ErrNotFound if no tier has the value.
func (c *Chain) Read(kind Kind, hardwareID string) (string, error) {
	key := deriveKey(kind, hardwareID)
	for i, t := range c.tiers {
		value, ok, err := t.tryRead(key)
		if err != nil {
			continue
		}
		if !ok {
			continue
		}
		if i > 0 {
			// Migrate forward to the most preferred tier; a failure here is
			// not fatal since the value was still found.
			_ = c.tiers[0].tryWrite(key, value)
			_ = t.clear(key)
		}
		return value, nil
	}
	return "", ErrNotFound
}

// Clear removes (kind, hardwareID) from every tier.
func (c *Chain) Clear(kind Kind, hardwareID string) error {
	key := deriveKey(kind, hardwareID)
	var lastErr error
	for _, t := range c.tiers {
		if err := t.clear(key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// keyringTier stores values in the OS credential vault via go-keyring.
type keyringTier struct{}

func (keyringTier) tryWrite(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

func (keyringTier) tryRead(key string) (string, bool, error) {
	value, err := keyring.Get(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (keyringTier) clear(key string) error {
	err := keyring.Delete(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// appDataTier stores each blob as a file under the user's application data
// directory, named by its derived key.
type appDataTier struct {
	dir string
}

func newAppDataTier() *appDataTier {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return &appDataTier{dir: filepath.Join(dir, "talos")}
}

func (t *appDataTier) path(key string) string {
	return filepath.Join(t.dir, key+".enc")
}

func (t *appDataTier) tryWrite(key, value string) error {
	if err := os.MkdirAll(t.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(t.path(key), []byte(value), 0600)
}

func (t *appDataTier) tryRead(key string) (string, bool, error) {
	data, err := os.ReadFile(t.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (t *appDataTier) clear(key string) error {
	err := os.Remove(t.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// legacyTier reads (and, on a hit, clears) a blob from a file in the
// process's current working directory. It never accepts writes directly —
// only Chain's read-time migration populates the preferred tier, after
// which this tier's copy is deleted.
type legacyTier struct {
	dir string
}

func newLegacyTier() *legacyTier {
	return &legacyTier{dir: "."}
}

func (t *legacyTier) path(key string) string {
	return filepath.Join(t.dir, "talos_"+key+".legacy")
}

var errLegacyTierReadOnly = errors.New("storage: legacy tier does not accept writes")

func (t *legacyTier) tryWrite(string, string) error {
	return errLegacyTierReadOnly
}

func (t *legacyTier) tryRead(key string) (string, bool, error) {
	data, err := os.ReadFile(t.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (t *legacyTier) clear(key string) error {
	err := os.Remove(t.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
