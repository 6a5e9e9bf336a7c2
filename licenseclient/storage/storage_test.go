package storage

import (
	"os"
	"path/filepath"
	"testing"
)

// testChain builds a Chain skipping the OS keyring tier, which is not
// available in headless test environments; it exercises the same
// app-data/legacy chain-of-responsibility and migration logic.
func testChain(t *testing.T) *Chain {
	t.Helper()
	dir := t.TempDir()
	return &Chain{tiers: []Tier{
		&appDataTier{dir: filepath.Join(dir, "appdata")},
		&legacyTier{dir: filepath.Join(dir, "legacy")},
	}}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	c := testChain(t)
	if err := c.Write(KindLicense, "HW-1", "ciphertext-blob"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := c.Read(KindLicense, "HW-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "ciphertext-blob" {
		t.Fatalf("got %q want %q", got, "ciphertext-blob")
	}
}

func TestReadMissingReturnsErrNotFound(t *testing.T) {
	c := testChain(t)
	if _, err := c.Read(KindCache, "HW-NOPE"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLicenseAndCacheKeysAreIndependent(t *testing.T) {
	c := testChain(t)
	c.Write(KindLicense, "HW-1", "license-blob")
	c.Write(KindCache, "HW-1", "cache-blob")

	lic, err := c.Read(KindLicense, "HW-1")
	if err != nil || lic != "license-blob" {
		t.Fatalf("license read: got (%q, %v)", lic, err)
	}
	cache, err := c.Read(KindCache, "HW-1")
	if err != nil || cache != "cache-blob" {
		t.Fatalf("cache read: got (%q, %v)", cache, err)
	}
}

func TestLegacyHitMigratesForwardAndIsCleared(t *testing.T) {
	dir := t.TempDir()
	legacy := &legacyTier{dir: filepath.Join(dir, "legacy")}
	appData := &appDataTier{dir: filepath.Join(dir, "appdata")}
	c := &Chain{tiers: []Tier{appData, legacy}}

	key := deriveKey(KindLicense, "HW-1")
	if err := os.MkdirAll(legacy.dir, 0700); err != nil {
		t.Fatalf("seed legacy dir: %v", err)
	}
	if err := os.WriteFile(legacy.path(key), []byte("legacy-blob"), 0600); err != nil {
		t.Fatalf("seed legacy tier: %v", err)
	}

	got, err := c.Read(KindLicense, "HW-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "legacy-blob" {
		t.Fatalf("got %q want %q", got, "legacy-blob")
	}

	if _, ok, _ := appData.tryRead(key); !ok {
		t.Fatal("expected value to have migrated into the app-data tier")
	}
	if _, ok, _ := legacy.tryRead(key); ok {
		t.Fatal("expected legacy tier to be cleared after migration")
	}
}

func TestClearRemovesFromAllTiers(t *testing.T) {
	c := testChain(t)
	c.Write(KindLicense, "HW-1", "blob")
	if err := c.Clear(KindLicense, "HW-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.Read(KindLicense, "HW-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after Clear, got %v", err)
	}
}
