// Package licenseclient is the importable client SDK: it binds, validates,
// and caches a license against the local device, including offline
// operation for the duration of a server-issued grace period (spec §4.D,
// §4.E). Grounded on original_source/src/client/{cache.rs,license.rs},
// restructured per spec §9's Design Notes: the immutable license identity
// and the mutable runtime/binding state are held separately, and nothing
// here ever trusts a stale in-memory flag instead of re-checking storage or
// the server.
package licenseclient

import (
	"encoding/json"
	"time"
)

// CachedValidation is the last successful online validation result,
// persisted encrypted so the client can keep operating offline during a
// server-issued grace period (spec §4.D).
type CachedValidation struct {
	LicenseKey        string    `json:"license_key"`
	HardwareID        string    `json:"hardware_id"`
	Features          []string  `json:"features"`
	Tier              string    `json:"tier,omitempty"`
	ExpiresAt         *string   `json:"expires_at,omitempty"`
	GracePeriodEndsAt *string   `json:"grace_period_ends_at,omitempty"`
	ValidatedAt       time.Time `json:"validated_at"`
}

// newCachedValidation builds a CachedValidation stamped with the current
// time, mirroring original_source's CachedValidation::new.
func newCachedValidation(licenseKey, hardwareID string, features []string, tier string, expiresAt, gracePeriodEndsAt *string) CachedValidation {
	return CachedValidation{
		LicenseKey:        licenseKey,
		HardwareID:        hardwareID,
		Features:          features,
		Tier:              tier,
		ExpiresAt:         expiresAt,
		GracePeriodEndsAt: gracePeriodEndsAt,
		ValidatedAt:       time.Now().UTC(),
	}
}

// IsValidForOffline reports whether this cache currently authorizes offline
// use: a grace period must be present, must parse, and must not yet have
// elapsed (strict '<', matching the server's own boundary rule). An absent
// or unparseable grace period means offline use is not authorized — a
// normal online license has no standing excuse to skip server validation.
func (c CachedValidation) IsValidForOffline(now time.Time) bool {
	if c.GracePeriodEndsAt == nil {
		return false
	}
	end, err := time.Parse(time.RFC3339, *c.GracePeriodEndsAt)
	if err != nil {
		return false
	}
	return now.Before(end)
}

// IsLicenseExpired reports whether ExpiresAt is present, parses, and is not
// after now. An unparseable ExpiresAt is treated as expired (fail-safe),
// matching original_source's behavior.
func (c CachedValidation) IsLicenseExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	exp, err := time.Parse(time.RFC3339, *c.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// MatchesHardware reports whether this cache was validated on the device
// identified by hardwareID.
func (c CachedValidation) MatchesHardware(hardwareID string) bool {
	return c.HardwareID == hardwareID
}

// HasFeature reports whether feature is among the cached feature set.
func (c CachedValidation) HasFeature(feature string) bool {
	for _, f := range c.Features {
		if f == feature {
			return true
		}
	}
	return false
}

func marshalCache(c CachedValidation) ([]byte, error) {
	return json.Marshal(c)
}

func unmarshalCache(data []byte) (CachedValidation, error) {
	var c CachedValidation
	err := json.Unmarshal(data, &c)
	return c, err
}

// bindingIdentity is the immutable record of which license this device is
// bound to (spec §3/§6: the client persists two ciphertext blobs, "license"
// and "cache"). It is persisted separately from CachedValidation so a
// corrupted or stale validation cache can never make the client forget
// which license_key and hardware_id it was bound under.
type bindingIdentity struct {
	LicenseKey          string `json:"license_key"`
	HardwareIDAtBinding string `json:"hardware_id_at_binding"`
}

func marshalBindingIdentity(b bindingIdentity) ([]byte, error) {
	return json.Marshal(b)
}

func unmarshalBindingIdentity(data []byte) (bindingIdentity, error) {
	var b bindingIdentity
	err := json.Unmarshal(data, &b)
	return b, err
}
