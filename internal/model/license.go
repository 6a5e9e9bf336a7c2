// Package model defines the persisted shapes of the licensing domain:
// licenses, their binding-history audit trail, and admin API tokens.
package model

import "time"

// Status is the coarse lifecycle state of a License.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// License is the authoritative, server-side record (spec §3).
type License struct {
	LicenseID  string
	LicenseKey string

	OrgID    string
	OrgName  string
	Tier     string
	Features []string
	Metadata string // opaque JSON blob, stored and returned verbatim

	Status        Status
	IsBlacklisted bool

	IssuedAt       time.Time
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
	SuspendedAt    *time.Time
	BlacklistedAt  *time.Time

	RevokeReason      *string
	SuspensionMessage *string
	BlacklistReason   *string

	GracePeriodEndsAt *time.Time

	HardwareID string // "" when unbound
	DeviceName *string
	DeviceInfo *string
	BoundAt    *time.Time
	LastSeenAt *time.Time

	BandwidthUsedBytes  int64
	BandwidthLimitBytes *int64
	QuotaExceeded       bool
}

// IsBound reports whether the license currently has a hardware binding.
func (l *License) IsBound() bool {
	return l.HardwareID != ""
}

// HasFeature reports whether feature is in the license's granted feature set.
func (l *License) HasFeature(feature string) bool {
	for _, f := range l.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// IsExpired reports whether ExpiresAt is set and strictly before now.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// HasActiveGracePeriod reports whether GracePeriodEndsAt authorizes offline
// operation at now (strict '<', per spec §8 boundary behavior).
func (l *License) HasActiveGracePeriod(now time.Time) bool {
	return l.GracePeriodEndsAt != nil && now.Before(*l.GracePeriodEndsAt)
}

// BindingAction enumerates BindingHistory.Action values.
type BindingAction string

const (
	ActionBind         BindingAction = "bind"
	ActionRelease      BindingAction = "release"
	ActionAdminRelease BindingAction = "admin_release"
	ActionSystemRelease BindingAction = "system_release"
	ActionRebind       BindingAction = "rebind"
)

// PerformedBy enumerates who triggered a BindingHistory entry.
type PerformedBy string

const (
	PerformedByUser  PerformedBy = "user"
	PerformedByAdmin PerformedBy = "admin"
	PerformedBySystem PerformedBy = "system"
)

// BindingHistory is an append-only audit record of a binding change
// (spec §3). Rows are never mutated after insert.
type BindingHistory struct {
	ID          string
	LicenseID   string
	Action      BindingAction
	HardwareID  *string
	DeviceName  *string
	DeviceInfo  *string
	PerformedBy PerformedBy
	Reason      *string
	Timestamp   time.Time
}

// ApiToken is an admin credential. The raw token value is never persisted;
// only TokenHash is stored (spec §3, §4.H).
type ApiToken struct {
	ID          string
	Name        string
	TokenHash   string
	Scopes      []string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
	CreatedBy   *string
}

// IsValid reports whether the token may currently be used: not revoked and
// not past its expiry, if any.
func (t *ApiToken) IsValid(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		return false
	}
	return true
}
