// Package repository is the storage port (spec §4.F): an abstract set of
// operations over licenses, binding history, and API tokens that the engine
// depends on without knowing the SQL dialect underneath.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dmriding/talos/internal/model"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict is returned when a write would violate a uniqueness
// constraint enforced at this layer (spec §3: license_key globally unique,
// hardware_id unique across active/suspended rows).
var ErrConflict = errors.New("repository: conflict")

// LicenseUpdate carries PATCH semantics (spec §6 PATCH /licenses/{id}):
// a nil pointer means "leave field unchanged", mirroring the teacher's
// UpdateRoleInput pattern in internal/roles/service.go.
type LicenseUpdate struct {
	Features  *[]string
	Metadata  *string
	Tier      *string
	ExpiresAt **time.Time // pointer-to-pointer: outer nil = unchanged, inner nil = clear
}

// Repository is the storage port. Every implementation (sqlite, postgres)
// must honor the same contract: no operation partially mutates a license
// row, and conditional UPDATE statements — not read-modify-write — enforce
// preconditions atomically (spec §5).
type Repository interface {
	InsertLicense(ctx context.Context, l *model.License) error
	UpdateLicense(ctx context.Context, id string, update LicenseUpdate) error
	GetLicenseByID(ctx context.Context, id string) (*model.License, error)
	GetLicenseByKey(ctx context.Context, key string) (*model.License, error)
	GetLicenseByHardware(ctx context.Context, hardwareID string) (*model.License, error)
	LicenseKeyExists(ctx context.Context, key string) (bool, error)

	// Bind atomically binds hardwareID to the license identified by key,
	// re-checking status/blacklist/binding preconditions in the same
	// statement (spec §5). rebind reports whether this was a rebind of an
	// already-matching hardware id (history action bind vs rebind).
	Bind(ctx context.Context, key, hardwareID string, deviceName, deviceInfo *string, now time.Time) (lic *model.License, rebind bool, err error)

	// Release clears binding fields for the license bound to hardwareID
	// under key. ReleaseLicense clears binding fields by id regardless of
	// hardwareID (used by admin release and system cleanup).
	Release(ctx context.Context, key, hardwareID string) (*model.License, error)
	ReleaseLicense(ctx context.Context, id string) (*model.License, error)

	// UpdateLastSeen is the conditional UPDATE backing validate/heartbeat:
	// it only applies when hardwareID still matches the stored binding.
	UpdateLastSeen(ctx context.Context, key, hardwareID string, now time.Time) (*model.License, error)

	Revoke(ctx context.Context, id, reason string, now time.Time) (*model.License, error)
	Reinstate(ctx context.Context, id string, now time.Time) (*model.License, error)
	Suspend(ctx context.Context, id string, graceHours *int, message *string, now time.Time) (*model.License, error)
	Extend(ctx context.Context, id string, newExpiresAt time.Time) (*model.License, error)
	Blacklist(ctx context.Context, id, reason string, now time.Time) (*model.License, error)
	UpdateUsage(ctx context.Context, id string, bandwidthUsedBytes int64) (*model.License, error)

	ListLicensesByOrg(ctx context.Context, orgID string, page, perPage int) ([]model.License, int, error)

	GetExpiredLicenses(ctx context.Context, now time.Time) ([]model.License, error)
	GetExpiredGracePeriodLicenses(ctx context.Context, now time.Time) ([]model.License, error)
	GetStaleDeviceLicenses(ctx context.Context, threshold time.Time) ([]model.License, error)
	ExpireLicense(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireGracePeriod(ctx context.Context, id string, now time.Time) (bool, error)
	CleanStaleDevice(ctx context.Context, id string, lastSeenBefore time.Time) (bool, error)

	RecordBindingHistory(ctx context.Context, h *model.BindingHistory) error

	CreateApiToken(ctx context.Context, t *model.ApiToken) error
	GetApiTokenByHash(ctx context.Context, hash string) (*model.ApiToken, error)
	ListApiTokens(ctx context.Context) ([]model.ApiToken, error)
	RevokeApiToken(ctx context.Context, id string, now time.Time) error
	UpdateTokenLastUsed(ctx context.Context, hash string, now time.Time)
	HasAnyApiTokens(ctx context.Context) (bool, error)
}
