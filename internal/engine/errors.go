package engine

import "errors"

// Error taxonomy emitted by the engine (spec §4.G). These are values, not
// exceptional conditions: "the engine never throws on expected policy
// outcomes (e.g., LicenseExpired, AlreadyBound)."
var (
	ErrLicenseNotFound    = errors.New("engine: license not found")
	ErrLicenseExpired     = errors.New("engine: license expired")
	ErrLicenseRevoked     = errors.New("engine: license revoked")
	ErrLicenseSuspended   = errors.New("engine: license suspended")
	ErrLicenseBlacklisted = errors.New("engine: license blacklisted")
	ErrLicenseInactive    = errors.New("engine: license inactive")
	ErrAlreadyBound       = errors.New("engine: license already bound to another device")
	ErrNotBound           = errors.New("engine: license is not bound")
	ErrHardwareMismatch   = errors.New("engine: hardware id does not match binding")
	ErrFeatureNotIncluded = errors.New("engine: feature not included in license")
	ErrQuotaExceeded      = errors.New("engine: bandwidth quota exceeded")

	ErrInvalidRequest     = errors.New("engine: invalid request")
	ErrInternal           = errors.New("engine: internal error")
)
