// Package apierr translates engine and repository errors into the HTTP
// envelope's closed code set (spec §6/§7), so adminapi and clientapi share
// one mapping instead of each re-deriving it.
package apierr

import (
	"errors"
	"net/http"

	"github.com/dmriding/talos/internal/engine"
	"github.com/dmriding/talos/internal/httpx"
	"github.com/dmriding/talos/internal/repository"
)

// Write translates err into the appropriate error envelope and writes it.
// Any error not recognized as a policy outcome is reported as an internal
// error (spec §7: "infrastructure failures surface as a generic internal
// error, never as a specific policy code").
func Write(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrLicenseNotFound):
		httpx.WriteError(w, httpx.CodeLicenseNotFound, "license not found")
	case errors.Is(err, engine.ErrLicenseExpired):
		httpx.WriteError(w, httpx.CodeLicenseExpired, "license has expired")
	case errors.Is(err, engine.ErrLicenseRevoked):
		httpx.WriteError(w, httpx.CodeLicenseRevoked, "license has been revoked")
	case errors.Is(err, engine.ErrLicenseSuspended):
		httpx.WriteError(w, httpx.CodeLicenseSuspended, "license is suspended")
	case errors.Is(err, engine.ErrLicenseBlacklisted):
		httpx.WriteError(w, httpx.CodeLicenseBlacklisted, "license is blacklisted")
	case errors.Is(err, engine.ErrLicenseInactive):
		httpx.WriteError(w, httpx.CodeLicenseInactive, "license is not active")
	case errors.Is(err, engine.ErrAlreadyBound):
		httpx.WriteError(w, httpx.CodeAlreadyBound, "license is already bound to another device")
	case errors.Is(err, engine.ErrNotBound):
		httpx.WriteError(w, httpx.CodeNotBound, "license is not currently bound")
	case errors.Is(err, engine.ErrHardwareMismatch):
		httpx.WriteError(w, httpx.CodeHardwareMismatch, "hardware id does not match the current binding")
	case errors.Is(err, engine.ErrFeatureNotIncluded):
		httpx.WriteError(w, httpx.CodeFeatureNotIncluded, "feature not included in license")
	case errors.Is(err, engine.ErrQuotaExceeded):
		httpx.WriteError(w, httpx.CodeQuotaExceeded, "bandwidth quota exceeded")
	case errors.Is(err, engine.ErrInvalidRequest):
		httpx.WriteError(w, httpx.CodeInvalidRequest, "invalid request")
	case errors.Is(err, repository.ErrConflict):
		httpx.WriteError(w, httpx.CodeConflict, "conflicting state")
	case errors.Is(err, repository.ErrNotFound):
		httpx.WriteError(w, httpx.CodeNotFound, "not found")
	default:
		httpx.WriteError(w, httpx.CodeInternalError, "internal error")
	}
}
