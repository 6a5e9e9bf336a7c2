// Package httpx is the shared HTTP response envelope for every surface
// (admin, client), generalizing the teacher's inline http.Error(w,
// `{"error":"..."}`, status) calls into one helper backed by a closed code
// set (spec §6).
package httpx

import (
	"encoding/json"
	"net/http"
)

// Code is a closed response-envelope error code (spec §6/§4.G/§4.H).
type Code string

const (
	CodeLicenseNotFound    Code = "LICENSE_NOT_FOUND"
	CodeLicenseExpired     Code = "LICENSE_EXPIRED"
	CodeLicenseRevoked     Code = "LICENSE_REVOKED"
	CodeLicenseSuspended   Code = "LICENSE_SUSPENDED"
	CodeLicenseBlacklisted Code = "LICENSE_BLACKLISTED"
	CodeLicenseInactive    Code = "LICENSE_INACTIVE"
	CodeAlreadyBound       Code = "ALREADY_BOUND"
	CodeNotBound           Code = "NOT_BOUND"
	CodeHardwareMismatch   Code = "HARDWARE_MISMATCH"
	CodeFeatureNotIncluded Code = "FEATURE_NOT_INCLUDED"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"

	CodeMissingToken      Code = "MISSING_TOKEN"
	CodeInvalidHeader     Code = "INVALID_HEADER"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeTokenExpired      Code = "TOKEN_EXPIRED"
	CodeInsufficientScope Code = "INSUFFICIENT_SCOPE"
	CodeAuthDisabled      Code = "AUTH_DISABLED"

	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeMissingField   Code = "MISSING_FIELD"
	CodeInvalidField   Code = "INVALID_FIELD"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeInternalError  Code = "INTERNAL_ERROR"
	CodeRateLimited    Code = "RATE_LIMITED"
)

// statusFor derives the HTTP status from a code, per spec §6: "400
// validation, 401 missing/invalid token, 403 forbidden/disallowed-state,
// 404 not-found, 409 binding conflict, 429 rate-limited, 5xx internal."
func statusFor(code Code) int {
	switch code {
	case CodeMissingToken, CodeInvalidToken, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeInsufficientScope, CodeAuthDisabled,
		CodeLicenseRevoked, CodeLicenseSuspended, CodeLicenseBlacklisted,
		CodeLicenseInactive, CodeLicenseExpired, CodeHardwareMismatch,
		CodeFeatureNotIncluded, CodeQuotaExceeded:
		return http.StatusForbidden
	case CodeLicenseNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyBound, CodeNotBound, CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInvalidRequest, CodeMissingField, CodeInvalidField, CodeInvalidHeader:
		return http.StatusBadRequest
	case CodeDatabaseError, CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

type envelope struct {
	Error errorBody `json:"error"`
}

// WriteError writes the standard {"error":{"code","message","details"}}
// envelope with the HTTP status derived from code.
func WriteError(w http.ResponseWriter, code Code, message string) {
	WriteErrorDetails(w, code, message, nil)
}

// WriteErrorDetails is WriteError with an additional details payload.
func WriteErrorDetails(w http.ResponseWriter, code Code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(envelope{Error: errorBody{Code: code, Message: message, Details: details}})
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
