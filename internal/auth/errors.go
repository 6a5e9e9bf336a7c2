package auth

import "errors"

// Failure kinds (spec §4.H). Handlers at the HTTP boundary map these to
// their response-envelope codes and HTTP status.
var (
	ErrMissingToken      = errors.New("auth: missing token")
	ErrInvalidHeader     = errors.New("auth: invalid authorization header")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrInsufficientScope = errors.New("auth: insufficient scope")
	ErrAuthDisabled      = errors.New("auth: authentication is disabled")
)
