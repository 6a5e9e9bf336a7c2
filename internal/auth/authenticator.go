package auth

import (
	"context"
	"strings"
	"time"
)

// TokenLookup resolves a hashed API token value to its scopes and validity,
// implemented by internal/repository against the api_tokens table. Returning
// ok=false means "not found or not currently valid" without distinguishing
// the reason, matching spec §4.H's InvalidToken failure kind.
type TokenLookup func(ctx context.Context, tokenHash string) (scopes []string, ok bool, err error)

// TokenLastUsedRecorder best-effort records that a token was just used.
type TokenLastUsedRecorder func(ctx context.Context, tokenHash string, at time.Time)

// Authenticator validates the Authorization header under both schemes
// described in spec §4.H: long-lived API tokens (recognizable by the
// TokenPrefix) and short-lived signed bearer tokens, otherwise.
type Authenticator struct {
	Bearer       *BearerValidator
	LookupToken  TokenLookup
	RecordUsage  TokenLastUsedRecorder
}

// Result is the authenticated principal: a subject identifier and the
// scopes it carries, regardless of which scheme authenticated it.
type Result struct {
	Subject string
	Scopes  []string
}

// Authenticate validates rawToken (already stripped of the "Bearer " prefix)
// under whichever scheme applies.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*Result, error) {
	if strings.HasPrefix(rawToken, TokenPrefix) {
		return a.authenticateAPIToken(ctx, rawToken)
	}
	return a.authenticateBearer(rawToken)
}

func (a *Authenticator) authenticateAPIToken(ctx context.Context, rawToken string) (*Result, error) {
	if a.LookupToken == nil {
		return nil, ErrInvalidToken
	}
	hash := HashToken(rawToken)
	scopes, ok, err := a.LookupToken(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	if a.RecordUsage != nil {
		a.RecordUsage(ctx, hash, time.Now().UTC())
	}
	return &Result{Subject: hash[:12], Scopes: scopes}, nil
}

func (a *Authenticator) authenticateBearer(rawToken string) (*Result, error) {
	claims, err := a.Bearer.Validate(rawToken)
	if err != nil {
		return nil, err
	}
	return &Result{Subject: claims.Subject, Scopes: claims.Scopes()}, nil
}
