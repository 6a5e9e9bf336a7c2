package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the bearer-token payload (spec §4.H): subject, issued/expires
// at, issuer, audience, and a scope string.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// BearerValidator signs and validates short-lived bearer tokens for the
// admin surface, grounded on original_source/src/server/auth.rs's
// JwtValidator and the teacher's jwt/v5 usage in internal/auth/tokens.go.
type BearerValidator struct {
	secret   string
	issuer   string
	audience string
	ttl      time.Duration
}

// NewBearerValidator builds a validator from server configuration.
func NewBearerValidator(secret, issuer, audience string, ttl time.Duration) *BearerValidator {
	return &BearerValidator{secret: secret, issuer: issuer, audience: audience, ttl: ttl}
}

// CreateToken issues a signed bearer token for subject with the given
// scopes (whitespace-joined into the scope claim).
func (v *BearerValidator) CreateToken(subject string, scopes []string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Scope: JoinScopes(scopes),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.secret))
}

// Validate parses and verifies tokenStr: signature, issuer, audience, and
// expiration. It returns the failure kinds from spec §4.H as sentinel
// errors rather than raw jwt/v5 errors, so callers translate exactly one
// taxonomy at the HTTP boundary.
func (v *BearerValidator) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return []byte(v.secret), nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Scopes returns the parsed scope list carried by the claims.
func (c *Claims) Scopes() []string {
	return ParseScopes(c.Scope)
}
