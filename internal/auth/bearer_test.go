package auth

import (
	"testing"
	"time"
)

func TestCreateTokenThenValidateRoundTrip(t *testing.T) {
	v := NewBearerValidator("shh-secret", "talos", "talos-admin", time.Hour)
	tok, err := v.CreateToken("user-1", []string{"licenses:read", "licenses:write"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	claims, err := v.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	scopes := claims.Scopes()
	if len(scopes) != 2 || scopes[0] != "licenses:read" || scopes[1] != "licenses:write" {
		t.Fatalf("unexpected scopes %v", scopes)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v := NewBearerValidator("shh-secret", "talos", "talos-admin", -time.Minute)
	tok, err := v.CreateToken("user-1", []string{"licenses:read"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := v.Validate(tok); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issuer := NewBearerValidator("shh-secret", "talos", "talos-admin", time.Hour)
	tok, err := issuer.CreateToken("user-1", []string{"licenses:read"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	other := NewBearerValidator("shh-secret", "not-talos", "talos-admin", time.Hour)
	if _, err := other.Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for issuer mismatch, got %v", err)
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	issuer := NewBearerValidator("shh-secret", "talos", "talos-admin", time.Hour)
	tok, err := issuer.CreateToken("user-1", []string{"licenses:read"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	other := NewBearerValidator("shh-secret", "talos", "some-other-audience", time.Hour)
	if _, err := other.Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for audience mismatch, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewBearerValidator("shh-secret", "talos", "talos-admin", time.Hour)
	tok, err := issuer.CreateToken("user-1", []string{"licenses:read"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	other := NewBearerValidator("different-secret", "talos", "talos-admin", time.Hour)
	if _, err := other.Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for secret mismatch, got %v", err)
	}
}
