package auth

import "strings"

// HasScope reports whether any of the granted scopes in held satisfies
// required, under the matching rules shared by API
// tokens and bearer tokens (spec §4.H): a held scope of "*" admits
// anything; "category:*" admits any verb in that category; otherwise the
// scopes must match exactly.
func HasScope(held []string, required string) bool {
	for _, h := range held {
		if scopeMatches(h, required) {
			return true
		}
	}
	return false
}

func scopeMatches(held, required string) bool {
	if held == "*" {
		return true
	}
	if held == required {
		return true
	}
	heldCategory, heldVerb, ok := splitScope(held)
	if ok && heldVerb == "*" {
		reqCategory, _, reqOK := splitScope(required)
		if reqOK && reqCategory == heldCategory {
			return true
		}
	}
	return false
}

func splitScope(scope string) (category, verb string, ok bool) {
	idx := strings.IndexByte(scope, ':')
	if idx < 0 {
		return "", "", false
	}
	return scope[:idx], scope[idx+1:], true
}

// ParseScopes splits a whitespace-separated scope string (as stored on
// ApiToken rows) into its individual scopes.
func ParseScopes(raw string) []string {
	return strings.Fields(raw)
}

// JoinScopes is the inverse of ParseScopes, for persistence.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
