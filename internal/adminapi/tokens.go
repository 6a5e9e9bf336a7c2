package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmriding/talos/internal/auth"
	"github.com/dmriding/talos/internal/httpx"
	"github.com/dmriding/talos/internal/model"
	"github.com/dmriding/talos/internal/repository"
)

// TokenHandler manages admin API tokens (spec §4.H, §6: "Token endpoints:
// create/list/get/revoke under /api/v1/tokens"). It is a thin wrapper over
// the repository directly — token issuance is not a license-lifecycle
// transition, so it has no place in Engine.
type TokenHandler struct {
	repo repository.Repository
}

// NewTokenHandler builds a TokenHandler over repo.
func NewTokenHandler(repo repository.Repository) *TokenHandler {
	return &TokenHandler{repo: repo}
}

type createTokenRequest struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expires_at"`
}

type createTokenResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Token     string   `json:"token"` // raw value, shown exactly once
	Scopes    []string `json:"scopes"`
	CreatedAt string   `json:"created_at"`
	ExpiresAt *string  `json:"expires_at,omitempty"`
}

// Create handles POST /api/v1/tokens.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || len(req.Scopes) == 0 {
		httpx.WriteError(w, httpx.CodeMissingField, "name and scopes are required")
		return
	}

	raw, err := auth.GenerateRawToken()
	if err != nil {
		httpx.WriteError(w, httpx.CodeInternalError, "failed to generate token")
		return
	}

	now := time.Now().UTC()
	t := &model.ApiToken{
		ID:        uuid.NewString(),
		Name:      req.Name,
		TokenHash: auth.HashToken(raw),
		Scopes:    req.Scopes,
		CreatedAt: now,
	}
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			httpx.WriteError(w, httpx.CodeInvalidField, "expires_at must be RFC3339")
			return
		}
		t.ExpiresAt = &parsed
	}

	if err := h.repo.CreateApiToken(r.Context(), t); err != nil {
		httpx.WriteError(w, httpx.CodeInternalError, "failed to store token")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, createTokenResponse{
		ID: t.ID, Name: t.Name, Token: raw, Scopes: t.Scopes,
		CreatedAt: t.CreatedAt.Format(time.RFC3339), ExpiresAt: formatTimePtr(t.ExpiresAt),
	})
}

type tokenView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Scopes     []string `json:"scopes"`
	CreatedAt  string  `json:"created_at"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
	RevokedAt  *string `json:"revoked_at,omitempty"`
}

func tokenViewFrom(t *model.ApiToken) tokenView {
	return tokenView{
		ID: t.ID, Name: t.Name, Scopes: t.Scopes,
		CreatedAt: t.CreatedAt.Format(time.RFC3339), ExpiresAt: formatTimePtr(t.ExpiresAt),
		LastUsedAt: formatTimePtr(t.LastUsedAt), RevokedAt: formatTimePtr(t.RevokedAt),
	}
}

// List handles GET /api/v1/tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.repo.ListApiTokens(r.Context())
	if err != nil {
		httpx.WriteError(w, httpx.CodeInternalError, "failed to list tokens")
		return
	}
	views := make([]tokenView, len(tokens))
	for i := range tokens {
		views[i] = tokenViewFrom(&tokens[i])
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

// Get handles GET /api/v1/tokens/{id}. Tokens are looked up by hash, not
// id, in the repository's hot path (authentication); this admin listing
// path scans ListApiTokens instead since it is infrequent and id-keyed.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tokens, err := h.repo.ListApiTokens(r.Context())
	if err != nil {
		httpx.WriteError(w, httpx.CodeInternalError, "failed to list tokens")
		return
	}
	for i := range tokens {
		if tokens[i].ID == id {
			httpx.WriteJSON(w, http.StatusOK, tokenViewFrom(&tokens[i]))
			return
		}
	}
	httpx.WriteError(w, httpx.CodeNotFound, "token not found")
}

// Revoke handles POST /api/v1/tokens/{id}/revoke.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.RevokeApiToken(r.Context(), id, time.Now().UTC()); err != nil {
		httpx.WriteError(w, httpx.CodeNotFound, "token not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
