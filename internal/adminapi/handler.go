// Package adminapi is the authenticated license-management surface (spec
// §4.I, §6), mirroring engine transitions one-to-one behind
// licenses:read/licenses:write scopes, grounded on the teacher's
// internal/roles handler's chi.URLParam + PATCH-raw-map idiom.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmriding/talos/internal/apierr"
	"github.com/dmriding/talos/internal/engine"
	"github.com/dmriding/talos/internal/httpx"
	"github.com/dmriding/talos/internal/model"
	"github.com/dmriding/talos/internal/repository"
)

// Handler wires the admin HTTP surface to an Engine.
type Handler struct {
	engine *engine.Engine
}

// New builds a Handler over eng.
func New(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

type licenseView struct {
	LicenseID           string   `json:"license_id"`
	LicenseKey          string   `json:"license_key"`
	OrgID               string   `json:"org_id"`
	OrgName             string   `json:"org_name,omitempty"`
	Tier                string   `json:"tier,omitempty"`
	Features            []string `json:"features"`
	Metadata            string   `json:"metadata"`
	Status              string   `json:"status"`
	IsBlacklisted       bool     `json:"is_blacklisted"`
	IssuedAt            string   `json:"issued_at"`
	ExpiresAt           *string  `json:"expires_at,omitempty"`
	HardwareID          string   `json:"hardware_id,omitempty"`
	DeviceName          *string  `json:"device_name,omitempty"`
	BoundAt             *string  `json:"bound_at,omitempty"`
	LastSeenAt          *string  `json:"last_seen_at,omitempty"`
	GracePeriodEndsAt   *string  `json:"grace_period_ends_at,omitempty"`
	BandwidthUsedBytes  int64    `json:"bandwidth_used_bytes"`
	BandwidthLimitBytes *int64   `json:"bandwidth_limit_bytes,omitempty"`
	QuotaExceeded       bool     `json:"quota_exceeded"`
}

func viewFrom(l *model.License) licenseView {
	return licenseView{
		LicenseID: l.LicenseID, LicenseKey: l.LicenseKey,
		OrgID: l.OrgID, OrgName: l.OrgName, Tier: l.Tier,
		Features: l.Features, Metadata: l.Metadata,
		Status: string(l.Status), IsBlacklisted: l.IsBlacklisted,
		IssuedAt: l.IssuedAt.Format(time.RFC3339), ExpiresAt: formatTimePtr(l.ExpiresAt),
		HardwareID: l.HardwareID, DeviceName: l.DeviceName,
		BoundAt: formatTimePtr(l.BoundAt), LastSeenAt: formatTimePtr(l.LastSeenAt),
		GracePeriodEndsAt:   formatTimePtr(l.GracePeriodEndsAt),
		BandwidthUsedBytes:  l.BandwidthUsedBytes,
		BandwidthLimitBytes: l.BandwidthLimitBytes,
		QuotaExceeded:       l.QuotaExceeded,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type createRequest struct {
	OrgID     string   `json:"org_id"`
	OrgName   string   `json:"org_name"`
	Tier      string   `json:"tier"`
	Features  []string `json:"features"`
	Metadata  string   `json:"metadata"`
	ExpiresAt *string  `json:"expires_at"`
}

func (req createRequest) toInput() (engine.CreateInput, error) {
	in := engine.CreateInput{
		OrgID: req.OrgID, OrgName: req.OrgName, Tier: req.Tier,
		Features: req.Features, Metadata: req.Metadata,
	}
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return in, err
		}
		in.ExpiresAt = &t
	}
	return in, nil
}

// Create handles POST /api/v1/licenses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OrgID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "org_id is required")
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.WriteError(w, httpx.CodeInvalidField, "expires_at must be RFC3339")
		return
	}
	lic, err := h.engine.Create(r.Context(), in)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, viewFrom(lic))
}

type batchCreateRequest struct {
	createRequest
	Count int `json:"count"`
}

type batchCreateResponse struct {
	Created []licenseView `json:"created"`
	Count   int           `json:"count"`
}

// CreateBatch handles POST /api/v1/licenses/batch.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OrgID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "org_id is required")
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.WriteError(w, httpx.CodeInvalidField, "expires_at must be RFC3339")
		return
	}

	created, err := h.engine.CreateBatch(r.Context(), in, req.Count)
	views := make([]licenseView, len(created))
	for i := range created {
		views[i] = viewFrom(&created[i])
	}
	if err != nil {
		httpx.WriteErrorDetails(w, codeFor(err), "batch create failed partway through", batchCreateResponse{Created: views, Count: len(views)})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, batchCreateResponse{Created: views, Count: len(views)})
}

func codeFor(err error) httpx.Code {
	if err == engine.ErrInvalidRequest {
		return httpx.CodeInvalidRequest
	}
	return httpx.CodeInternalError
}

// Get handles GET /api/v1/licenses/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lic, err := h.engine.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

type listResponse struct {
	Licenses []licenseView `json:"licenses"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PerPage  int           `json:"per_page"`
}

// List handles GET /api/v1/licenses?org_id=&page=&per_page=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "org_id is required")
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)

	licenses, total, err := h.engine.List(r.Context(), orgID, page, perPage)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	views := make([]licenseView, len(licenses))
	for i := range licenses {
		views[i] = viewFrom(&licenses[i])
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Licenses: views, Total: total, Page: page, PerPage: perPage})
}

// Update handles PATCH /api/v1/licenses/{id}, decoding a raw JSON map so a
// present-but-null field clears it and an absent field leaves it untouched
// (grounded on internal/roles/handler.go's UpdateRole).
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		httpx.WriteError(w, httpx.CodeInvalidRequest, "malformed request body")
		return
	}

	var update repository.LicenseUpdate
	if v, ok := raw["features"]; ok {
		var features []string
		if err := json.Unmarshal(v, &features); err != nil {
			httpx.WriteError(w, httpx.CodeInvalidField, "features must be an array of strings")
			return
		}
		update.Features = &features
	}
	if v, ok := raw["metadata"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			httpx.WriteError(w, httpx.CodeInvalidField, "metadata must be a string")
			return
		}
		update.Metadata = &s
	}
	if v, ok := raw["tier"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			httpx.WriteError(w, httpx.CodeInvalidField, "tier must be a string")
			return
		}
		update.Tier = &s
	}
	if v, ok := raw["expires_at"]; ok {
		if string(v) == "null" {
			var nilTime *time.Time
			update.ExpiresAt = &nilTime
		} else {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				httpx.WriteError(w, httpx.CodeInvalidField, "expires_at must be an RFC3339 string or null")
				return
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				httpx.WriteError(w, httpx.CodeInvalidField, "expires_at must be RFC3339")
				return
			}
			tp := &t
			update.ExpiresAt = &tp
		}
	}

	lic, err := h.engine.Update(r.Context(), id, update)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Revoke handles POST /api/v1/licenses/{id}/revoke.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	lic, err := h.engine.Revoke(r.Context(), id, req.Reason)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

// Reinstate handles POST /api/v1/licenses/{id}/reinstate.
func (h *Handler) Reinstate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lic, err := h.engine.Reinstate(r.Context(), id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

type suspendRequest struct {
	GraceHours *int    `json:"grace_hours"`
	Message    *string `json:"message"`
}

// Suspend handles POST /api/v1/licenses/{id}/suspend.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req suspendRequest
	if !decode(w, r, &req) {
		return
	}
	lic, err := h.engine.Suspend(r.Context(), id, req.GraceHours, req.Message)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

type extendRequest struct {
	ExpiresAt string `json:"expires_at"`
}

// Extend handles POST /api/v1/licenses/{id}/extend.
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req extendRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		httpx.WriteError(w, httpx.CodeInvalidField, "expires_at must be RFC3339")
		return
	}
	lic, err := h.engine.Extend(r.Context(), id, t)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

// Release handles POST /api/v1/licenses/{id}/release.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	lic, err := h.engine.AdminRelease(r.Context(), id, req.Reason)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

// Blacklist handles POST /api/v1/licenses/{id}/blacklist.
func (h *Handler) Blacklist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	lic, err := h.engine.Blacklist(r.Context(), id, req.Reason)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

type usageRequest struct {
	BandwidthUsedBytes int64 `json:"bandwidth_used_bytes"`
}

// Usage handles POST /api/v1/licenses/{id}/usage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req usageRequest
	if !decode(w, r, &req) {
		return
	}
	lic, err := h.engine.UpdateUsage(r.Context(), id, req.BandwidthUsedBytes)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewFrom(lic))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, httpx.CodeInvalidRequest, "malformed request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
