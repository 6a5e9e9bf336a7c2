// Package clientapi is the unauthenticated, rate-limited client-facing
// surface (spec §4.J, §6): bind/release/validate/validateOrBind/
// heartbeat/validateFeature, each a thin JSON wrapper over one engine
// transition.
package clientapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmriding/talos/internal/apierr"
	"github.com/dmriding/talos/internal/engine"
	"github.com/dmriding/talos/internal/httpx"
	"github.com/dmriding/talos/internal/model"
)

// Handler wires the client HTTP surface to an Engine.
type Handler struct {
	engine *engine.Engine
}

// New builds a Handler over eng.
func New(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

type bindRequest struct {
	LicenseKey string  `json:"license_key"`
	HardwareID string  `json:"hardware_id"`
	DeviceName *string `json:"device_name,omitempty"`
	DeviceInfo *string `json:"device_info,omitempty"`
}

type bindResponse struct {
	LicenseID         string   `json:"license_id"`
	Features          []string `json:"features"`
	Tier              string   `json:"tier,omitempty"`
	ExpiresAt         *string  `json:"expires_at,omitempty"`
	GracePeriodEndsAt *string  `json:"grace_period_ends_at,omitempty"`
}

func bindResponseFrom(l *model.License) bindResponse {
	return bindResponse{
		LicenseID:         l.LicenseID,
		Features:          l.Features,
		Tier:              l.Tier,
		ExpiresAt:         formatTimePtr(l.ExpiresAt),
		GracePeriodEndsAt: formatTimePtr(l.GracePeriodEndsAt),
	}
}

// Bind handles POST /api/v1/client/bind.
func (h *Handler) Bind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LicenseKey == "" || req.HardwareID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "license_key and hardware_id are required")
		return
	}

	result, err := h.engine.Bind(r.Context(), req.LicenseKey, req.HardwareID, req.DeviceName, req.DeviceInfo)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bindResponseFrom(result.License))
}

// ValidateOrBind handles POST /api/v1/client/validate-or-bind.
func (h *Handler) ValidateOrBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LicenseKey == "" || req.HardwareID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "license_key and hardware_id are required")
		return
	}

	result, err := h.engine.ValidateOrBind(r.Context(), req.LicenseKey, req.HardwareID, req.DeviceName, req.DeviceInfo)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validateResponseFrom(result.License, ""))
}

type keyHardwareRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
}

type releaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Release handles POST /api/v1/client/release.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var req keyHardwareRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LicenseKey == "" || req.HardwareID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "license_key and hardware_id are required")
		return
	}

	_, err := h.engine.Release(r.Context(), req.LicenseKey, req.HardwareID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, releaseResponse{Success: true, Message: "license released"})
}

type validateResponse struct {
	Valid             bool     `json:"valid"`
	Features          []string `json:"features"`
	Tier              string   `json:"tier,omitempty"`
	ExpiresAt         *string  `json:"expires_at,omitempty"`
	GracePeriodEndsAt *string  `json:"grace_period_ends_at,omitempty"`
	Warning           string   `json:"warning,omitempty"`
}

func validateResponseFrom(l *model.License, warning string) validateResponse {
	return validateResponse{
		Valid:             true,
		Features:          l.Features,
		Tier:              l.Tier,
		ExpiresAt:         formatTimePtr(l.ExpiresAt),
		GracePeriodEndsAt: formatTimePtr(l.GracePeriodEndsAt),
		Warning:           warning,
	}
}

// Validate handles POST /api/v1/client/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req keyHardwareRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LicenseKey == "" || req.HardwareID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "license_key and hardware_id are required")
		return
	}

	result, err := h.engine.Validate(r.Context(), req.LicenseKey, req.HardwareID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validateResponseFrom(result.License, result.Warning))
}

type heartbeatResponse struct {
	ServerTime        string  `json:"server_time"`
	GracePeriodEndsAt *string `json:"grace_period_ends_at,omitempty"`
}

// Heartbeat handles POST /api/v1/client/heartbeat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req keyHardwareRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LicenseKey == "" || req.HardwareID == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "license_key and hardware_id are required")
		return
	}

	result, err := h.engine.Heartbeat(r.Context(), req.LicenseKey, req.HardwareID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, heartbeatResponse{
		ServerTime:        result.ServerTime.Format(rfc3339),
		GracePeriodEndsAt: formatTimePtr(result.GracePeriodEndsAt),
	})
}

type validateFeatureRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
	Feature    string `json:"feature"`
}

type validateFeatureResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

// ValidateFeature handles POST /api/v1/client/validate-feature.
func (h *Handler) ValidateFeature(w http.ResponseWriter, r *http.Request) {
	var req validateFeatureRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LicenseKey == "" || req.HardwareID == "" || req.Feature == "" {
		httpx.WriteError(w, httpx.CodeMissingField, "license_key, hardware_id and feature are required")
		return
	}

	result, err := h.engine.ValidateFeature(r.Context(), req.LicenseKey, req.HardwareID, req.Feature)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	resp := validateFeatureResponse{Allowed: result.Allowed, Tier: result.Tier}
	if !result.Allowed {
		resp.Message = "feature not included in license"
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, httpx.CodeInvalidRequest, "malformed request body")
		return false
	}
	return true
}

const rfc3339 = time.RFC3339

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(rfc3339)
	return &s
}
