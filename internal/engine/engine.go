// Package engine is the license lifecycle state machine (spec §4.G): the
// central authority for every transition reachable from the admin surface,
// the client surface, or the background job scheduler.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/dmriding/talos/internal/eventstream"
	"github.com/dmriding/talos/internal/licensekey"
	"github.com/dmriding/talos/internal/model"
	"github.com/dmriding/talos/internal/repository"
	"github.com/dmriding/talos/internal/tiers"
)

// Engine owns every license transition. Constructed once at startup and
// threaded explicitly through the admin/client surfaces and the job
// scheduler — no module-level mutable singleton (spec §9 design note).
type Engine struct {
	repo   repository.Repository
	tiers  *tiers.Registry
	keyCfg licensekey.Config
	log    *slog.Logger
	hub    *eventstream.Hub
}

// New builds an Engine over repo, using keyCfg to generate new license keys
// and tierRegistry to default features/bandwidth at issuance. hub is
// optional (nil disables publishing): when set, every license transition
// also fans out to connected admin dashboards (SPEC_FULL.md's "Admin live
// event stream" enrichment).
func New(repo repository.Repository, tierRegistry *tiers.Registry, keyCfg licensekey.Config, log *slog.Logger, hub *eventstream.Hub) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{repo: repo, tiers: tierRegistry, keyCfg: keyCfg, log: log, hub: hub}
}

func (e *Engine) logTransition(kind, licenseID, hardwareID, actor, reason string) {
	e.log.Info("license transition",
		"event_kind", kind,
		"license_id", licenseID,
		"hardware_id", hardwareID,
		"actor", actor,
		"reason", reason,
	)
}

// publish fans lic's current state out to connected admin dashboards under
// evt, a no-op when no hub was wired (e.g. in tests).
func (e *Engine) publish(evt eventstream.EventType, lic *model.License) {
	if e.hub == nil || lic == nil {
		return
	}
	e.hub.Broadcast(eventstream.Envelope{Type: evt, Payload: lic})
}

// translate maps a repository ErrNotFound into the closed engine taxonomy,
// and passes through any infrastructure failure unchanged (spec §7:
// infrastructure failures surface as DatabaseError, not as a policy
// outcome).
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrLicenseNotFound
	}
	return err
}

// checkGateways applies the ordering spec §4.G requires: "Blacklist is
// checked before status; status before binding; binding before
// feature/quota."
func checkGateways(l *model.License, requireStatus model.Status, hardwareID string, now time.Time) error {
	if l.IsBlacklisted {
		return ErrLicenseBlacklisted
	}
	if requireStatus != "" {
		switch l.Status {
		case model.StatusRevoked:
			return ErrLicenseRevoked
		case model.StatusSuspended:
			return ErrLicenseSuspended
		case model.StatusExpired:
			return ErrLicenseExpired
		}
		if l.IsExpired(now) {
			return ErrLicenseExpired
		}
		if l.Status != requireStatus {
			return ErrLicenseInactive
		}
	}
	if hardwareID != "" {
		if !l.IsBound() {
			return ErrNotBound
		}
		if l.HardwareID != hardwareID {
			return ErrHardwareMismatch
		}
	}
	return nil
}

// ---- Client-facing transitions ---------------------------------------------

// BindResult is returned by Bind and ValidateOrBind.
type BindResult struct {
	License *model.License
	Rebind  bool
}

// Bind implements spec §4.G's bind transition.
func (e *Engine) Bind(ctx context.Context, key, hardwareID string, deviceName, deviceInfo *string) (*BindResult, error) {
	existing, err := e.repo.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, translate(err)
	}
	now := time.Now().UTC()

	if existing.IsBlacklisted {
		return nil, ErrLicenseBlacklisted
	}
	if existing.Status != model.StatusActive && existing.Status != model.StatusSuspended {
		return nil, ErrLicenseInactive
	}
	if existing.IsExpired(now) {
		return nil, ErrLicenseExpired
	}
	if existing.IsBound() && existing.HardwareID != hardwareID {
		return nil, ErrAlreadyBound
	}

	lic, rebind, err := e.repo.Bind(ctx, key, hardwareID, deviceName, deviceInfo, now)
	if err != nil {
		return nil, translate(err)
	}

	action := model.ActionBind
	if rebind {
		action = model.ActionRebind
	}
	_ = e.repo.RecordBindingHistory(ctx, &model.BindingHistory{
		ID: uuid.NewString(), LicenseID: lic.LicenseID, Action: action,
		HardwareID: &hardwareID, DeviceName: deviceName, DeviceInfo: deviceInfo,
		PerformedBy: model.PerformedByUser, Timestamp: now,
	})
	e.logTransition(string(action), lic.LicenseID, hardwareID, "user", "")
	e.publish(eventstream.EventLicenseBound, lic)
	return &BindResult{License: lic, Rebind: rebind}, nil
}

// Release implements spec §4.G's release transition.
func (e *Engine) Release(ctx context.Context, key, hardwareID string) (*model.License, error) {
	existing, err := e.repo.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, translate(err)
	}
	if !existing.IsBound() {
		return nil, ErrNotBound
	}
	if existing.HardwareID != hardwareID {
		return nil, ErrHardwareMismatch
	}

	lic, err := e.repo.Release(ctx, key, hardwareID)
	if err != nil {
		return nil, translate(err)
	}

	_ = e.repo.RecordBindingHistory(ctx, &model.BindingHistory{
		ID: uuid.NewString(), LicenseID: lic.LicenseID, Action: model.ActionRelease,
		HardwareID: &hardwareID, PerformedBy: model.PerformedByUser, Timestamp: time.Now().UTC(),
	})
	e.logTransition("release", lic.LicenseID, hardwareID, "user", "")
	e.publish(eventstream.EventLicenseReleased, lic)
	return lic, nil
}

// ValidateResult is returned by Validate.
type ValidateResult struct {
	License *model.License
	Warning string // non-empty when expiring soon
}

// Validate implements spec §4.G's validate transition.
func (e *Engine) Validate(ctx context.Context, key, hardwareID string) (*ValidateResult, error) {
	lic, err := e.repo.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, translate(err)
	}
	now := time.Now().UTC()
	if err := checkGateways(lic, model.StatusActive, hardwareID, now); err != nil {
		e.log.Warn("validation failed", "license_id", lic.LicenseID, "hardware_id", hardwareID, "reason", err.Error())
		return nil, err
	}

	updated, err := e.repo.UpdateLastSeen(ctx, key, hardwareID, now)
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("validate", updated.LicenseID, hardwareID, "user", "")

	result := &ValidateResult{License: updated}
	if updated.ExpiresAt != nil {
		remaining := updated.ExpiresAt.Sub(now)
		if remaining > 0 && remaining < 7*24*time.Hour {
			result.Warning = "license expires soon"
		}
	}
	return result, nil
}

// ValidateOrBind implements spec §4.G: validate when already bound to hw,
// bind when unbound.
func (e *Engine) ValidateOrBind(ctx context.Context, key, hardwareID string, deviceName, deviceInfo *string) (*BindResult, error) {
	existing, err := e.repo.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, translate(err)
	}
	if existing.IsBound() && existing.HardwareID == hardwareID {
		vr, err := e.Validate(ctx, key, hardwareID)
		if err != nil {
			return nil, err
		}
		return &BindResult{License: vr.License, Rebind: true}, nil
	}
	return e.Bind(ctx, key, hardwareID, deviceName, deviceInfo)
}

// HeartbeatResult is returned by Heartbeat.
type HeartbeatResult struct {
	ServerTime        time.Time
	GracePeriodEndsAt *time.Time
}

// Heartbeat implements spec §4.G's heartbeat transition.
func (e *Engine) Heartbeat(ctx context.Context, key, hardwareID string) (*HeartbeatResult, error) {
	lic, err := e.repo.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, translate(err)
	}
	now := time.Now().UTC()
	if err := checkGateways(lic, "", hardwareID, now); err != nil {
		return nil, err
	}

	updated, err := e.repo.UpdateLastSeen(ctx, key, hardwareID, now)
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("heartbeat", updated.LicenseID, hardwareID, "user", "")
	return &HeartbeatResult{ServerTime: now, GracePeriodEndsAt: updated.GracePeriodEndsAt}, nil
}

// ValidateFeatureResult is returned by ValidateFeature.
type ValidateFeatureResult struct {
	Allowed bool
	Tier    string
}

// ValidateFeature implements spec §4.G's validateFeature transition.
func (e *Engine) ValidateFeature(ctx context.Context, key, hardwareID, feature string) (*ValidateFeatureResult, error) {
	vr, err := e.Validate(ctx, key, hardwareID)
	if err != nil {
		return nil, err
	}
	return &ValidateFeatureResult{Allowed: vr.License.HasFeature(feature), Tier: vr.License.Tier}, nil
}

// ---- Admin transitions -------------------------------------------------------

// CreateInput carries issuance attributes for admin Create.
type CreateInput struct {
	OrgID    string
	OrgName  string
	Tier     string
	Features []string
	Metadata string
	ExpiresAt *time.Time
}

// Create implements spec §4.G admin create: unique key generation with
// retry, defaulting features/bandwidth from the tier registry when the
// admin didn't specify them (SPEC_FULL.md's supplemented tier lookup).
func (e *Engine) Create(ctx context.Context, in CreateInput) (*model.License, error) {
	key, err := licensekey.GenerateUnique(e.keyCfg, 5, func(k string) (bool, error) {
		return e.repo.LicenseKeyExists(ctx, k)
	})
	if err != nil {
		if errors.Is(err, licensekey.ErrGenerationExhausted) {
			return nil, ErrInternal
		}
		return nil, err
	}

	features := in.Features
	var bandwidthLimit *int64
	if e.tiers != nil && in.Tier != "" {
		if features == nil {
			features = e.tiers.Features(in.Tier)
		}
		bandwidthLimit = e.tiers.BandwidthLimitBytes(in.Tier)
	}
	if features == nil {
		features = []string{}
	}
	metadata := in.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	lic := &model.License{
		LicenseID:           uuid.NewString(),
		LicenseKey:          key,
		OrgID:               in.OrgID,
		OrgName:             in.OrgName,
		Tier:                in.Tier,
		Features:            features,
		Metadata:            metadata,
		Status:              model.StatusActive,
		IssuedAt:            time.Now().UTC(),
		ExpiresAt:           in.ExpiresAt,
		BandwidthLimitBytes: bandwidthLimit,
	}

	if err := e.repo.InsertLicense(ctx, lic); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidRequest
		}
		return nil, err
	}
	e.logTransition("create", lic.LicenseID, "", "admin", "")
	e.publish(eventstream.EventLicenseCreated, lic)
	return lic, nil
}

// CreateBatch implements spec §4.I's batch-create: creates N licenses,
// reporting however many committed before a mid-batch failure.
func (e *Engine) CreateBatch(ctx context.Context, in CreateInput, count int) ([]model.License, error) {
	if count < 1 || count > 1000 {
		return nil, ErrInvalidRequest
	}
	created := make([]model.License, 0, count)
	for i := 0; i < count; i++ {
		lic, err := e.Create(ctx, in)
		if err != nil {
			return created, err
		}
		created = append(created, *lic)
	}
	return created, nil
}

// Revoke implements spec §4.G admin revoke.
func (e *Engine) Revoke(ctx context.Context, id, reason string) (*model.License, error) {
	lic, err := e.repo.Revoke(ctx, id, reason, time.Now().UTC())
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("revoke", id, lic.HardwareID, "admin", reason)
	e.publish(eventstream.EventLicenseRevoked, lic)
	return lic, nil
}

// Reinstate implements spec §4.G admin reinstate.
func (e *Engine) Reinstate(ctx context.Context, id string) (*model.License, error) {
	existing, err := e.repo.GetLicenseByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if existing.IsBlacklisted {
		return nil, ErrLicenseBlacklisted
	}
	lic, err := e.repo.Reinstate(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("reinstate", id, lic.HardwareID, "admin", "")
	e.publish(eventstream.EventLicenseReinstated, lic)
	return lic, nil
}

// Suspend implements spec §4.G admin suspend.
func (e *Engine) Suspend(ctx context.Context, id string, graceHours *int, message *string) (*model.License, error) {
	lic, err := e.repo.Suspend(ctx, id, graceHours, message, time.Now().UTC())
	if err != nil {
		return nil, translate(err)
	}
	reason := ""
	if message != nil {
		reason = *message
	}
	e.logTransition("suspend", id, lic.HardwareID, "admin", reason)
	e.publish(eventstream.EventLicenseSuspended, lic)
	return lic, nil
}

// Extend implements spec §4.G admin extend.
func (e *Engine) Extend(ctx context.Context, id string, newExpiresAt time.Time) (*model.License, error) {
	lic, err := e.repo.Extend(ctx, id, newExpiresAt)
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("extend", id, lic.HardwareID, "admin", "")
	return lic, nil
}

// Blacklist implements spec §4.G admin blacklist: irreversible.
func (e *Engine) Blacklist(ctx context.Context, id, reason string) (*model.License, error) {
	lic, err := e.repo.Blacklist(ctx, id, reason, time.Now().UTC())
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("blacklist", id, "", "admin", reason)
	e.publish(eventstream.EventLicenseBlacklisted, lic)
	return lic, nil
}

// AdminRelease implements spec §4.G admin release.
func (e *Engine) AdminRelease(ctx context.Context, id, reason string) (*model.License, error) {
	existing, err := e.repo.GetLicenseByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !existing.IsBound() {
		return nil, ErrNotBound
	}
	lic, err := e.repo.ReleaseLicense(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	hw := existing.HardwareID
	_ = e.repo.RecordBindingHistory(ctx, &model.BindingHistory{
		ID: uuid.NewString(), LicenseID: id, Action: model.ActionAdminRelease,
		HardwareID: &hw, Reason: &reason, PerformedBy: model.PerformedByAdmin, Timestamp: time.Now().UTC(),
	})
	e.logTransition("admin_release", id, hw, "admin", reason)
	e.publish(eventstream.EventLicenseReleased, lic)
	return lic, nil
}

// UpdateUsage implements spec §4.G admin updateUsage.
func (e *Engine) UpdateUsage(ctx context.Context, id string, bandwidthUsedBytes int64) (*model.License, error) {
	lic, err := e.repo.UpdateUsage(ctx, id, bandwidthUsedBytes)
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("update_usage", id, lic.HardwareID, "admin", "")
	e.log.Info("bandwidth usage updated",
		"license_id", id,
		"bandwidth_used", humanize.Bytes(uint64(bandwidthUsedBytes)),
		"quota_exceeded", lic.QuotaExceeded,
	)
	return lic, nil
}

// Update applies a PATCH (spec §6: PATCH /licenses/{id} edits
// features/expiry/metadata/tier).
func (e *Engine) Update(ctx context.Context, id string, update repository.LicenseUpdate) (*model.License, error) {
	if err := e.repo.UpdateLicense(ctx, id, update); err != nil {
		return nil, translate(err)
	}
	lic, err := e.repo.GetLicenseByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	e.logTransition("update", id, lic.HardwareID, "admin", "")
	return lic, nil
}

// Get and List are read-only admin operations.
func (e *Engine) Get(ctx context.Context, id string) (*model.License, error) {
	lic, err := e.repo.GetLicenseByID(ctx, id)
	return lic, translate(err)
}

func (e *Engine) List(ctx context.Context, orgID string, page, perPage int) ([]model.License, int, error) {
	return e.repo.ListLicensesByOrg(ctx, orgID, page, perPage)
}

// ---- Background jobs (spec §4.K) ---------------------------------------------

// ExpireLicenses moves every active-but-expired license to expired.
func (e *Engine) ExpireLicenses(ctx context.Context, now time.Time) (int, error) {
	candidates, err := e.repo.GetExpiredLicenses(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, lic := range candidates {
		ok, err := e.repo.ExpireLicense(ctx, lic.LicenseID, now)
		if err != nil {
			e.log.Warn("expireLicenses: row failed", "license_id", lic.LicenseID, "err", err)
			continue
		}
		if ok {
			count++
			e.logTransition("expire", lic.LicenseID, lic.HardwareID, "system", "")
			lic.Status = model.StatusExpired
			e.publish(eventstream.EventLicenseExpired, &lic)
		}
	}
	return count, nil
}

// ExpireGracePeriods revokes every suspended license whose grace period has
// lapsed.
func (e *Engine) ExpireGracePeriods(ctx context.Context, now time.Time) (int, error) {
	candidates, err := e.repo.GetExpiredGracePeriodLicenses(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, lic := range candidates {
		ok, err := e.repo.ExpireGracePeriod(ctx, lic.LicenseID, now)
		if err != nil {
			e.log.Warn("expireGracePeriods: row failed", "license_id", lic.LicenseID, "err", err)
			continue
		}
		if ok {
			count++
			e.logTransition("expire_grace_period", lic.LicenseID, lic.HardwareID, "system", "")
			lic.Status = model.StatusRevoked
			lic.RevokedAt = &now
			e.publish(eventstream.EventLicenseRevoked, &lic)
		}
	}
	return count, nil
}

// CleanStale clears the binding of every license whose last_seen_at is
// older than threshold.
func (e *Engine) CleanStale(ctx context.Context, threshold time.Time) (int, error) {
	candidates, err := e.repo.GetStaleDeviceLicenses(ctx, threshold)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, lic := range candidates {
		hw := lic.HardwareID
		ok, err := e.repo.CleanStaleDevice(ctx, lic.LicenseID, threshold)
		if err != nil {
			e.log.Warn("cleanStale: row failed", "license_id", lic.LicenseID, "err", err)
			continue
		}
		if ok {
			count++
			_ = e.repo.RecordBindingHistory(ctx, &model.BindingHistory{
				ID: uuid.NewString(), LicenseID: lic.LicenseID, Action: model.ActionSystemRelease,
				HardwareID: &hw, PerformedBy: model.PerformedBySystem, Timestamp: time.Now().UTC(),
			})
			e.logTransition("system_release", lic.LicenseID, hw, "system", "")
		}
	}
	return count, nil
}
