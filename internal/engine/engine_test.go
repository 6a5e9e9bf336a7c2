package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmriding/talos/internal/licensekey"
	"github.com/dmriding/talos/internal/model"
	"github.com/dmriding/talos/internal/repository"
)

// fakeRepo is an in-memory Repository implementation, grounded on spec
// §9's "in-memory test database uses the same repository port" design
// note: the port's contract is the only interface implementations must
// honor, so tests exercise the engine against this instead of SQL.
type fakeRepo struct {
	byID      map[string]*model.License
	byKey     map[string]string // key -> id
	history   []model.BindingHistory
	tokens    map[string]*model.ApiToken
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:   map[string]*model.License{},
		byKey:  map[string]string{},
		tokens: map[string]*model.ApiToken{},
	}
}

func clone(l *model.License) *model.License {
	c := *l
	return &c
}

func (f *fakeRepo) InsertLicense(_ context.Context, l *model.License) error {
	if _, ok := f.byKey[l.LicenseKey]; ok {
		return repository.ErrConflict
	}
	f.byID[l.LicenseID] = clone(l)
	f.byKey[l.LicenseKey] = l.LicenseID
	return nil
}

func (f *fakeRepo) UpdateLicense(_ context.Context, id string, u repository.LicenseUpdate) error {
	l, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Features != nil {
		l.Features = *u.Features
	}
	if u.Metadata != nil {
		l.Metadata = *u.Metadata
	}
	if u.Tier != nil {
		l.Tier = *u.Tier
	}
	if u.ExpiresAt != nil {
		l.ExpiresAt = *u.ExpiresAt
	}
	return nil
}

func (f *fakeRepo) GetLicenseByID(_ context.Context, id string) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(l), nil
}

func (f *fakeRepo) GetLicenseByKey(_ context.Context, key string) (*model.License, error) {
	id, ok := f.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(f.byID[id]), nil
}

func (f *fakeRepo) GetLicenseByHardware(_ context.Context, hardwareID string) (*model.License, error) {
	for _, l := range f.byID {
		if l.HardwareID == hardwareID {
			return clone(l), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) LicenseKeyExists(_ context.Context, key string) (bool, error) {
	_, ok := f.byKey[key]
	return ok, nil
}

func (f *fakeRepo) Bind(_ context.Context, key, hardwareID string, deviceName, deviceInfo *string, now time.Time) (*model.License, bool, error) {
	id, ok := f.byKey[key]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	l := f.byID[id]
	if l.IsBlacklisted || (l.Status != model.StatusActive && l.Status != model.StatusSuspended) {
		return nil, false, repository.ErrNotFound
	}
	if l.IsBound() && l.HardwareID != hardwareID {
		return nil, false, repository.ErrNotFound
	}
	rebind := l.HardwareID == hardwareID
	if l.BoundAt == nil {
		t := now
		l.BoundAt = &t
	}
	l.HardwareID = hardwareID
	l.DeviceName = deviceName
	l.DeviceInfo = deviceInfo
	l.LastSeenAt = &now
	return clone(l), rebind, nil
}

func (f *fakeRepo) Release(_ context.Context, key, hardwareID string) (*model.License, error) {
	id, ok := f.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	l := f.byID[id]
	if l.HardwareID != hardwareID {
		return nil, repository.ErrNotFound
	}
	l.HardwareID = ""
	l.DeviceName, l.DeviceInfo, l.BoundAt, l.LastSeenAt = nil, nil, nil, nil
	return clone(l), nil
}

func (f *fakeRepo) ReleaseLicense(_ context.Context, id string) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	l.HardwareID = ""
	l.DeviceName, l.DeviceInfo, l.BoundAt, l.LastSeenAt = nil, nil, nil, nil
	return clone(l), nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, key, hardwareID string, now time.Time) (*model.License, error) {
	id, ok := f.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	l := f.byID[id]
	if l.HardwareID != hardwareID {
		return nil, repository.ErrNotFound
	}
	l.LastSeenAt = &now
	return clone(l), nil
}

func (f *fakeRepo) Revoke(_ context.Context, id, reason string, now time.Time) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok || (l.Status != model.StatusActive && l.Status != model.StatusSuspended) {
		return nil, repository.ErrNotFound
	}
	l.Status = model.StatusRevoked
	l.RevokedAt = &now
	if reason != "" {
		l.RevokeReason = &reason
	}
	return clone(l), nil
}

func (f *fakeRepo) Reinstate(_ context.Context, id string, now time.Time) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok || l.IsBlacklisted || (l.Status != model.StatusRevoked && l.Status != model.StatusSuspended) {
		return nil, repository.ErrNotFound
	}
	l.Status = model.StatusActive
	l.RevokedAt, l.SuspendedAt, l.GracePeriodEndsAt = nil, nil, nil
	return clone(l), nil
}

func (f *fakeRepo) Suspend(_ context.Context, id string, graceHours *int, message *string, now time.Time) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok || l.Status != model.StatusActive {
		return nil, repository.ErrNotFound
	}
	l.Status = model.StatusSuspended
	l.SuspendedAt = &now
	l.SuspensionMessage = message
	if graceHours != nil {
		t := now.Add(time.Duration(*graceHours) * time.Hour)
		l.GracePeriodEndsAt = &t
	}
	return clone(l), nil
}

func (f *fakeRepo) Extend(_ context.Context, id string, newExpiresAt time.Time) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if l.ExpiresAt != nil && !newExpiresAt.After(*l.ExpiresAt) {
		return nil, repository.ErrNotFound
	}
	l.ExpiresAt = &newExpiresAt
	if l.Status == model.StatusExpired {
		l.Status = model.StatusActive
	}
	return clone(l), nil
}

func (f *fakeRepo) Blacklist(_ context.Context, id, reason string, now time.Time) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	l.IsBlacklisted = true
	l.Status = model.StatusRevoked
	l.RevokedAt = &now
	l.BlacklistedAt = &now
	if reason != "" {
		l.BlacklistReason = &reason
	}
	l.HardwareID = ""
	l.DeviceName, l.DeviceInfo, l.BoundAt, l.LastSeenAt = nil, nil, nil, nil
	return clone(l), nil
}

func (f *fakeRepo) UpdateUsage(_ context.Context, id string, bandwidthUsedBytes int64) (*model.License, error) {
	l, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	l.BandwidthUsedBytes = bandwidthUsedBytes
	l.QuotaExceeded = l.BandwidthLimitBytes != nil && bandwidthUsedBytes >= *l.BandwidthLimitBytes
	return clone(l), nil
}

func (f *fakeRepo) ListLicensesByOrg(_ context.Context, orgID string, page, perPage int) ([]model.License, int, error) {
	var out []model.License
	for _, l := range f.byID {
		if l.OrgID == orgID {
			out = append(out, *clone(l))
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) GetExpiredLicenses(_ context.Context, now time.Time) ([]model.License, error) {
	var out []model.License
	for _, l := range f.byID {
		if l.Status == model.StatusActive && l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
			out = append(out, *clone(l))
		}
	}
	return out, nil
}

func (f *fakeRepo) GetExpiredGracePeriodLicenses(_ context.Context, now time.Time) ([]model.License, error) {
	var out []model.License
	for _, l := range f.byID {
		if l.Status == model.StatusSuspended && l.GracePeriodEndsAt != nil && l.GracePeriodEndsAt.Before(now) {
			out = append(out, *clone(l))
		}
	}
	return out, nil
}

func (f *fakeRepo) GetStaleDeviceLicenses(_ context.Context, threshold time.Time) ([]model.License, error) {
	var out []model.License
	for _, l := range f.byID {
		if l.HardwareID != "" && l.LastSeenAt != nil && l.LastSeenAt.Before(threshold) {
			out = append(out, *clone(l))
		}
	}
	return out, nil
}

func (f *fakeRepo) ExpireLicense(_ context.Context, id string, now time.Time) (bool, error) {
	l, ok := f.byID[id]
	if !ok || l.Status != model.StatusActive || l.ExpiresAt == nil || !l.ExpiresAt.Before(now) {
		return false, nil
	}
	l.Status = model.StatusExpired
	return true, nil
}

func (f *fakeRepo) ExpireGracePeriod(_ context.Context, id string, now time.Time) (bool, error) {
	l, ok := f.byID[id]
	if !ok || l.Status != model.StatusSuspended || l.GracePeriodEndsAt == nil || !l.GracePeriodEndsAt.Before(now) {
		return false, nil
	}
	l.Status = model.StatusRevoked
	l.RevokedAt = &now
	return true, nil
}

func (f *fakeRepo) CleanStaleDevice(_ context.Context, id string, lastSeenBefore time.Time) (bool, error) {
	l, ok := f.byID[id]
	if !ok || l.HardwareID == "" || l.LastSeenAt == nil || !l.LastSeenAt.Before(lastSeenBefore) {
		return false, nil
	}
	l.HardwareID = ""
	l.DeviceName, l.DeviceInfo, l.BoundAt, l.LastSeenAt = nil, nil, nil, nil
	return true, nil
}

func (f *fakeRepo) RecordBindingHistory(_ context.Context, h *model.BindingHistory) error {
	f.history = append(f.history, *h)
	return nil
}

func (f *fakeRepo) CreateApiToken(_ context.Context, t *model.ApiToken) error {
	f.tokens[t.TokenHash] = t
	return nil
}
func (f *fakeRepo) GetApiTokenByHash(_ context.Context, hash string) (*model.ApiToken, error) {
	t, ok := f.tokens[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}
func (f *fakeRepo) ListApiTokens(_ context.Context) ([]model.ApiToken, error) { return nil, nil }
func (f *fakeRepo) RevokeApiToken(_ context.Context, id string, now time.Time) error { return nil }
func (f *fakeRepo) UpdateTokenLastUsed(_ context.Context, hash string, now time.Time) {}
func (f *fakeRepo) HasAnyApiTokens(_ context.Context) (bool, error) { return len(f.tokens) > 0, nil }

func newTestEngine() (*Engine, *fakeRepo) {
	repo := newFakeRepo()
	return New(repo, nil, licensekey.DefaultConfig(), nil, nil), repo
}

func seedLicense(t *testing.T, repo *fakeRepo, mutate func(*model.License)) *model.License {
	t.Helper()
	l := &model.License{
		LicenseID:  uuid.NewString(),
		LicenseKey: "LIC-TEST-0001",
		OrgID:      "org-1",
		Features:   []string{"basic", "export"},
		Status:     model.StatusActive,
		IssuedAt:   time.Now().UTC(),
	}
	if mutate != nil {
		mutate(l)
	}
	if err := repo.InsertLicense(context.Background(), l); err != nil {
		t.Fatalf("seed license: %v", err)
	}
	return l
}

func TestHappyPathBindValidateFeature(t *testing.T) {
	e, repo := newTestEngine()
	future := time.Now().UTC().Add(24 * time.Hour)
	seedLicense(t, repo, func(l *model.License) { l.ExpiresAt = &future })

	ctx := context.Background()
	if _, err := e.Bind(ctx, "LIC-TEST-0001", "HW-A", nil, nil); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	vr, err := e.Validate(ctx, "LIC-TEST-0001", "HW-A")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !vr.License.HasFeature("export") {
		t.Fatal("expected export feature")
	}

	fr, err := e.ValidateFeature(ctx, "LIC-TEST-0001", "HW-A", "export")
	if err != nil {
		t.Fatalf("ValidateFeature: %v", err)
	}
	if !fr.Allowed {
		t.Fatal("expected export to be allowed")
	}

	fr2, err := e.ValidateFeature(ctx, "LIC-TEST-0001", "HW-A", "admin")
	if err != nil {
		t.Fatalf("ValidateFeature: %v", err)
	}
	if fr2.Allowed {
		t.Fatal("did not expect admin feature to be allowed")
	}
}

func TestHardwareMismatch(t *testing.T) {
	e, repo := newTestEngine()
	seedLicense(t, repo, nil)
	ctx := context.Background()

	if _, err := e.Bind(ctx, "LIC-TEST-0001", "HW-A", nil, nil); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := e.Validate(ctx, "LIC-TEST-0001", "HW-B"); err != ErrHardwareMismatch {
		t.Fatalf("expected ErrHardwareMismatch, got %v", err)
	}
}

func TestBlacklistIsAbsorbing(t *testing.T) {
	e, repo := newTestEngine()
	lic := seedLicense(t, repo, nil)
	ctx := context.Background()

	if _, err := e.Blacklist(ctx, lic.LicenseID, "fraud"); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if _, err := e.Reinstate(ctx, lic.LicenseID); err != ErrLicenseBlacklisted {
		t.Fatalf("expected reinstate to fail with ErrLicenseBlacklisted, got %v", err)
	}

	got, _ := e.Get(ctx, lic.LicenseID)
	if got.Status != model.StatusRevoked || !got.IsBlacklisted {
		t.Fatalf("expected status=revoked, is_blacklisted=true, got %+v", got)
	}
}

func TestExpireLicensesIsIdempotent(t *testing.T) {
	e, repo := newTestEngine()
	past := time.Now().UTC().Add(-time.Hour)
	lic := seedLicense(t, repo, func(l *model.License) { l.ExpiresAt = &past })

	now := time.Now().UTC()
	n, err := e.ExpireLicenses(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireLicenses: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	got, _ := e.Get(context.Background(), lic.LicenseID)
	if got.Status != model.StatusExpired {
		t.Fatalf("expected status expired, got %s", got.Status)
	}

	n2, err := e.ExpireLicenses(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireLicenses (2nd run): %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected second run to be a no-op, got %d", n2)
	}
}

func TestExpireGracePeriodsTransition(t *testing.T) {
	e, repo := newTestEngine()
	graceEnd := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lic := seedLicense(t, repo, func(l *model.License) {
		l.Status = model.StatusSuspended
		l.GracePeriodEndsAt = &graceEnd
	})

	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	n, err := e.ExpireGracePeriods(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireGracePeriods: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}

	got, _ := e.Get(context.Background(), lic.LicenseID)
	if got.Status != model.StatusRevoked || got.RevokedAt == nil {
		t.Fatalf("expected status=revoked with revoked_at set, got %+v", got)
	}

	n2, _ := e.ExpireGracePeriods(context.Background(), now)
	if n2 != 0 {
		t.Fatalf("expected second run to be a no-op, got %d", n2)
	}
}

func TestBatchCreateRejectsOutOfRangeCounts(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	if _, err := e.CreateBatch(ctx, CreateInput{OrgID: "org-1"}, 0); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for count=0, got %v", err)
	}
	if _, err := e.CreateBatch(ctx, CreateInput{OrgID: "org-1"}, 1001); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for count=1001, got %v", err)
	}
}

func TestAlreadyBoundRejectsSecondDevice(t *testing.T) {
	e, repo := newTestEngine()
	seedLicense(t, repo, nil)
	ctx := context.Background()

	if _, err := e.Bind(ctx, "LIC-TEST-0001", "HW-A", nil, nil); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := e.Bind(ctx, "LIC-TEST-0001", "HW-B", nil, nil); err != ErrAlreadyBound {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
}

// TestHeartbeatSucceedsOnSuspendedLicense guards spec §4.G's heartbeat row
// ("exists; not blacklisted; binding matches" — no status precondition):
// a still-bound device must be able to learn its current
// grace_period_ends_at via heartbeat even while suspended.
func TestHeartbeatSucceedsOnSuspendedLicense(t *testing.T) {
	e, repo := newTestEngine()
	lic := seedLicense(t, repo, nil)
	ctx := context.Background()

	if _, err := e.Bind(ctx, "LIC-TEST-0001", "HW-A", nil, nil); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	graceHours := 24
	if _, err := e.Suspend(ctx, lic.LicenseID, &graceHours, nil); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	hr, err := e.Heartbeat(ctx, "LIC-TEST-0001", "HW-A")
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if hr.GracePeriodEndsAt == nil {
		t.Fatal("expected grace_period_ends_at to be reported on a suspended license's heartbeat")
	}
}

func TestHeartbeatFailsOnHardwareMismatch(t *testing.T) {
	e, repo := newTestEngine()
	seedLicense(t, repo, nil)
	ctx := context.Background()

	if _, err := e.Bind(ctx, "LIC-TEST-0001", "HW-A", nil, nil); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := e.Heartbeat(ctx, "LIC-TEST-0001", "HW-B"); err != ErrHardwareMismatch {
		t.Fatalf("expected ErrHardwareMismatch, got %v", err)
	}
}
