package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmriding/talos/internal/db"
	"github.com/dmriding/talos/internal/model"
)

// SQLRepository implements Repository over database/sql, working against
// either sqlite or postgres by rebinding placeholders per dialect. Style
// (two-query count-plus-page listing, PATCH pointer semantics) is grounded
// on clk-66-spectrus/internal/roles/service.go. Every write is a single
// statement; no explicit transactions are used.
type SQLRepository struct {
	conn    *sql.DB
	dialect db.Dialect
}

// New builds a SQLRepository over an already-opened, already-migrated
// connection.
func New(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{conn: conn, dialect: dialect}
}

func (r *SQLRepository) q(query string) string {
	return db.Rebind(query, r.dialect)
}

// ---- License CRUD ---------------------------------------------------------

func (r *SQLRepository) InsertLicense(ctx context.Context, l *model.License) error {
	features, err := json.Marshal(l.Features)
	if err != nil {
		return fmt.Errorf("repository: marshal features: %w", err)
	}
	if l.Metadata == "" {
		l.Metadata = "{}"
	}

	_, err = r.conn.ExecContext(ctx, r.q(`
		INSERT INTO licenses (
			id, license_key, org_id, org_name, tier, features, metadata,
			status, is_blacklisted, issued_at, expires_at,
			bandwidth_used_bytes, bandwidth_limit_bytes, quota_exceeded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		l.LicenseID, l.LicenseKey, l.OrgID, l.OrgName, l.Tier, string(features), l.Metadata,
		string(l.Status), boolToInt(l.IsBlacklisted), l.IssuedAt, l.ExpiresAt,
		l.BandwidthUsedBytes, l.BandwidthLimitBytes, boolToInt(l.QuotaExceeded),
	)
	if err != nil {
		return translateWriteErr(err)
	}
	return nil
}

const licenseColumns = `id, license_key, org_id, org_name, tier, features, metadata,
	status, is_blacklisted, issued_at, expires_at, revoked_at, suspended_at,
	blacklisted_at, revoke_reason, suspension_message, blacklist_reason,
	grace_period_ends_at, hardware_id, device_name, device_info, bound_at,
	last_seen_at, bandwidth_used_bytes, bandwidth_limit_bytes, quota_exceeded`

func scanLicense(scan func(dest ...any) error) (*model.License, error) {
	var l model.License
	var featuresJSON string
	var status string
	var isBlacklisted, quotaExceeded int
	var hardwareID sql.NullString

	var expiresAt, revokedAt, suspendedAt, blacklistedAt, gracePeriodEndsAt, boundAt, lastSeenAt sql.NullTime
	var revokeReason, suspensionMessage, blacklistReason, deviceName, deviceInfo sql.NullString
	var bandwidthLimitBytes sql.NullInt64

	err := scan(
		&l.LicenseID, &l.LicenseKey, &l.OrgID, &l.OrgName, &l.Tier, &featuresJSON, &l.Metadata,
		&status, &isBlacklisted, &l.IssuedAt, &expiresAt, &revokedAt, &suspendedAt,
		&blacklistedAt, &revokeReason, &suspensionMessage, &blacklistReason,
		&gracePeriodEndsAt, &hardwareID, &deviceName, &deviceInfo, &boundAt,
		&lastSeenAt, &l.BandwidthUsedBytes, &bandwidthLimitBytes, &quotaExceeded,
	)
	if err != nil {
		return nil, err
	}

	l.Status = model.Status(status)
	l.IsBlacklisted = isBlacklisted != 0
	l.QuotaExceeded = quotaExceeded != 0
	if hardwareID.Valid {
		l.HardwareID = hardwareID.String
	}
	if featuresJSON != "" {
		_ = json.Unmarshal([]byte(featuresJSON), &l.Features)
	}

	l.ExpiresAt = nullTimeToPtr(expiresAt)
	l.RevokedAt = nullTimeToPtr(revokedAt)
	l.SuspendedAt = nullTimeToPtr(suspendedAt)
	l.BlacklistedAt = nullTimeToPtr(blacklistedAt)
	l.GracePeriodEndsAt = nullTimeToPtr(gracePeriodEndsAt)
	l.BoundAt = nullTimeToPtr(boundAt)
	l.LastSeenAt = nullTimeToPtr(lastSeenAt)

	l.RevokeReason = nullStringToPtr(revokeReason)
	l.SuspensionMessage = nullStringToPtr(suspensionMessage)
	l.BlacklistReason = nullStringToPtr(blacklistReason)
	l.DeviceName = nullStringToPtr(deviceName)
	l.DeviceInfo = nullStringToPtr(deviceInfo)

	if bandwidthLimitBytes.Valid {
		v := bandwidthLimitBytes.Int64
		l.BandwidthLimitBytes = &v
	}

	return &l, nil
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nullStringToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func (r *SQLRepository) getLicenseByQuery(ctx context.Context, query string, args ...any) (*model.License, error) {
	row := r.conn.QueryRowContext(ctx, r.q(query), args...)
	l, err := scanLicense(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *SQLRepository) GetLicenseByID(ctx context.Context, id string) (*model.License, error) {
	return r.getLicenseByQuery(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)
}

func (r *SQLRepository) GetLicenseByKey(ctx context.Context, key string) (*model.License, error) {
	return r.getLicenseByQuery(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key = ?`, key)
}

func (r *SQLRepository) GetLicenseByHardware(ctx context.Context, hardwareID string) (*model.License, error) {
	return r.getLicenseByQuery(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE hardware_id = ?`, hardwareID)
}

func (r *SQLRepository) LicenseKeyExists(ctx context.Context, key string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx, r.q(`SELECT COUNT(1) FROM licenses WHERE license_key = ?`), key).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateLicense applies PATCH semantics: nil pointer fields are left
// unchanged. Built as one dynamic UPDATE statement, same in spirit as the
// teacher's UpdateRoleInput handling in internal/roles/service.go.
func (r *SQLRepository) UpdateLicense(ctx context.Context, id string, u LicenseUpdate) error {
	sets := []string{}
	args := []any{}

	if u.Features != nil {
		b, err := json.Marshal(*u.Features)
		if err != nil {
			return fmt.Errorf("repository: marshal features: %w", err)
		}
		sets = append(sets, "features = ?")
		args = append(args, string(b))
	}
	if u.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, *u.Metadata)
	}
	if u.Tier != nil {
		sets = append(sets, "tier = ?")
		args = append(args, *u.Tier)
	}
	if u.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, *u.ExpiresAt)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE licenses SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := r.conn.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return translateWriteErr(err)
	}
	return requireAffected(res)
}

// ---- Binding ---------------------------------------------------------------

// Bind atomically binds hardwareID to the license under key. The
// conditional UPDATE re-checks every precondition in one statement (spec
// §5: "re-check preconditions atomically within a single update statement
// rather than as read-modify-write").
func (r *SQLRepository) Bind(ctx context.Context, key, hardwareID string, deviceName, deviceInfo *string, now time.Time) (*model.License, bool, error) {
	existing, err := r.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}

	rebind := existing.HardwareID == hardwareID

	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			hardware_id = ?, device_name = ?, device_info = ?,
			bound_at = CASE WHEN bound_at IS NULL THEN ? ELSE bound_at END,
			last_seen_at = ?
		WHERE license_key = ?
			AND is_blacklisted = 0
			AND status IN ('active', 'suspended')
			AND (expires_at IS NULL OR expires_at > ?)
			AND (hardware_id IS NULL OR hardware_id = ?)
	`), hardwareID, deviceName, deviceInfo, now, now, key, now, hardwareID)
	if err != nil {
		return nil, false, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, false, err
	}

	updated, err := r.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return updated, rebind, nil
}

func (r *SQLRepository) Release(ctx context.Context, key, hardwareID string) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			hardware_id = NULL, device_name = NULL, device_info = NULL,
			bound_at = NULL, last_seen_at = NULL
		WHERE license_key = ? AND hardware_id = ?
	`), key, hardwareID)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByKey(ctx, key)
}

func (r *SQLRepository) ReleaseLicense(ctx context.Context, id string) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			hardware_id = NULL, device_name = NULL, device_info = NULL,
			bound_at = NULL, last_seen_at = NULL
		WHERE id = ?
	`), id)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

func (r *SQLRepository) UpdateLastSeen(ctx context.Context, key, hardwareID string, now time.Time) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET last_seen_at = ?
		WHERE license_key = ? AND hardware_id = ?
	`), now, key, hardwareID)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByKey(ctx, key)
}

// ---- Admin lifecycle --------------------------------------------------------

func (r *SQLRepository) Revoke(ctx context.Context, id, reason string, now time.Time) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET status = 'revoked', revoked_at = ?, revoke_reason = ?
		WHERE id = ? AND status IN ('active', 'suspended')
	`), now, nullableString(reason), id)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

func (r *SQLRepository) Reinstate(ctx context.Context, id string, now time.Time) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			status = 'active', revoked_at = NULL, suspended_at = NULL,
			grace_period_ends_at = NULL
		WHERE id = ? AND status IN ('revoked', 'suspended') AND is_blacklisted = 0
	`), id)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

func (r *SQLRepository) Suspend(ctx context.Context, id string, graceHours *int, message *string, now time.Time) (*model.License, error) {
	var graceEnds *time.Time
	if graceHours != nil {
		t := now.Add(time.Duration(*graceHours) * time.Hour)
		graceEnds = &t
	}

	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			status = 'suspended', suspended_at = ?, grace_period_ends_at = ?,
			suspension_message = ?
		WHERE id = ? AND status = 'active'
	`), now, graceEnds, message, id)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

func (r *SQLRepository) Extend(ctx context.Context, id string, newExpiresAt time.Time) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			expires_at = ?,
			status = CASE WHEN status = 'expired' THEN 'active' ELSE status END
		WHERE id = ? AND (expires_at IS NULL OR expires_at < ?)
	`), newExpiresAt, id, newExpiresAt)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

func (r *SQLRepository) Blacklist(ctx context.Context, id, reason string, now time.Time) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			is_blacklisted = 1, status = 'revoked', revoked_at = ?,
			blacklisted_at = ?, blacklist_reason = ?,
			hardware_id = NULL, device_name = NULL, device_info = NULL,
			bound_at = NULL, last_seen_at = NULL
		WHERE id = ?
	`), now, now, nullableString(reason), id)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

func (r *SQLRepository) UpdateUsage(ctx context.Context, id string, bandwidthUsedBytes int64) (*model.License, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			bandwidth_used_bytes = ?,
			quota_exceeded = CASE
				WHEN bandwidth_limit_bytes IS NOT NULL AND ? >= bandwidth_limit_bytes THEN 1
				ELSE 0
			END
		WHERE id = ?
	`), bandwidthUsedBytes, bandwidthUsedBytes, id)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetLicenseByID(ctx, id)
}

// ---- Listing & jobs ----------------------------------------------------------

func (r *SQLRepository) ListLicensesByOrg(ctx context.Context, orgID string, page, perPage int) ([]model.License, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	var total int
	if err := r.conn.QueryRowContext(ctx, r.q(`SELECT COUNT(1) FROM licenses WHERE org_id = ?`), orgID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn.QueryContext(ctx, r.q(`
		SELECT `+licenseColumns+` FROM licenses
		WHERE org_id = ?
		ORDER BY issued_at ASC
		LIMIT ? OFFSET ?
	`), orgID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []model.License
	for rows.Next() {
		l, err := scanLicense(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if list == nil {
		list = []model.License{}
	}
	return list, total, nil
}

func (r *SQLRepository) queryLicenses(ctx context.Context, query string, args ...any) ([]model.License, error) {
	rows, err := r.conn.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.License
	for rows.Next() {
		l, err := scanLicense(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.License{}
	}
	return list, nil
}

func (r *SQLRepository) GetExpiredLicenses(ctx context.Context, now time.Time) ([]model.License, error) {
	return r.queryLicenses(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE status = 'active' AND expires_at < ?`, now)
}

func (r *SQLRepository) GetExpiredGracePeriodLicenses(ctx context.Context, now time.Time) ([]model.License, error) {
	return r.queryLicenses(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE status = 'suspended' AND grace_period_ends_at < ?`, now)
}

func (r *SQLRepository) GetStaleDeviceLicenses(ctx context.Context, threshold time.Time) ([]model.License, error) {
	return r.queryLicenses(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE hardware_id IS NOT NULL AND last_seen_at < ?`, threshold)
}

// ExpireLicense, ExpireGracePeriod, and CleanStaleDevice are the per-row
// conditional updates backing job K; each reports whether it actually
// changed the row, so the caller (the engine's job sweeps) can count affected rows
// and treat a second run as a no-op (spec §8).
func (r *SQLRepository) ExpireLicense(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET status = 'expired'
		WHERE id = ? AND status = 'active' AND expires_at < ?
	`), id, now)
	if err != nil {
		return false, translateWriteErr(err)
	}
	return affected(res), nil
}

func (r *SQLRepository) ExpireGracePeriod(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET status = 'revoked', revoked_at = ?
		WHERE id = ? AND status = 'suspended' AND grace_period_ends_at < ?
	`), now, id, now)
	if err != nil {
		return false, translateWriteErr(err)
	}
	return affected(res), nil
}

func (r *SQLRepository) CleanStaleDevice(ctx context.Context, id string, lastSeenBefore time.Time) (bool, error) {
	res, err := r.conn.ExecContext(ctx, r.q(`
		UPDATE licenses SET
			hardware_id = NULL, device_name = NULL, device_info = NULL,
			bound_at = NULL, last_seen_at = NULL
		WHERE id = ? AND hardware_id IS NOT NULL AND last_seen_at < ?
	`), id, lastSeenBefore)
	if err != nil {
		return false, translateWriteErr(err)
	}
	return affected(res), nil
}

// ---- Binding history ---------------------------------------------------------

func (r *SQLRepository) RecordBindingHistory(ctx context.Context, h *model.BindingHistory) error {
	_, err := r.conn.ExecContext(ctx, r.q(`
		INSERT INTO binding_history (
			id, license_id, action, hardware_id, device_name, device_info,
			performed_by, reason, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), h.ID, h.LicenseID, string(h.Action), h.HardwareID, h.DeviceName, h.DeviceInfo,
		string(h.PerformedBy), h.Reason, h.Timestamp)
	return err
}

// ---- API tokens ---------------------------------------------------------------

const tokenColumns = `id, name, token_hash, scopes, created_at, expires_at, last_used_at, revoked_at, created_by`

func scanToken(scan func(dest ...any) error) (*model.ApiToken, error) {
	var t model.ApiToken
	var scopes string
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	var createdBy sql.NullString

	if err := scan(&t.ID, &t.Name, &t.TokenHash, &scopes, &t.CreatedAt, &expiresAt, &lastUsedAt, &revokedAt, &createdBy); err != nil {
		return nil, err
	}
	if scopes != "" {
		t.Scopes = splitScopes(scopes)
	}
	t.ExpiresAt = nullTimeToPtr(expiresAt)
	t.LastUsedAt = nullTimeToPtr(lastUsedAt)
	t.RevokedAt = nullTimeToPtr(revokedAt)
	t.CreatedBy = nullStringToPtr(createdBy)
	return &t, nil
}

func (r *SQLRepository) CreateApiToken(ctx context.Context, t *model.ApiToken) error {
	_, err := r.conn.ExecContext(ctx, r.q(`
		INSERT INTO api_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.Name, t.TokenHash, joinScopes(t.Scopes), t.CreatedAt, t.ExpiresAt, t.LastUsedAt, t.RevokedAt, t.CreatedBy)
	return translateWriteErr(err)
}

func (r *SQLRepository) GetApiTokenByHash(ctx context.Context, hash string) (*model.ApiToken, error) {
	row := r.conn.QueryRowContext(ctx, r.q(`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = ?`), hash)
	t, err := scanToken(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *SQLRepository) ListApiTokens(ctx context.Context) ([]model.ApiToken, error) {
	rows, err := r.conn.QueryContext(ctx, r.q(`SELECT `+tokenColumns+` FROM api_tokens ORDER BY created_at ASC`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ApiToken
	for rows.Next() {
		t, err := scanToken(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.ApiToken{}
	}
	return list, nil
}

func (r *SQLRepository) RevokeApiToken(ctx context.Context, id string, now time.Time) error {
	res, err := r.conn.ExecContext(ctx, r.q(`UPDATE api_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`), now, id)
	if err != nil {
		return translateWriteErr(err)
	}
	return requireAffected(res)
}

// UpdateTokenLastUsed is best-effort: failures are not propagated since
// this is an ambient bookkeeping write, not part of the auth decision
// itself (grounded on the teacher's own best-effort settings writes in
// internal/license/license.go's saveToDB).
func (r *SQLRepository) UpdateTokenLastUsed(ctx context.Context, hash string, now time.Time) {
	_, _ = r.conn.ExecContext(ctx, r.q(`UPDATE api_tokens SET last_used_at = ? WHERE token_hash = ?`), now, hash)
}

func (r *SQLRepository) HasAnyApiTokens(ctx context.Context) (bool, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, r.q(`SELECT COUNT(1) FROM api_tokens`)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- helpers ---------------------------------------------------------------

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func requireAffected(res sql.Result) error {
	if !affected(res) {
		return ErrNotFound
	}
	return nil
}

// translateWriteErr recognizes the unique-constraint violation message
// shape each dialect's driver surfaces (same substring check the teacher's
// internal/auth/service.go uses via isUniqueConstraint).
func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value violates unique constraint") {
		return ErrConflict
	}
	return err
}

func splitScopes(raw string) []string {
	return strings.Fields(raw)
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
