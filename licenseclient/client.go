package licenseclient

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmriding/talos/internal/crypto"
	"github.com/dmriding/talos/licenseclient/hardware"
	"github.com/dmriding/talos/licenseclient/storage"
)

// Sentinel errors returned by License operations, matching the
// original_source client's LicenseError variants where they apply locally
// (hardware mismatch, local inactivity) rather than over the wire.
var (
	ErrHardwareMismatch   = errors.New("licenseclient: hardware mismatch")
	ErrNotBound           = errors.New("licenseclient: license is not bound locally")
	ErrNotCached          = errors.New("licenseclient: no cached validation on disk")
	ErrGracePeriodExpired = errors.New("licenseclient: grace period expired")
)

// NetworkError wraps a transport-level failure (connection refused, DNS,
// timeout) from a Client call, distinct from a ServerError — a server that
// answered with a 4xx/5xx rejected the request on its merits, it didn't
// fail to reach it. validateWithFallback only falls back to the offline
// cache on a NetworkError (spec §7).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("licenseclient: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// License is the state-bearing client handle for a single license binding
// on this device (spec §4.E). The immutable identity (LicenseKey) and the
// mutable runtime state (binding, last known-good cache) are kept
// separate: nothing here treats an in-memory copy as authoritative without
// re-checking storage or the server first.
type License struct {
	LicenseKey    string
	HardwareID    string // the binding's hardware_id, set once Bind succeeds
	ServerBaseURL string
	Active        bool

	client *Client
}

// Client is the HTTP-facing SDK entry point: one per server the
// application talks to.
type Client struct {
	baseURL    string
	httpClient *http.Client
	hardware   hardware.Provider
	storage    *storage.Chain
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom
// timeouts or transport-level TLS pinning).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHardwareProvider overrides hardware.Default, primarily for tests.
func WithHardwareProvider(p hardware.Provider) Option {
	return func(c *Client) { c.hardware = p }
}

// WithStorage overrides the default storage.Chain, primarily for tests.
func WithStorage(s *storage.Chain) Option {
	return func(c *Client) { c.storage = s }
}

// NewClient builds a Client talking to baseURL (e.g. "https://license.example.com/api/v1/client").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		hardware:   hardware.Default,
		storage:    storage.NewChain(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// hardwareKey derives the 32-byte AEAD key used to encrypt this device's
// stored blobs, from its hardware fingerprint — so a copied blob cannot be
// read on another machine (spec §4.C: "different hardware = different
// key").
func hardwareKey(hardwareID string) []byte {
	sum := sha256.Sum256([]byte("talos-client-storage-key:" + hardwareID))
	return sum[:]
}

type wireBindRequest struct {
	LicenseKey string  `json:"license_key"`
	HardwareID string  `json:"hardware_id"`
	DeviceName *string `json:"device_name,omitempty"`
	DeviceInfo *string `json:"device_info,omitempty"`
}

type wireBindResponse struct {
	LicenseID         string   `json:"license_id"`
	Features          []string `json:"features"`
	Tier              string   `json:"tier,omitempty"`
	ExpiresAt         *string  `json:"expires_at,omitempty"`
	GracePeriodEndsAt *string  `json:"grace_period_ends_at,omitempty"`
}

type wireKeyHardwareRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
}

type wireValidateResponse struct {
	Valid             bool     `json:"valid"`
	Features          []string `json:"features"`
	Tier              string   `json:"tier,omitempty"`
	ExpiresAt         *string  `json:"expires_at,omitempty"`
	GracePeriodEndsAt *string  `json:"grace_period_ends_at,omitempty"`
	Warning           string   `json:"warning,omitempty"`
}

type wireHeartbeatResponse struct {
	ServerTime        string  `json:"server_time"`
	GracePeriodEndsAt *string `json:"grace_period_ends_at,omitempty"`
}

type wireValidateFeatureRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
	Feature    string `json:"feature"`
}

type wireValidateFeatureResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

type wireReleaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type wireErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ServerError is returned when the server rejects a request with a
// well-formed error envelope (spec §7's error code taxonomy).
type ServerError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("licenseclient: server rejected request (%s): %s", e.Code, e.Message)
}

func (c *Client) post(path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("licenseclient: marshal request: %w", err)
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope wireErrorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &ServerError{Code: envelope.Error.Code, Message: envelope.Error.Message, StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("licenseclient: decode response from %s: %w", path, err)
	}
	return nil
}

// Bind enrolls licenseKey against this device's hardware fingerprint,
// persisting the resulting binding and an initial cached validation
// locally (spec §4.D component, §6 POST /bind).
func (c *Client) Bind(licenseKey string, deviceName, deviceInfo *string) (*License, error) {
	hwID, err := c.hardware()
	if err != nil {
		return nil, fmt.Errorf("licenseclient: derive hardware fingerprint: %w", err)
	}

	var resp wireBindResponse
	if err := c.post("/bind", wireBindRequest{
		LicenseKey: licenseKey, HardwareID: hwID, DeviceName: deviceName, DeviceInfo: deviceInfo,
	}, &resp); err != nil {
		return nil, err
	}

	lic := &License{LicenseKey: licenseKey, HardwareID: hwID, ServerBaseURL: c.baseURL, Active: true, client: c}
	if err := lic.persistIdentity(); err != nil {
		return lic, fmt.Errorf("licenseclient: bind succeeded but local persistence failed: %w", err)
	}
	cache := newCachedValidation(licenseKey, hwID, resp.Features, resp.Tier, resp.ExpiresAt, resp.GracePeriodEndsAt)
	if err := lic.persist(cache); err != nil {
		return lic, fmt.Errorf("licenseclient: bind succeeded but local persistence failed: %w", err)
	}
	return lic, nil
}

// LoadFromDisk reconstructs a License handle from whatever this device's
// tiered storage holds, verifying the stored binding's hardware_id still
// equals the current fingerprint (spec §4.D: "fail if current hardware
// fingerprint does not equal the snapshot's stored hardware_id"). The
// binding identity — not the validation cache — is the source of truth for
// which license_key this device belongs to.
func LoadFromDisk(c *Client) (*License, error) {
	hwID, err := c.hardware()
	if err != nil {
		return nil, fmt.Errorf("licenseclient: derive hardware fingerprint: %w", err)
	}

	identity, err := loadBindingIdentity(c, hwID)
	if err != nil {
		return nil, err
	}
	if identity.HardwareIDAtBinding != hwID {
		return nil, ErrHardwareMismatch
	}

	return &License{
		LicenseKey: identity.LicenseKey, HardwareID: hwID, ServerBaseURL: c.baseURL, Active: true, client: c,
	}, nil
}

// persistIdentity encrypts and writes this binding's license_key and
// hardware_id_at_binding as the "license" blob (spec §3/§6), independent of
// the mutable "cache" blob written by persist.
func (l *License) persistIdentity() error {
	plaintext, err := marshalBindingIdentity(bindingIdentity{LicenseKey: l.LicenseKey, HardwareIDAtBinding: l.HardwareID})
	if err != nil {
		return err
	}
	blob, err := crypto.EncryptToBase64(hardwareKey(l.HardwareID), plaintext)
	if err != nil {
		return err
	}
	return l.client.storage.Write(storage.KindLicense, l.HardwareID, blob)
}

// loadBindingIdentity reads and decrypts the "license" blob for hwID.
func loadBindingIdentity(c *Client, hwID string) (bindingIdentity, error) {
	blob, err := c.storage.Read(storage.KindLicense, hwID)
	if errors.Is(err, storage.ErrNotFound) {
		return bindingIdentity{}, ErrNotCached
	}
	if err != nil {
		return bindingIdentity{}, err
	}
	plaintext, err := crypto.DecryptFromBase64(hardwareKey(hwID), blob)
	if err != nil {
		return bindingIdentity{}, fmt.Errorf("licenseclient: decrypt license identity: %w", err)
	}
	return unmarshalBindingIdentity(plaintext)
}

// persist encrypts and writes cache to local storage under this binding's
// hardware ID.
func (l *License) persist(cache CachedValidation) error {
	plaintext, err := marshalCache(cache)
	if err != nil {
		return err
	}
	blob, err := crypto.EncryptToBase64(hardwareKey(l.HardwareID), plaintext)
	if err != nil {
		return err
	}
	return l.client.storage.Write(storage.KindCache, l.HardwareID, blob)
}

// Validate asks the server whether this binding is still valid, refreshing
// the local cache on success. It first re-derives the hardware fingerprint
// and refuses locally with ErrHardwareMismatch if it no longer matches the
// binding — never trusting the in-memory HardwareID alone (spec §9 Design
// Notes: "Reads on a stale instance must never authorize an operation").
func (l *License) Validate() (valid bool, warning string, err error) {
	currentHW, err := l.client.hardware()
	if err != nil {
		return false, "", err
	}
	if currentHW != l.HardwareID {
		return false, "", ErrHardwareMismatch
	}
	if !l.Active {
		return false, "", ErrNotBound
	}

	var resp wireValidateResponse
	if postErr := l.client.post("/validate", wireKeyHardwareRequest{
		LicenseKey: l.LicenseKey, HardwareID: currentHW,
	}, &resp); postErr != nil {
		return false, "", postErr
	}

	cache := newCachedValidation(l.LicenseKey, currentHW, resp.Features, resp.Tier, resp.ExpiresAt, resp.GracePeriodEndsAt)
	_ = l.persist(cache)
	return resp.Valid, resp.Warning, nil
}

// loadLocalCache reads, decrypts, and parses this binding's cached
// validation snapshot, confirming it still belongs to this hardware_id
// (spec §4.D's load() contract).
func (l *License) loadLocalCache() (CachedValidation, error) {
	blob, err := l.client.storage.Read(storage.KindCache, l.HardwareID)
	if errors.Is(err, storage.ErrNotFound) {
		return CachedValidation{}, ErrNotCached
	}
	if err != nil {
		return CachedValidation{}, err
	}
	plaintext, err := crypto.DecryptFromBase64(hardwareKey(l.HardwareID), blob)
	if err != nil {
		return CachedValidation{}, err
	}
	cache, err := unmarshalCache(plaintext)
	if err != nil {
		return CachedValidation{}, err
	}
	if !cache.MatchesHardware(l.HardwareID) {
		return CachedValidation{}, ErrHardwareMismatch
	}
	return cache, nil
}

// ValidateOffline reports whether the cached validation snapshot still
// authorizes operation without contacting the server, for use when
// Validate's network call fails (spec §4.D).
func (l *License) ValidateOffline(now time.Time) (bool, error) {
	cache, err := l.loadLocalCache()
	if err != nil {
		return false, err
	}
	if cache.IsLicenseExpired(now) {
		return false, nil
	}
	return cache.IsValidForOffline(now), nil
}

// ValidateWithFallback behaves like Validate, but on a transport-level
// failure it consults the offline cache instead of propagating the error
// (spec §4.E, §7): it succeeds iff a cached validation is present,
// hardware-matching, and still within its server-issued grace period; once
// that grace period has lapsed it fails locally with ErrGracePeriodExpired
// without contacting the server (spec §8 scenario 3).
func (l *License) ValidateWithFallback() (valid bool, warning string, err error) {
	valid, warning, err = l.Validate()
	var netErr *NetworkError
	if err == nil || !errors.As(err, &netErr) {
		return valid, warning, err
	}
	ok, offlineErr := l.ValidateOffline(time.Now().UTC())
	if offlineErr != nil {
		return false, "", offlineErr
	}
	if !ok {
		return false, "", ErrGracePeriodExpired
	}
	return true, "", nil
}

// ValidateFeatureWithFallback behaves like ValidateFeature, consulting the
// cached feature set on a transport-level failure instead of propagating
// the error (spec §4.E: "offline fallback consults cache's feature set").
func (l *License) ValidateFeatureWithFallback(feature string) (allowed bool, tier string, err error) {
	allowed, tier, err = l.ValidateFeature(feature)
	var netErr *NetworkError
	if err == nil || !errors.As(err, &netErr) {
		return allowed, tier, err
	}

	now := time.Now().UTC()
	cache, cacheErr := l.loadLocalCache()
	if cacheErr != nil {
		return false, "", cacheErr
	}
	if cache.IsLicenseExpired(now) || !cache.IsValidForOffline(now) {
		return false, "", ErrGracePeriodExpired
	}
	return cache.HasFeature(feature), cache.Tier, nil
}

// Heartbeat requires the local hardware fingerprint to still equal this
// binding's hardware_id, else fails locally with ErrHardwareMismatch
// (spec §4.E), then reports the server's clock and current grace period.
func (l *License) Heartbeat() (serverTime time.Time, gracePeriodEndsAt *string, err error) {
	currentHW, err := l.client.hardware()
	if err != nil {
		return time.Time{}, nil, err
	}
	if currentHW != l.HardwareID {
		return time.Time{}, nil, ErrHardwareMismatch
	}

	var resp wireHeartbeatResponse
	if postErr := l.client.post("/heartbeat", wireKeyHardwareRequest{
		LicenseKey: l.LicenseKey, HardwareID: currentHW,
	}, &resp); postErr != nil {
		return time.Time{}, nil, postErr
	}

	parsed, parseErr := time.Parse(time.RFC3339, resp.ServerTime)
	if parseErr != nil {
		return time.Time{}, resp.GracePeriodEndsAt, nil
	}
	return parsed, resp.GracePeriodEndsAt, nil
}

// ValidateFeature reports whether feature is included in this license,
// per the server's current tier/feature set.
func (l *License) ValidateFeature(feature string) (allowed bool, tier string, err error) {
	currentHW, err := l.client.hardware()
	if err != nil {
		return false, "", err
	}
	if currentHW != l.HardwareID {
		return false, "", ErrHardwareMismatch
	}

	var resp wireValidateFeatureResponse
	if postErr := l.client.post("/validate-feature", wireValidateFeatureRequest{
		LicenseKey: l.LicenseKey, HardwareID: currentHW, Feature: feature,
	}, &resp); postErr != nil {
		return false, "", postErr
	}
	return resp.Allowed, resp.Tier, nil
}

// Release unbinds this device from the license on the server and clears
// all local state for it.
func (l *License) Release() error {
	var resp wireReleaseResponse
	if err := l.client.post("/release", wireKeyHardwareRequest{
		LicenseKey: l.LicenseKey, HardwareID: l.HardwareID,
	}, &resp); err != nil {
		return err
	}
	l.Active = false
	return l.ClearLocalCache()
}

// ClearLocalCache removes this binding's state — both the cached validation
// and the license identity blob — from every storage tier. A no-op if
// nothing is stored.
func (l *License) ClearLocalCache() error {
	if err := l.client.storage.Clear(storage.KindCache, l.HardwareID); err != nil {
		return err
	}
	return l.client.storage.Clear(storage.KindLicense, l.HardwareID)
}
