// Package config loads Talos server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved server configuration.
type Config struct {
	Port         string
	DatabaseType string // "sqlite" | "postgres"
	DatabaseURL  string

	Auth      AuthConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	License   LicenseKeyConfig
	Tiers     map[string]TierConfig

	BootstrapToken string
}

// AuthConfig configures bearer-token issuance/validation for admin endpoints.
type AuthConfig struct {
	Enabled             bool
	JWTSecret           string
	JWTIssuer           string
	JWTAudience         string
	TokenExpirationSecs int64
}

// AccessTokenTTL is a convenience accessor; cmd/server passes its value to
// the auth package's bearer validator.
func (c AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.TokenExpirationSecs) * time.Second
}

// RateLimitConfig configures the per-IP fixed-window limiters guarding client endpoints.
type RateLimitConfig struct {
	ValidateRPM  int
	HeartbeatRPM int
	BindRPM      int
	BurstSize    int
}

// JobsConfig configures the background scheduler (component K).
type JobsConfig struct {
	GracePeriodCron           string // documented cadence; see internal/jobs for the interpreter
	LicenseExpirationCron     string
	StaleDeviceCron           string
	StaleDeviceCleanupEnabled bool
	StaleDeviceDays           int
}

// LicenseKeyConfig controls generated license-key shape (spec §4.G, §6).
type LicenseKeyConfig struct {
	Prefix        string
	Segments      int
	SegmentLength int
}

// TierConfig is a named bundle of features and an optional bandwidth cap.
type TierConfig struct {
	Features    []string
	BandwidthGB int64
}

// Load reads configuration from the environment, applying defaults in the
// same getEnv-fallback style the teacher uses.
func Load() *Config {
	return &Config{
		Port:         getEnv("TALOS_PORT", "8080"),
		DatabaseType: getEnv("TALOS_DATABASE_TYPE", "sqlite"),
		DatabaseURL:  getEnv("TALOS_DATABASE_URL", "./data/talos.db"),

		Auth: AuthConfig{
			Enabled:             getEnvBool("TALOS_AUTH_ENABLED", true),
			JWTSecret:           getEnv("TALOS_JWT_SECRET", ""),
			JWTIssuer:           getEnv("TALOS_JWT_ISSUER", "talos"),
			JWTAudience:         getEnv("TALOS_JWT_AUDIENCE", "talos-api"),
			TokenExpirationSecs: getEnvInt64("TALOS_TOKEN_EXPIRATION_SECS", 3600),
		},

		RateLimit: RateLimitConfig{
			ValidateRPM:  getEnvInt("TALOS_RATE_LIMIT_VALIDATE_RPM", 120),
			HeartbeatRPM: getEnvInt("TALOS_RATE_LIMIT_HEARTBEAT_RPM", 60),
			BindRPM:      getEnvInt("TALOS_RATE_LIMIT_BIND_RPM", 20),
			BurstSize:    getEnvInt("TALOS_RATE_LIMIT_BURST_SIZE", 10),
		},

		Jobs: JobsConfig{
			GracePeriodCron:           getEnv("TALOS_JOBS_GRACE_PERIOD_CRON", "hourly@:00"),
			LicenseExpirationCron:     getEnv("TALOS_JOBS_LICENSE_EXPIRATION_CRON", "hourly@:15"),
			StaleDeviceCron:           getEnv("TALOS_JOBS_STALE_DEVICE_CRON", "daily@03:00"),
			StaleDeviceCleanupEnabled: getEnvBool("TALOS_JOBS_STALE_DEVICE_CLEANUP_ENABLED", false),
			StaleDeviceDays:           getEnvInt("TALOS_JOBS_STALE_DEVICE_DAYS", 90),
		},

		License: LicenseKeyConfig{
			Prefix:        getEnv("TALOS_LICENSE_KEY_PREFIX", "LIC"),
			Segments:      getEnvInt("TALOS_LICENSE_KEY_SEGMENTS", 4),
			SegmentLength: getEnvInt("TALOS_LICENSE_KEY_SEGMENT_LENGTH", 4),
		},

		Tiers: defaultTiers(),

		BootstrapToken: getEnv("TALOS_BOOTSTRAP_TOKEN", ""),
	}
}

func defaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"free": {Features: []string{}, BandwidthGB: 0},
		"pro":  {Features: []string{"export", "api_access"}, BandwidthGB: 500},
	}
}

// BandwidthLimitBytes returns the tier's bandwidth cap in bytes, or nil when
// the tier is unlimited (BandwidthGB == 0) or unknown.
func (c *Config) BandwidthLimitBytes(tier string) *int64 {
	t, ok := c.Tiers[tier]
	if !ok || t.BandwidthGB == 0 {
		return nil
	}
	limit := t.BandwidthGB * 1024 * 1024 * 1024
	return &limit
}

// TierFeatures returns the configured feature set for a tier, or nil if the
// tier is not configured.
func (c *Config) TierFeatures(tier string) []string {
	t, ok := c.Tiers[tier]
	if !ok {
		return nil
	}
	return t.Features
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
