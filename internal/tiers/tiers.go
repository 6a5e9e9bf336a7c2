// Package tiers resolves named tiers to their default feature set and
// bandwidth cap, grounded on original_source/src/tiers.rs.
package tiers

// Config is a named bundle of features and an optional bandwidth limit.
type Config struct {
	Features    []string
	BandwidthGB int64
}

// Registry is a loaded set of tier configurations, keyed by tier name.
type Registry struct {
	tiers map[string]Config
}

// NewRegistry builds a Registry from a name->Config map, typically sourced
// from the server's tiers.* configuration (spec §6).
func NewRegistry(tiers map[string]Config) *Registry {
	if tiers == nil {
		tiers = map[string]Config{}
	}
	return &Registry{tiers: tiers}
}

// Exists reports whether name is a configured tier.
func (r *Registry) Exists(name string) bool {
	_, ok := r.tiers[name]
	return ok
}

// Features returns the tier's default feature set, or nil if unconfigured.
func (r *Registry) Features(name string) []string {
	t, ok := r.tiers[name]
	if !ok {
		return nil
	}
	return t.Features
}

// HasFeature reports whether the named tier grants feature.
func (r *Registry) HasFeature(name, feature string) bool {
	for _, f := range r.Features(name) {
		if f == feature {
			return true
		}
	}
	return false
}

// BandwidthLimitBytes returns the tier's bandwidth cap in bytes, or nil if
// the tier is unlimited (BandwidthGB == 0) or unconfigured.
func (r *Registry) BandwidthLimitBytes(name string) *int64 {
	t, ok := r.tiers[name]
	if !ok || t.BandwidthGB == 0 {
		return nil
	}
	limit := t.BandwidthGB * 1024 * 1024 * 1024
	return &limit
}

// Names returns every configured tier name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tiers))
	for name := range r.tiers {
		names = append(names, name)
	}
	return names
}

// All returns the full tier map.
func (r *Registry) All() map[string]Config {
	return r.tiers
}
