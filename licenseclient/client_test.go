package licenseclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmriding/talos/licenseclient/storage"
)

func testClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL,
		WithHardwareProvider(func() (string, error) { return "HW-TEST-1", nil }),
		WithStorage(storage.NewChainAt(t.TempDir())),
	)
}

func TestBindThenValidateHappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bind", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireBindResponse{
			LicenseID: "lic-1", Features: []string{"export"}, Tier: "pro",
		})
	})
	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireValidateResponse{Valid: true, Features: []string{"export"}, Tier: "pro"})
	})

	c := testClient(t, mux)
	lic, err := c.Bind("LIC-ABCD-EFGH-JKMN-PQRS", nil, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if lic.HardwareID != "HW-TEST-1" {
		t.Fatalf("unexpected hardware id %q", lic.HardwareID)
	}

	valid, warning, err := lic.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !valid {
		t.Fatalf("expected valid=true, warning=%q", warning)
	}
}

func TestValidateFailsOnHardwareMismatch(t *testing.T) {
	mux := http.NewServeMux()
	c := testClient(t, mux)

	lic := &License{LicenseKey: "LIC-ABCD-EFGH-JKMN-PQRS", HardwareID: "HW-OTHER", ServerBaseURL: c.baseURL, Active: true, client: c}
	if _, _, err := lic.Validate(); err != ErrHardwareMismatch {
		t.Fatalf("expected ErrHardwareMismatch, got %v", err)
	}
}

func TestServerErrorEnvelopeIsSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bind", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "LICENSE_NOT_FOUND", "message": "no such license"},
		})
	})

	c := testClient(t, mux)
	_, err := c.Bind("LIC-NOPE-0000-0000-0000", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	serverErr, ok := err.(*ServerError)
	if !ok {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if serverErr.Code != "LICENSE_NOT_FOUND" {
		t.Fatalf("unexpected code %q", serverErr.Code)
	}
}

func TestOfflineValidationHonorsGracePeriod(t *testing.T) {
	c := testClient(t, http.NewServeMux())
	lic := &License{LicenseKey: "LIC-ABCD-EFGH-JKMN-PQRS", HardwareID: "HW-TEST-1", ServerBaseURL: c.baseURL, Active: true, client: c}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	cache := newCachedValidation(lic.LicenseKey, lic.HardwareID, []string{"export"}, "pro", nil, &future)
	if err := lic.persist(cache); err != nil {
		t.Fatalf("persist: %v", err)
	}

	ok, err := lic.ValidateOffline(time.Now())
	if err != nil {
		t.Fatalf("ValidateOffline: %v", err)
	}
	if !ok {
		t.Fatal("expected offline validation to succeed within grace period")
	}

	ok, err = lic.ValidateOffline(time.Now().Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("ValidateOffline: %v", err)
	}
	if ok {
		t.Fatal("expected offline validation to fail after grace period elapses")
	}
}

func TestValidateWithFallbackUsesOfflineCacheOnNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	srv.Close() // unreachable: every request now hits a closed port

	c := NewClient(srv.URL,
		WithHardwareProvider(func() (string, error) { return "HW-TEST-1", nil }),
		WithStorage(storage.NewChainAt(t.TempDir())),
	)
	lic := &License{LicenseKey: "LIC-ABCD-EFGH-JKMN-PQRS", HardwareID: "HW-TEST-1", ServerBaseURL: c.baseURL, Active: true, client: c}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	cache := newCachedValidation(lic.LicenseKey, lic.HardwareID, []string{"export"}, "pro", nil, &future)
	if err := lic.persist(cache); err != nil {
		t.Fatalf("persist: %v", err)
	}

	valid, _, err := lic.ValidateWithFallback()
	if err != nil {
		t.Fatalf("ValidateWithFallback: %v", err)
	}
	if !valid {
		t.Fatal("expected fallback to succeed within grace period")
	}

	allowed, _, err := lic.ValidateFeatureWithFallback("export")
	if err != nil {
		t.Fatalf("ValidateFeatureWithFallback: %v", err)
	}
	if !allowed {
		t.Fatal("expected cached feature set to allow export")
	}

	if _, _, err := lic.Validate(); err == nil {
		t.Fatal("expected plain Validate to surface the network error")
	} else if _, ok := err.(*NetworkError); !ok {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
}

func TestLoadFromDiskReconstructsBoundLicense(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bind", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireBindResponse{Features: []string{"export"}, Tier: "pro"})
	})
	c := testClient(t, mux)

	bound, err := c.Bind("LIC-ABCD-EFGH-JKMN-PQRS", nil, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	loaded, err := LoadFromDisk(c)
	if err != nil {
		t.Fatalf("LoadFromDisk: %v", err)
	}
	if loaded.LicenseKey != bound.LicenseKey || loaded.HardwareID != bound.HardwareID {
		t.Fatalf("reconstructed license %+v does not match bound license %+v", loaded, bound)
	}
}

func TestLoadFromDiskFailsWithoutAPriorBind(t *testing.T) {
	c := testClient(t, http.NewServeMux())
	if _, err := LoadFromDisk(c); err != ErrNotCached {
		t.Fatalf("expected ErrNotCached, got %v", err)
	}
}

func TestReleaseClearsBothStorageKinds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bind", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireBindResponse{Features: []string{"export"}, Tier: "pro"})
	})
	mux.HandleFunc("/release", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireReleaseResponse{Success: true})
	})
	c := testClient(t, mux)

	lic, err := c.Bind("LIC-ABCD-EFGH-JKMN-PQRS", nil, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := lic.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := LoadFromDisk(c); err != ErrNotCached {
		t.Fatalf("expected ErrNotCached after release, got %v", err)
	}
}

func TestHeartbeatReportsServerTimeAndGracePeriod(t *testing.T) {
	grace := time.Now().Add(6 * time.Hour).UTC().Format(time.RFC3339)
	mux := http.NewServeMux()
	mux.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireHeartbeatResponse{
			ServerTime:        time.Now().UTC().Format(time.RFC3339),
			GracePeriodEndsAt: &grace,
		})
	})

	c := testClient(t, mux)
	lic := &License{LicenseKey: "LIC-ABCD-EFGH-JKMN-PQRS", HardwareID: "HW-TEST-1", ServerBaseURL: c.baseURL, Active: true, client: c}

	serverTime, gracePeriodEndsAt, err := lic.Heartbeat()
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if serverTime.IsZero() {
		t.Fatal("expected a non-zero server time")
	}
	if gracePeriodEndsAt == nil || *gracePeriodEndsAt != grace {
		t.Fatalf("unexpected grace_period_ends_at: %v", gracePeriodEndsAt)
	}
}

func TestHeartbeatFailsOnLocalHardwareMismatch(t *testing.T) {
	c := testClient(t, http.NewServeMux())
	lic := &License{LicenseKey: "LIC-ABCD-EFGH-JKMN-PQRS", HardwareID: "HW-OTHER", ServerBaseURL: c.baseURL, Active: true, client: c}

	if _, _, err := lic.Heartbeat(); err != ErrHardwareMismatch {
		t.Fatalf("expected ErrHardwareMismatch, got %v", err)
	}
}

func TestValidateWithFallbackFailsAfterGracePeriodElapses(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	srv.Close()

	c := NewClient(srv.URL,
		WithHardwareProvider(func() (string, error) { return "HW-TEST-1", nil }),
		WithStorage(storage.NewChainAt(t.TempDir())),
	)
	lic := &License{LicenseKey: "LIC-ABCD-EFGH-JKMN-PQRS", HardwareID: "HW-TEST-1", ServerBaseURL: c.baseURL, Active: true, client: c}

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	cache := newCachedValidation(lic.LicenseKey, lic.HardwareID, []string{"export"}, "pro", nil, &past)
	if err := lic.persist(cache); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if _, _, err := lic.ValidateWithFallback(); err != ErrGracePeriodExpired {
		t.Fatalf("expected ErrGracePeriodExpired, got %v", err)
	}
}
