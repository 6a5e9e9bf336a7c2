package hardware

import "testing"

func TestDefaultIsStableAcrossCalls(t *testing.T) {
	first, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	second, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if first != second {
		t.Fatalf("expected a stable fingerprint, got %q then %q", first, second)
	}
	if len(first) != 64 { // hex-encoded SHA-256
		t.Fatalf("expected a 64-character hex digest, got %d chars", len(first))
	}
}
