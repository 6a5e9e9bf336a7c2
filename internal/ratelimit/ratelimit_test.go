package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l, err := New(3, time.Minute, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	for i := 0; i < 3; i++ {
		allowed, _, _ := l.Allow("1.2.3.4", now)
		if !allowed {
			t.Fatalf("request %d unexpectedly denied", i)
		}
	}
	allowed, retryAfter, _ := l.Allow("1.2.3.4", now)
	if allowed {
		t.Fatal("expected 4th request to be denied")
	}
	if retryAfter <= 0 {
		t.Fatal("expected a positive retry-after")
	}
}

func TestWindowResetsAfterPeriod(t *testing.T) {
	l, _ := New(1, time.Minute, 100)
	now := time.Now()
	if allowed, _, _ := l.Allow("5.6.7.8", now); !allowed {
		t.Fatal("expected first request to be allowed")
	}
	if allowed, _, _ := l.Allow("5.6.7.8", now); allowed {
		t.Fatal("expected second request in same window to be denied")
	}
	later := now.Add(2 * time.Minute)
	if allowed, _, _ := l.Allow("5.6.7.8", later); !allowed {
		t.Fatal("expected request after window reset to be allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := New(1, time.Minute, 100)
	now := time.Now()
	if allowed, _, _ := l.Allow("a", now); !allowed {
		t.Fatal("expected key a to be allowed")
	}
	if allowed, _, _ := l.Allow("b", now); !allowed {
		t.Fatal("expected key b to be allowed independently of a")
	}
}
