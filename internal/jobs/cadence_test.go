package jobs

import (
	"testing"
	"time"
)

func TestParseHourlyCadence(t *testing.T) {
	c, err := ParseCadence("hourly@:15")
	if err != nil {
		t.Fatalf("ParseCadence: %v", err)
	}
	now := time.Date(2026, 1, 1, 10, 20, 0, 0, time.UTC)
	next := c.Next(now)
	want := time.Date(2026, 1, 1, 11, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestParseHourlyCadenceBeforeMinute(t *testing.T) {
	c, err := ParseCadence("hourly@:15")
	if err != nil {
		t.Fatalf("ParseCadence: %v", err)
	}
	now := time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)
	next := c.Next(now)
	want := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestParseDailyCadence(t *testing.T) {
	c, err := ParseCadence("daily@03:00")
	if err != nil {
		t.Fatalf("ParseCadence: %v", err)
	}
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	next := c.Next(now)
	want := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestParseCadenceRejectsInvalid(t *testing.T) {
	cases := []string{"weekly@:00", "hourly@25", "daily@24:00", "garbage"}
	for _, c := range cases {
		if _, err := ParseCadence(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}
