package poller

import (
	"testing"
	"time"

	"github.com/infertux/solar-exporter/internal/catalog"
)

func TestEpeverClockRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 29, 14, 32, 7, 0, time.UTC)
	words := encodeClock(catalog.Epever, now)
	got, err := decodeClock(catalog.Epever, words)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("got %v, want %v", got, now)
	}
}

func TestGrowattClockRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 29, 14, 32, 7, 0, time.UTC)
	words := encodeClock(catalog.Growatt, now)
	got, err := decodeClock(catalog.Growatt, words)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("got %v, want %v", got, now)
	}
}

// TestSyncClockNoWriteWithinThreshold and TestSyncClockWritesAboveThreshold
// are spec.md §8's clock-discipline invariant and boundary scenario 6.
func TestSyncClockNoWriteWithinThreshold(t *testing.T) {
	fc := newFakeClient()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	deviceNow := now.Add(5 * time.Second) // well under the 30s threshold
	fc.holding[catalog.Epever.ClockAddress()] = encodeClock(catalog.Epever, deviceNow)

	result, err := SyncClock(fc, catalog.Epever, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Written {
		t.Fatal("expected no write for a sub-threshold skew")
	}
	if len(fc.writes) != 0 {
		t.Fatalf("expected zero writes, got %d", len(fc.writes))
	}
}

func TestSyncClockWritesAboveThreshold(t *testing.T) {
	fc := newFakeClient()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	deviceNow := now.Add(60 * time.Second) // spec.md §8 boundary scenario 6
	fc.holding[catalog.Epever.ClockAddress()] = encodeClock(catalog.Epever, deviceNow)

	result, err := SyncClock(fc, catalog.Epever, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Written {
		t.Fatal("expected a write for a 60s skew")
	}
	if len(fc.writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(fc.writes))
	}

	written, err := decodeClock(catalog.Epever, wordsFromBytes(fc.writes[0].value))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := now.Add(catalog.ClockWriteBias)
	if !written.Equal(want) {
		t.Fatalf("written time = %v, want %v (host time + write bias)", written, want)
	}
}

func TestSyncClockAppliesTimezoneOffset(t *testing.T) {
	fc := newFakeClient()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	tz := 8 * time.Hour
	// Device's raw UTC clock reads "now" minus the offset, so that
	// deviceTimeUTC + tz == now exactly: no write should occur.
	fc.holding[catalog.Epever.ClockAddress()] = encodeClock(catalog.Epever, now.Add(-tz))

	result, err := SyncClock(fc, catalog.Epever, tz, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Written {
		t.Fatalf("expected no write once the timezone offset is applied, got difference=%v", result.Difference)
	}
}
