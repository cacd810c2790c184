package poller

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/infertux/solar-exporter/internal/catalog"
	"github.com/infertux/solar-exporter/internal/runstate"
	"github.com/infertux/solar-exporter/internal/snapshot"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func seedAllRegisters(fc *fakeClient, family catalog.Family) {
	for _, spec := range family.InputRegisters() {
		fc.input[spec.Address] = make([]uint16, wordCount(spec.Width))
	}
	for _, spec := range family.HoldingRegisters() {
		fc.holding[spec.Address] = make([]uint16, wordCount(spec.Width))
	}
	fc.holding[family.ClockAddress()] = make([]uint16, family.ClockWords())
}

func newTestPoller(store *snapshot.Store) *Poller {
	cfg := Config{DeviceOrURI: "192.0.2.1:502", Family: catalog.Growatt}
	p := New(cfg, store, runstate.New(), testLogger())
	p.now = func() time.Time { return time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC) }
	return p
}

// TestCycleSucceededPlusFailedEqualsAttempted is spec.md §8's core cycle
// invariant.
func TestCycleSucceededPlusFailedEqualsAttempted(t *testing.T) {
	fc := newFakeClient()
	seedAllRegisters(fc, catalog.Growatt)
	// force one input-register failure
	delete(fc.input, catalog.Growatt.InputRegisters()[0].Address)

	store := snapshot.New()
	p := newTestPoller(store)
	// force the settings (holding) pass to run this cycle too
	store.SetLastSettingsReadAt(time.Time{})

	if err := p.cycle(fc); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}

	_, succeeded, failed := store.Snapshot()
	attempted := len(catalog.Growatt.InputRegisters()) + len(catalog.Growatt.HoldingRegisters())
	if succeeded+failed != attempted {
		t.Fatalf("succeeded(%d)+failed(%d) != attempted(%d)", succeeded, failed, attempted)
	}
	if failed != 1 {
		t.Fatalf("expected exactly 1 failure, got %d", failed)
	}
}

func TestCycleEmptyProducesError(t *testing.T) {
	fc := newFakeClient() // nothing seeded: every read fails
	store := snapshot.New()
	p := newTestPoller(store)

	if err := p.cycle(fc); err == nil {
		t.Fatal("expected a cycle-failure error when zero registers succeed")
	}

	_, succeeded, _ := store.Snapshot()
	if succeeded != 0 {
		t.Fatalf("succeeded = %d, want 0", succeeded)
	}
}

func TestCycleAppendsSyntheticCountersExactlyOnce(t *testing.T) {
	fc := newFakeClient()
	seedAllRegisters(fc, catalog.Growatt)

	store := snapshot.New()
	p := newTestPoller(store)

	if err := p.cycle(fc); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}

	readings, _, _ := store.Snapshot()
	counts := map[string]int{}
	for _, r := range readings {
		counts[r.Name]++
	}
	if counts[catalog.SucceededCounterName] != 1 {
		t.Fatalf("%s appeared %d times, want 1", catalog.SucceededCounterName, counts[catalog.SucceededCounterName])
	}
	if counts[catalog.FailedCounterName] != 1 {
		t.Fatalf("%s appeared %d times, want 1", catalog.FailedCounterName, counts[catalog.FailedCounterName])
	}
}

func TestCycleNoDuplicateReadingNames(t *testing.T) {
	fc := newFakeClient()
	seedAllRegisters(fc, catalog.Growatt)

	store := snapshot.New()
	p := newTestPoller(store)
	store.SetLastSettingsReadAt(time.Time{})

	if err := p.cycle(fc); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}

	readings, _, _ := store.Snapshot()
	seen := map[string]bool{}
	for _, r := range readings {
		if seen[r.Name] {
			t.Fatalf("duplicate reading name %q", r.Name)
		}
		seen[r.Name] = true
	}
}

func TestCycleSkipsSettingsBeforeCadence(t *testing.T) {
	fc := newFakeClient()
	seedAllRegisters(fc, catalog.Growatt)

	store := snapshot.New()
	store.SetLastSettingsReadAt(time.Date(2026, 7, 29, 11, 59, 0, 0, time.UTC)) // 1 minute ago
	p := newTestPoller(store)

	if err := p.cycle(fc); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}

	readings, _, _ := store.Snapshot()
	for _, r := range readings {
		for _, spec := range catalog.Growatt.HoldingRegisters() {
			if r.Name == spec.MetricName {
				t.Fatalf("holding register %q should have been skipped before SETTINGS_CADENCE elapsed", r.Name)
			}
		}
	}
}

