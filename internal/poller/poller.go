// Package poller implements the Modbus polling engine: the register
// catalog walk, decoding, retry/timeout handling, periodic scheduling and
// clock-discipline subsystem of spec.md §4.1.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/infertux/solar-exporter/internal/catalog"
	"github.com/infertux/solar-exporter/internal/runstate"
	"github.com/infertux/solar-exporter/internal/snapshot"
)

// Config is the validated, already-parsed configuration the CLI layer
// hands the Poller. Parsing device_or_uri and its flags is the
// out-of-scope external collaborator of spec.md §1/§6; Config is its
// contract.
type Config struct {
	DeviceOrURI string
	Family      catalog.Family
	TZOffset    time.Duration
}

// Poller owns one Modbus session per configured device and periodically
// refreshes that device's Snapshot. One Poller per device; never shared
// across goroutines (spec.md §5 "Modbus session: owned exclusively by the
// Poller").
type Poller struct {
	cfg   Config
	store *snapshot.Store
	state *runstate.State
	log   logrus.FieldLogger

	now func() time.Time // seam for tests
}

// New constructs a Poller. The Modbus session is not opened until Run is
// called (state machine: CREATED -> CONNECTED).
func New(cfg Config, store *snapshot.Store, state *runstate.State, log logrus.FieldLogger) *Poller {
	return &Poller{cfg: cfg, store: store, state: state, log: log, now: time.Now}
}

// Run dials the device, then loops cycles until ctx is cancelled or
// runstate.Stop() has been called, at which point it closes the session
// and returns. A session/bind/slave-id failure during dial is fatal: it
// raises runstate.Stop() and Run returns a non-nil error (spec.md §4.1.2).
// Worker-scoped teardown: the close happens in this same goroutine, never
// via a registered global/atexit cleanup (REDESIGN FLAGS item b).
func (p *Poller) Run(ctx context.Context) error {
	sess, err := dial(p.cfg.DeviceOrURI, p.cfg.Family)
	if err != nil {
		p.state.Stop()
		return fmt.Errorf("poller: fatal connect error: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.log.WithError(cerr).Warn("poller: error closing session")
		}
	}()

	p.log.WithFields(logrus.Fields{"family": p.cfg.Family, "device": p.cfg.DeviceOrURI}).Info("poller: connected")

	for p.state.Running() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.cycle(sess.client); err != nil {
			p.log.WithError(err).Warn("poller: cycle failed")
		}

		if !p.sleepUntilNextCycle(ctx) {
			break
		}
	}

	return nil
}

// cycle runs spec.md §4.1 steps 1-6 once. It returns an error only when
// the entire cycle produced zero successful register reads ("cycle
// failure"); per-register failures are never propagated beyond the
// updated counters and the omission of that reading.
func (p *Poller) cycle(client modbusClient) error {
	now := p.now()
	var readings []snapshot.Reading
	succeeded, failed := 0, 0

	if now.Sub(p.store.LastClockSyncAt()) >= catalog.ClockCadence {
		if _, err := SyncClock(client, p.cfg.Family, p.cfg.TZOffset, now); err != nil {
			p.log.WithError(err).Warn("poller: clock discipline failed")
		}
		p.store.SetLastClockSyncAt(now)
	}

	if now.Sub(p.store.LastSettingsReadAt()) >= catalog.SettingsCadence {
		s, f := p.readBank(client.ReadHoldingRegisters, p.cfg.Family.HoldingRegisters(), &readings)
		succeeded += s
		failed += f
		p.store.SetLastSettingsReadAt(now)
	}

	s, f := p.readBank(client.ReadInputRegisters, p.cfg.Family.InputRegisters(), &readings)
	succeeded += s
	failed += f

	readings = append(readings,
		snapshot.Reading{Name: catalog.SucceededCounterName, Value: float64(succeeded)},
		snapshot.Reading{Name: catalog.FailedCounterName, Value: float64(failed)},
	)

	p.store.Replace(readings, succeeded, failed)

	if succeeded == 0 {
		return fmt.Errorf("poller: cycle produced zero successful reads")
	}
	return nil
}

// readBank iterates one register bank, appending successful reads to
// *readings and returning the succeeded/failed counts for this bank.
func (p *Poller) readBank(read bankReader, specs []catalog.RegisterSpec, readings *[]snapshot.Reading) (succeeded, failed int) {
	for _, spec := range specs {
		value, err := readRegister(read, spec)
		if err != nil {
			failed++
			p.log.WithFields(logrus.Fields{"register": spec.HumanName, "error": err}).Debug("poller: register read failed")
			continue
		}
		succeeded++
		*readings = append(*readings, snapshot.Reading{Name: spec.MetricName, Value: value})
	}
	return succeeded, failed
}

// sleepUntilNextCycle sleeps until the next RefreshPeriod boundary,
// checking runstate and ctx cancellation at least once per second so
// shutdown latency stays bounded at roughly 1s plus one Modbus timeout
// (spec.md §5).
func (p *Poller) sleepUntilNextCycle(ctx context.Context) bool {
	period := catalog.RefreshPeriod
	wake := time.NewTimer(period - time.Duration(p.now().UnixNano()%int64(period)))
	defer wake.Stop()
	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-wake.C:
			return true
		case <-tick.C:
			if !p.state.Running() {
				return false
			}
		}
	}
}
