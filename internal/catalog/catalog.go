// Package catalog holds the static register tables for the supported
// device families. Catalogs are compile-time constants; nothing here
// touches a wire.
package catalog

import "time"

// Width is the size of a single register read, in 16-bit words.
type Width int

const (
	// Single is a one-word (16-bit) register.
	Single Width = iota
	// Double is a two-word (32-bit) register, read in one transaction.
	Double
)

// RegisterSpec describes one named value in a register bank.
type RegisterSpec struct {
	Address     uint16
	HumanName   string
	MetricName  string
	Width       Width
	Scale       float64
	DeviceClass string // home-assistant device_class; "" means omit
	Unit        string // unit_of_measurement; "" means omit
	StateClass  string // state_class; "" means omit
}

// Family is a supported device vendor/product line.
type Family int

const (
	Growatt Family = iota
	Epever
)

func (f Family) String() string {
	switch f {
	case Growatt:
		return "growatt"
	case Epever:
		return "epever"
	default:
		return "unknown"
	}
}

// Prefix is the metric-name and MQTT unique-id prefix for this family.
func (f Family) Prefix() string { return f.String() }

// BaudRate is the fixed serial line speed for RTU transport.
func (f Family) BaudRate() int {
	switch f {
	case Growatt:
		return 9600
	case Epever:
		return 115200
	default:
		return 9600
	}
}

// ResponseTimeout is the hard per-register Modbus response timeout.
func (f Family) ResponseTimeout() time.Duration {
	switch f {
	case Growatt:
		return 200 * time.Millisecond
	case Epever:
		return 1 * time.Second
	default:
		return 1 * time.Second
	}
}

// InputRegisters returns the read-only live-telemetry catalog.
func (f Family) InputRegisters() []RegisterSpec {
	switch f {
	case Growatt:
		return growattInput
	case Epever:
		return epeverInput
	default:
		return nil
	}
}

// HoldingRegisters returns the read/write settings catalog (excluding the
// dedicated clock block, which the poller reads through its own codec).
func (f Family) HoldingRegisters() []RegisterSpec {
	switch f {
	case Growatt:
		return growattHolding
	case Epever:
		return epeverHolding
	default:
		return nil
	}
}

// ClockAddress is the first holding-register address of the RTC block.
func (f Family) ClockAddress() uint16 {
	switch f {
	case Growatt:
		return growattClockAddress
	case Epever:
		return epeverClockAddress
	default:
		return 0
	}
}

// ClockWords is the number of 16-bit words making up the RTC block.
func (f Family) ClockWords() int {
	switch f {
	case Growatt:
		return 6
	case Epever:
		return 3
	default:
		return 0
	}
}

const (
	// SucceededCounterName is the synthetic reading name for the per-cycle
	// success count.
	SucceededCounterName = "read_metric_succeeded_total"
	// FailedCounterName is the synthetic reading name for the per-cycle
	// failure count.
	FailedCounterName = "read_metric_failed_total"
)

const (
	// RefreshPeriod is the interval between poll cycles.
	RefreshPeriod = 10 * time.Second
	// SettingsCadence is the minimum interval between holding-register reads.
	SettingsCadence = 1 * time.Hour
	// ClockCadence is the minimum interval between clock-discipline passes.
	ClockCadence = 24 * time.Hour
	// ClockOffsetThreshold is the skew at or above which the clock is rewritten.
	ClockOffsetThreshold = 30 * time.Second
	// ClockWriteBias compensates for the latency of the write-back itself.
	ClockWriteBias = 2 * time.Second
)
