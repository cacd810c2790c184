package poller

import (
	"fmt"
	"time"

	"github.com/infertux/solar-exporter/internal/catalog"
)

// decodeClock turns a family's RTC register words into a UTC time, before
// the fixed timezone offset is applied (spec.md §4.1.3 step 2).
func decodeClock(family catalog.Family, words []uint16) (time.Time, error) {
	switch family {
	case catalog.Epever:
		if len(words) < 3 {
			return time.Time{}, fmt.Errorf("clock: short response (%d words, want 3)", len(words))
		}
		minute := int(words[0] >> 8)
		second := int(words[0] & 0xFF)
		day := int(words[1] >> 8)
		hour := int(words[1] & 0xFF)
		year := 2000 + int(words[2]>>8)
		month := int(words[2] & 0xFF)
		return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
	case catalog.Growatt:
		if len(words) < 6 {
			return time.Time{}, fmt.Errorf("clock: short response (%d words, want 6)", len(words))
		}
		year := 1900 + int(words[0])
		month, day, hour, minute, second := int(words[1]), int(words[2]), int(words[3]), int(words[4]), int(words[5])
		return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("clock: unsupported family %s", family)
	}
}

// encodeClock is decodeClock's inverse, used to build the write-back
// payload.
func encodeClock(family catalog.Family, t time.Time) []uint16 {
	t = t.UTC()
	switch family {
	case catalog.Epever:
		w0 := uint16(t.Minute())<<8 | uint16(t.Second())
		w1 := uint16(t.Day())<<8 | uint16(t.Hour())
		w2 := uint16(t.Year()-2000)<<8 | uint16(t.Month())
		return []uint16{w0, w1, w2}
	case catalog.Growatt:
		return []uint16{
			uint16(t.Year() - 1900),
			uint16(t.Month()),
			uint16(t.Day()),
			uint16(t.Hour()),
			uint16(t.Minute()),
			uint16(t.Second()),
		}
	default:
		return nil
	}
}

// ClockResult reports what a clock-discipline pass observed and did.
type ClockResult struct {
	DeviceTime time.Time
	Difference time.Duration
	Written    bool
}

// SyncClock implements spec.md §4.1.3: read the RTC block, decode it to
// UTC, add the device's fixed timezone offset, compare against host time,
// and write the host time back (with a forward bias compensating for
// write latency) if the skew is at or above the threshold.
func SyncClock(client modbusClient, family catalog.Family, tzOffset time.Duration, now time.Time) (ClockResult, error) {
	addr := family.ClockAddress()
	n := uint16(family.ClockWords())

	raw, err := client.ReadHoldingRegisters(addr, n)
	if err != nil {
		return ClockResult{}, fmt.Errorf("read clock: %w", err)
	}

	words := wordsFromBytes(raw)
	deviceTimeUTC, err := decodeClock(family, words)
	if err != nil {
		return ClockResult{}, err
	}
	deviceTime := deviceTimeUTC.Add(tzOffset)

	diff := deviceTime.Sub(now)
	result := ClockResult{DeviceTime: deviceTime, Difference: diff}

	if diff < 0 {
		diff = -diff
	}
	if diff < catalog.ClockOffsetThreshold {
		return result, nil
	}

	writeTime := now.Add(catalog.ClockWriteBias).Add(-tzOffset)
	words = encodeClock(family, writeTime)
	if _, err := client.WriteMultipleRegisters(addr, n, bytesFromWords(words)); err != nil {
		return result, fmt.Errorf("write clock: %w", err)
	}
	result.Written = true
	return result, nil
}
