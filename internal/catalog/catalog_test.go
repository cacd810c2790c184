package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoDuplicateMetricNamesWithinBank(t *testing.T) {
	for _, f := range []Family{Growatt, Epever} {
		for _, bank := range [][]RegisterSpec{f.InputRegisters(), f.HoldingRegisters()} {
			seen := map[string]bool{}
			for _, r := range bank {
				assert.Falsef(t, seen[r.MetricName], "%s: duplicate metric name %q", f, r.MetricName)
				seen[r.MetricName] = true
			}
		}
	}
}

func TestBoostVoltageBugFixed(t *testing.T) {
	for _, f := range []Family{Growatt, Epever} {
		var boost, reconnect *RegisterSpec
		for i, r := range f.HoldingRegisters() {
			switch r.MetricName {
			case "settings_boost_voltage":
				boost = &f.HoldingRegisters()[i]
			case "settings_boost_reconnect_voltage":
				reconnect = &f.HoldingRegisters()[i]
			}
		}
		require.NotNilf(t, boost, "%s: expected settings_boost_voltage", f)
		require.NotNilf(t, reconnect, "%s: expected settings_boost_reconnect_voltage", f)
		assert.NotEqualf(t, boost.Address, reconnect.Address, "%s: boost and reconnect voltage must not share an address", f)
	}
}

func TestFamilyConstants(t *testing.T) {
	assert.Equal(t, 9600, Growatt.BaudRate())
	assert.Equal(t, 115200, Epever.BaudRate())
	assert.Equal(t, 6, Growatt.ClockWords())
	assert.Equal(t, 3, Epever.ClockWords())
}
