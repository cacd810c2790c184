package catalog

// growattClockAddress is the first of the 6 RTC holding registers
// (year-1900, month, day, hour, minute, second). Not documented anywhere
// in the retrieved Growatt source; picked and pinned here rather than
// guessed at decode time — see SPEC_FULL.md Open Questions.
const growattClockAddress = 45

// growattInput is grounded on original_source/src/growatt.h (addresses 0,
// 1, 3, 17, 18, 25, 26, 32, 33, 48, 50, 81, 82) and on the discovery
// payloads published by original_source/src/mqtt.h (battery_volts,
// pv1_watts, pv1_volts, energy_pv_today_kwh, energy_pv_total_kwh), plus
// the spec's grid/fault/fan/net-battery-power supplement.
var growattInput = []RegisterSpec{
	{Address: 0, HumanName: "system status", MetricName: "system_status", Width: Single, Scale: 1},
	{Address: 1, HumanName: "PV1 voltage", MetricName: "pv1_volts", Width: Single, Scale: 0.1, DeviceClass: "voltage", Unit: "V"},
	{Address: 3, HumanName: "PV1 power", MetricName: "pv1_watts", Width: Double, Scale: 0.1, DeviceClass: "power", Unit: "W"},
	{Address: 17, HumanName: "battery voltage", MetricName: "battery_volts", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 18, HumanName: "battery SOC", MetricName: "battery_soc", Width: Single, Scale: 1, DeviceClass: "battery", Unit: "%"},
	{Address: 20, HumanName: "net battery power", MetricName: "net_battery_watts", Width: Double, Scale: -0.1, DeviceClass: "power", Unit: "W"},
	{Address: 25, HumanName: "inverter temperature", MetricName: "temperature_inverter_celsius", Width: Single, Scale: 0.1, DeviceClass: "temperature", Unit: "°C"},
	{Address: 26, HumanName: "DC-DC temperature", MetricName: "temperature_dcdc_celsius", Width: Single, Scale: 0.1, DeviceClass: "temperature", Unit: "°C"},
	{Address: 32, HumanName: "Buck1 temperature", MetricName: "temperature_buck1_celsius", Width: Single, Scale: 0.1, DeviceClass: "temperature", Unit: "°C"},
	{Address: 33, HumanName: "Buck2 temperature", MetricName: "temperature_buck2_celsius", Width: Single, Scale: 0.1, DeviceClass: "temperature", Unit: "°C"},
	{Address: 38, HumanName: "grid voltage", MetricName: "grid_volts", Width: Single, Scale: 0.1, DeviceClass: "voltage", Unit: "V"},
	{Address: 40, HumanName: "grid frequency", MetricName: "grid_hertz", Width: Single, Scale: 0.01, DeviceClass: "frequency", Unit: "Hz"},
	{Address: 48, HumanName: "PV energy today", MetricName: "energy_pv_today_kwh", Width: Double, Scale: 0.1, DeviceClass: "energy", Unit: "kWh"},
	{Address: 50, HumanName: "PV energy total", MetricName: "energy_pv_total_kwh", Width: Double, Scale: 0.1, DeviceClass: "energy", Unit: "kWh", StateClass: "total_increasing"},
	{Address: 81, HumanName: "MPPT fan speed", MetricName: "fan_speed_mppt", Width: Single, Scale: 1, Unit: "rpm"},
	{Address: 82, HumanName: "inverter fan speed", MetricName: "fan_speed_inverter", Width: Single, Scale: 1, Unit: "rpm"},
	{Address: 90, HumanName: "fault bits", MetricName: "fault_bits", Width: Single, Scale: 1},
	{Address: 92, HumanName: "warning bits", MetricName: "warning_bits", Width: Single, Scale: 1},
}

// growattHolding fixes the settings_boost_voltage / settings_boost_reconnect_voltage
// duplication noted in the REDESIGN FLAGS: both are distinct entries at
// distinct addresses, rather than one address published under both names.
var growattHolding = []RegisterSpec{
	{Address: 0, HumanName: "charging current limit", MetricName: "settings_charging_current_limit_amps", Width: Single, Scale: 0.1, Unit: "A"},
	{Address: 1, HumanName: "boost voltage", MetricName: "settings_boost_voltage", Width: Single, Scale: 0.1, DeviceClass: "voltage", Unit: "V"},
	{Address: 2, HumanName: "float voltage", MetricName: "settings_float_voltage", Width: Single, Scale: 0.1, DeviceClass: "voltage", Unit: "V"},
	{Address: 3, HumanName: "boost reconnect voltage", MetricName: "settings_boost_reconnect_voltage", Width: Single, Scale: 0.1, DeviceClass: "voltage", Unit: "V"},
	{Address: 4, HumanName: "utility switch voltage", MetricName: "settings_utility_switch_voltage", Width: Single, Scale: 0.1, DeviceClass: "voltage", Unit: "V"},
}
