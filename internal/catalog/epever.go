package catalog

// epeverClockAddress is the first of the 3 RTC holding registers
// (minutes|seconds, day|hour, (year-2000)|month), per EPEVER's published
// Modbus register map.
const epeverClockAddress = 0x9013

// epeverInput is grounded directly on original_source/{modbus.c,modbus.h,
// src/epever.c}: 0x3100/0x3101/0x3102 (PV volts/amps/watts), 0x3104/0x3105/
// 0x3106 (battery volts/amps/watts), 0x3110 (battery temperature), 0x311A
// (battery SOC), 0x3200/0x3201 (battery/charging status), 0x330C (energy
// generated today), plus the min/max-today voltages and total energy the
// distillation dropped (present as commented-out reads in the same files).
var epeverInput = []RegisterSpec{
	{Address: 0x3100, HumanName: "PV voltage", MetricName: "pv_volts", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x3101, HumanName: "PV current", MetricName: "pv_amperes", Width: Single, Scale: 0.01, DeviceClass: "current", Unit: "A"},
	{Address: 0x3102, HumanName: "PV power", MetricName: "pv_watts", Width: Double, Scale: 0.01, DeviceClass: "power", Unit: "W"},
	{Address: 0x3104, HumanName: "battery voltage", MetricName: "battery_volts", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x3105, HumanName: "battery current", MetricName: "battery_amperes", Width: Single, Scale: 0.01, DeviceClass: "current", Unit: "A"},
	{Address: 0x3106, HumanName: "battery power", MetricName: "battery_watts", Width: Double, Scale: 0.01, DeviceClass: "power", Unit: "W"},
	{Address: 0x3110, HumanName: "battery temperature", MetricName: "battery_temperature_celsius", Width: Single, Scale: 0.01, DeviceClass: "temperature", Unit: "°C"},
	{Address: 0x311A, HumanName: "battery SOC", MetricName: "battery_soc", Width: Single, Scale: 1, DeviceClass: "battery", Unit: "%"},
	{Address: 0x3200, HumanName: "battery status", MetricName: "battery_status", Width: Single, Scale: 1},
	{Address: 0x3201, HumanName: "charging status", MetricName: "charging_status", Width: Single, Scale: 1},
	{Address: 0x3302, HumanName: "max battery voltage today", MetricName: "battery_max_volts_today", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x3303, HumanName: "min battery voltage today", MetricName: "battery_min_volts_today", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x330C, HumanName: "energy generated today", MetricName: "energy_generated_today_kwh", Width: Double, Scale: 0.01, DeviceClass: "energy", Unit: "kWh"},
	{Address: 0x330E, HumanName: "energy generated total", MetricName: "energy_generated_total_kwh", Width: Double, Scale: 0.01, DeviceClass: "energy", Unit: "kWh", StateClass: "total_increasing"},
}

// epeverHolding covers the subset of settings registers exercised by the
// original source's commented-out "rated_current" read (0x3001) plus the
// boost/float/boost-reconnect voltages a complete settings readout needs.
var epeverHolding = []RegisterSpec{
	{Address: 0x3000, HumanName: "battery rated voltage", MetricName: "settings_battery_rated_voltage", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x3001, HumanName: "rated charging current", MetricName: "settings_rated_charging_current_amps", Width: Single, Scale: 0.01, Unit: "A"},
	{Address: 0x3005, HumanName: "boost voltage", MetricName: "settings_boost_voltage", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x3006, HumanName: "float voltage", MetricName: "settings_float_voltage", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
	{Address: 0x3007, HumanName: "boost reconnect voltage", MetricName: "settings_boost_reconnect_voltage", Width: Single, Scale: 0.01, DeviceClass: "voltage", Unit: "V"},
}
