package modbus

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSolarmanURI parses a "host:port/loggerSerial" device URI, the
// shape the poller package's solarman:// transport passes through after
// stripping the scheme. loggerSerial may be decimal or 0x-prefixed hex,
// matching how it's printed on the datalogger's case.
func ParseSolarmanURI(raw string) (addr string, loggerSerial uint32, err error) {
	addr, serialStr, found := strings.Cut(raw, "/")
	if !found || serialStr == "" {
		return "", 0, fmt.Errorf("solarman URI %q must be host:port/loggerSerial", raw)
	}

	base := 10
	if strings.HasPrefix(serialStr, "0x") {
		base = 16
		serialStr = strings.TrimPrefix(serialStr, "0x")
	}

	serial, err := strconv.ParseUint(serialStr, base, 32)
	if err != nil {
		return "", 0, fmt.Errorf("solarman URI %q: invalid logger serial: %w", raw, err)
	}

	return addr, uint32(serial), nil
}
