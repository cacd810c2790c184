package poller

import (
	"fmt"
	"net"
	"strings"

	modbus "github.com/grid-x/modbus"

	solarman "github.com/infertux/solar-exporter/util/modbus"

	"github.com/infertux/solar-exporter/internal/catalog"
)

// session bundles the handler (which owns Connect/Close) and the Client
// built on top of it, mirroring how the teacher's SolarmanV5Connection
// separates transport lifecycle from the Modbus-level operations.
type session struct {
	handler interface {
		Connect() error
		Close() error
	}
	client modbusClient
}

const solarmanScheme = "solarman://"

// dial interprets device_or_uri per spec.md §4.1: a leading "/" is a
// serial device path opened as Modbus RTU with the family's fixed line
// parameters; a "solarman://host:port/loggerSerial" URI opens a
// SolarmanV5-encapsulated session for Growatt dataloggers that expose no
// direct Modbus TCP port; anything else that parses as host:port is
// opened as plain Modbus TCP. Neither parsing is fatal to the caller
// directly -- dial returns an error and the caller raises
// runstate.Stop() (spec.md §4.1.2 "Fatal errors").
func dial(deviceOrURI string, family catalog.Family) (*session, error) {
	if strings.HasPrefix(deviceOrURI, solarmanScheme) {
		return dialSolarmanV5(strings.TrimPrefix(deviceOrURI, solarmanScheme))
	}

	if strings.HasPrefix(deviceOrURI, "/") {
		handler := modbus.NewRTUClientHandler(deviceOrURI)
		handler.BaudRate = family.BaudRate()
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.SlaveId = 1
		handler.Timeout = family.ResponseTimeout()

		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("connect RTU %s: %w", deviceOrURI, err)
		}
		return &session{handler: handler, client: modbus.NewClient(handler)}, nil
	}

	if _, _, err := net.SplitHostPort(deviceOrURI); err == nil {
		handler := modbus.NewTCPClientHandler(deviceOrURI)
		handler.SlaveId = 1
		handler.Timeout = family.ResponseTimeout()

		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("connect TCP %s: %w", deviceOrURI, err)
		}
		return &session{handler: handler, client: modbus.NewClient(handler)}, nil
	}

	return nil, fmt.Errorf("%q is neither a serial device path nor a host:port address", deviceOrURI)
}

func (s *session) Close() error {
	if s == nil || s.handler == nil {
		return nil
	}
	return s.handler.Close()
}

// solarmanHandle adapts *util/modbus.SolarmanV5Connection's Close (no
// return value) to the session.handler interface's Close() error.
type solarmanHandle struct {
	conn *solarman.SolarmanV5Connection
}

func (h solarmanHandle) Connect() error { return h.conn.Connect() }
func (h solarmanHandle) Close() error {
	h.conn.Close()
	return nil
}

// dialSolarmanV5 opens a SolarmanV5-encapsulated Modbus session against a
// Growatt/Deye datalogger stick. raw is "host:port/loggerSerial", parsed
// by util/modbus.ParseSolarmanURI; loggerSerial authenticates the frame
// (util/modbus/solarmanv5.go's NewSolarmanV5Connection).
func dialSolarmanV5(raw string) (*session, error) {
	addr, serial, err := solarman.ParseSolarmanURI(raw)
	if err != nil {
		return nil, err
	}

	conn, err := solarman.NewSolarmanV5Connection(addr, serial)
	if err != nil {
		return nil, fmt.Errorf("solarman: create connection to %s: %w", addr, err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("solarman: connect to %s: %w", addr, err)
	}

	return &session{handler: solarmanHandle{conn: conn}, client: conn.ModbusClient().(modbusClient)}, nil
}
