// Package config validates and converts CLI flags into the typed
// configuration structs the poller, scrape and pubsub packages consume.
// It is the external collaborator of spec.md §1/§6 "device_or_uri parsing
// and flag handling."
package config

import (
	"fmt"
	"time"

	"github.com/infertux/solar-exporter/internal/catalog"
	"github.com/infertux/solar-exporter/internal/poller"
	"github.com/infertux/solar-exporter/internal/pubsub"
)

// Flags is the raw, unvalidated set of CLI inputs.
type Flags struct {
	DeviceOrURI string
	Family      string
	TZOffset    time.Duration

	PrometheusPort int

	MQTTHost string
	MQTTPort int
	MQTTUser string
	MQTTPass string
}

// Config is the validated result of parsing Flags.
type Config struct {
	Poller         poller.Config
	PrometheusPort int // 0 means disabled
	MQTT           *pubsub.Config // nil means disabled
}

// Validate converts Flags into Config, rejecting combinations the CLI
// layer should never pass through to the worker packages (spec.md §4.4.1
// "Password required if username present").
func Validate(f Flags) (Config, error) {
	if f.DeviceOrURI == "" {
		return Config{}, fmt.Errorf("config: device-or-uri is required")
	}

	family, err := parseFamily(f.Family)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Poller: poller.Config{
			DeviceOrURI: f.DeviceOrURI,
			Family:      family,
			TZOffset:    f.TZOffset,
		},
		PrometheusPort: f.PrometheusPort,
	}

	if f.MQTTHost != "" {
		if f.MQTTUser != "" && f.MQTTPass == "" {
			return Config{}, fmt.Errorf("config: mqtt-pass is required when mqtt-user is set")
		}
		cfg.MQTT = &pubsub.Config{
			Host:     f.MQTTHost,
			Port:     f.MQTTPort,
			Username: f.MQTTUser,
			Password: f.MQTTPass,
			Family:   family,
		}
	}

	if cfg.PrometheusPort == 0 && cfg.MQTT == nil {
		return Config{}, fmt.Errorf("config: at least one of --prometheus or --mqtt-host must be set")
	}

	return cfg, nil
}

func parseFamily(s string) (catalog.Family, error) {
	switch s {
	case "growatt", "":
		return catalog.Growatt, nil
	case "epever":
		return catalog.Epever, nil
	default:
		return 0, fmt.Errorf("config: unknown family %q (want growatt or epever)", s)
	}
}
