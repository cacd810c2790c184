package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/infertux/solar-exporter/internal/catalog"
)

// stateTopic is the single topic the steady-state JSON payload is
// published to; every discovered sensor's value_template points back at
// it (spec.md §4.4, grounded on original_source/src/mqtt.h's
// TOPIC_STATE).
func stateTopic(family catalog.Family) string {
	return fmt.Sprintf("homeassistant/sensor/%s/state", family.Prefix())
}

func configTopic(uniqueID string) string {
	return "homeassistant/sensor/" + uniqueID + "/config"
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

// discoveryPayload mirrors the Home Assistant MQTT discovery document the
// original hand-builds with sprintf per register (mqtt.h). omitempty
// drops device_class/state_class/unit when the catalog entry has none.
type discoveryPayload struct {
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	StateTopic        string          `json:"state_topic"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string          `json:"value_template"`
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	Device            discoveryDevice `json:"device"`
}

// buildDiscoveryMessages renders one retained discovery config message per
// input register of the family's catalog. Holding (settings) registers
// are not exposed to Home Assistant in the original and aren't here
// either.
func buildDiscoveryMessages(family catalog.Family) ([]message, error) {
	device := discoveryDevice{
		Identifiers:  []string{"1"},
		Name:         family.String(),
		Manufacturer: family.String(),
	}

	var out []message
	for _, spec := range family.InputRegisters() {
		uniqueID := family.Prefix() + "_" + spec.MetricName
		payload := discoveryPayload{
			DeviceClass:       spec.DeviceClass,
			StateClass:        spec.StateClass,
			StateTopic:        stateTopic(family),
			UnitOfMeasurement: spec.Unit,
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", spec.MetricName),
			Name:              spec.HumanName,
			UniqueID:          uniqueID,
			Device:            device,
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("pubsub: marshal discovery for %s: %w", spec.MetricName, err)
		}
		out = append(out, message{topic: configTopic(uniqueID), payload: body, retain: true})
	}
	return out, nil
}
