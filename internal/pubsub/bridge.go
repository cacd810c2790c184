// Package pubsub implements the push-style exporter of spec.md §4.4: a
// Home Assistant MQTT discovery announcement followed by a steady-state
// JSON snapshot publish every PUBLISH_PERIOD.
package pubsub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/infertux/solar-exporter/internal/catalog"
	"github.com/infertux/solar-exporter/internal/runstate"
	"github.com/infertux/solar-exporter/internal/snapshot"
)

const (
	keepAlive     = 60 * time.Second
	publishPeriod = 15 * time.Second
	connectWait   = 10 * time.Second
)

type message struct {
	topic   string
	payload []byte
	retain  bool
}

// Config bundles the broker connection parameters. Password is required
// whenever Username is set, mirroring the original's assert(strlen(...)
// > 0) pairing of the two (original_source/src/mqtt.h).
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Family   catalog.Family
}

// Bridge owns one MQTT client publishing one family's snapshot.
type Bridge struct {
	cfg   Config
	store *snapshot.Store
	state *runstate.State
	log   logrus.FieldLogger

	client mqtt.Client
}

// New constructs a Bridge. The broker connection is not opened until Run
// is called.
func New(cfg Config, store *snapshot.Store, state *runstate.State, log logrus.FieldLogger) *Bridge {
	return &Bridge{cfg: cfg, store: store, state: state, log: log}
}

// Run connects to the broker, publishes retained discovery messages once,
// then loops publishing the live snapshot every publishPeriod until
// runstate.Stop() is observed. A connect failure is fatal and raises
// runstate.Stop() (spec.md §4.4.2's connection_callback exit(rc) behavior
// translated into this process's cooperative shutdown).
func (b *Bridge) Run() error {
	// A random suffix keeps the client ID unique across restarts and
	// multi-instance deployments; brokers disconnect the older session on
	// an ID collision.
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", b.cfg.Host, b.cfg.Port)).
		SetClientID(b.cfg.Family.Prefix() + "-exporter-" + uuid.NewString()).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(connectWait) || token.Error() != nil {
		b.state.Stop()
		return fmt.Errorf("pubsub: connect to %s:%d: %w", b.cfg.Host, b.cfg.Port, token.Error())
	}
	defer b.client.Disconnect(250)

	b.log.WithFields(logrus.Fields{"host": b.cfg.Host, "port": b.cfg.Port}).Info("pubsub: connected to broker")

	if err := b.announce(); err != nil {
		b.log.WithError(err).Warn("pubsub: discovery announcement failed")
	}

	ticker := time.NewTicker(publishPeriod)
	defer ticker.Stop()

	for b.state.Running() {
		<-ticker.C
		if !b.state.Running() {
			break
		}
		if err := b.publishSnapshot(); err != nil {
			b.log.WithError(err).Warn("pubsub: publish failed, will retry next period")
		}
	}

	return nil
}

func (b *Bridge) announce() error {
	msgs, err := buildDiscoveryMessages(b.cfg.Family)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		token := b.client.Publish(m.topic, 0, m.retain, m.payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("pubsub: publish discovery %s: %w", m.topic, token.Error())
		}
	}
	return nil
}

// publishSnapshot publishes the current readings as a single JSON object
// keyed by metric name, matching the value_json.<metric> value_template
// every discovery message references. A snapshot with zero succeeded
// reads is skipped entirely rather than publishing an empty document.
func (b *Bridge) publishSnapshot() error {
	readings, succeeded, _ := b.store.Snapshot()
	if succeeded == 0 {
		return nil
	}

	payload := make(map[string]float64, len(readings))
	for _, r := range readings {
		payload[r.Name] = r.Value
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pubsub: marshal snapshot: %w", err)
	}

	token := b.client.Publish(stateTopic(b.cfg.Family), 0, false, body)
	token.Wait()
	return token.Error()
}
