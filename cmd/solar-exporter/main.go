// Command solar-exporter polls a Growatt or EPEVER device over Modbus and
// exposes its telemetry via a Prometheus-style scrape endpoint and/or a
// Home Assistant MQTT bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/infertux/solar-exporter/internal/config"
	"github.com/infertux/solar-exporter/internal/poller"
	"github.com/infertux/solar-exporter/internal/pubsub"
	"github.com/infertux/solar-exporter/internal/runstate"
	"github.com/infertux/solar-exporter/internal/scrape"
	"github.com/infertux/solar-exporter/internal/snapshot"
)

var flags config.Flags

func main() {
	log := logrus.New()

	root := &cobra.Command{
		Use:   "solar-exporter <device-or-uri>",
		Short: "Poll a Growatt or EPEVER device over Modbus and export its telemetry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.DeviceOrURI = args[0]
			return run(log)
		},
	}

	root.Flags().StringVar(&flags.Family, "family", "growatt", "device family: growatt or epever")
	root.Flags().DurationVar(&flags.TZOffset, "tz-offset", 0, "timezone offset applied to the device clock")
	root.Flags().IntVar(&flags.PrometheusPort, "prometheus", 0, "Prometheus scrape port (0 disables)")
	root.Flags().StringVar(&flags.MQTTHost, "mqtt-host", "", "MQTT broker host (empty disables)")
	root.Flags().IntVar(&flags.MQTTPort, "mqtt-port", 1883, "MQTT broker port")
	root.Flags().StringVar(&flags.MQTTUser, "mqtt-user", "", "MQTT username")
	root.Flags().StringVar(&flags.MQTTPass, "mqtt-pass", "", "MQTT password")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("solar-exporter: fatal error")
	}
}

func run(log logrus.FieldLogger) error {
	cfg, err := config.Validate(flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	state := runstate.New()
	store := snapshot.New()

	p := poller.New(cfg.Poller, store, state, log.WithField("component", "poller"))

	var scrapeSrv *scrape.Server
	if cfg.PrometheusPort != 0 {
		scrapeSrv = scrape.New(cfg.PrometheusPort, cfg.Poller.Family, store, state, log.WithField("component", "scrape"))
	}

	var bridge *pubsub.Bridge
	if cfg.MQTT != nil {
		bridge = pubsub.New(*cfg.MQTT, store, state, log.WithField("component", "pubsub"))
	}

	errCh := make(chan error, 3)
	running := 0

	running++
	go func() { errCh <- p.Run(ctx) }()

	if scrapeSrv != nil {
		running++
		go func() { errCh <- scrapeSrv.Run() }()
	}
	if bridge != nil {
		running++
		go func() { errCh <- bridge.Run() }()
	}

	shutdown := func() {
		state.Stop()
		cancel()
		if scrapeSrv != nil {
			scrapeSrv.Shutdown()
		}
	}

	go func() {
		<-sigCh
		log.Info("solar-exporter: shutting down")
		shutdown()
	}()

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			shutdown()
		}
	}

	if firstErr != nil {
		return fmt.Errorf("solar-exporter: %w", firstErr)
	}
	return nil
}
