package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/publish"
	"github.com/srg/blesense/internal/sensor"
	"github.com/srg/blesense/pkg/config"
)

type monitorFlags struct {
	char             string
	service          string
	configPath       string
	scanTimeout      time.Duration
	connectTimeout   time.Duration
	discoveryTimeout time.Duration
	readTimeout      time.Duration
	delay            time.Duration
	preferNotify     bool
	mqttBroker       string
	once             bool
}

func newMonitorCmd() *cobra.Command {
	f := &monitorFlags{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "monitor [address]",
		Short: "Connect to the sensor and print temperature readings",
		Long: `Scans for the sensor, connects, finds the temperature characteristic and
prints every reading until interrupted.

The address defaults to the configured target. Flags override values from
--config.`,
		Example: `  blesense monitor
  blesense monitor AA:BB:CC:DD:EE:FF --char fff1 --service fff0
  blesense monitor --config blesense.yaml --mqtt-broker tcp://localhost:1883
  blesense monitor --once --read-timeout 5s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, args, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.char, "char", defaults.Target.Characteristic, "Temperature characteristic UUID")
	flags.StringVar(&f.service, "service", defaults.Target.Service, "Service UUID narrowing discovery (empty for all)")
	flags.StringVar(&f.configPath, "config", "", "YAML configuration file")
	flags.DurationVar(&f.scanTimeout, "scan-timeout", defaults.Timeouts.Scan, "Time to find the sensor (0 to wait forever)")
	flags.DurationVar(&f.connectTimeout, "connect-timeout", defaults.Timeouts.Connect, "Time to connect (0 to wait forever)")
	flags.DurationVar(&f.discoveryTimeout, "discovery-timeout", defaults.Timeouts.Discovery, "Time for each discovery stage (0 to wait forever)")
	flags.DurationVar(&f.readTimeout, "read-timeout", defaults.Timeouts.Read, "Time from read/subscribe to the first value (0 to wait forever)")
	flags.DurationVar(&f.delay, "delay", defaults.RequestDelay, "Delay before every BLE request")
	flags.BoolVar(&f.preferNotify, "prefer-notify", defaults.PreferNotify, "Subscribe instead of reading when both are supported")
	flags.StringVar(&f.mqttBroker, "mqtt-broker", "", "Publish readings to this MQTT broker (e.g. tcp://localhost:1883)")
	flags.BoolVar(&f.once, "once", false, "Exit after the first reading")

	return cmd
}

// loadMonitorConfig merges the config file, the address argument and the
// flags the user set explicitly.
func loadMonitorConfig(cmd *cobra.Command, args []string, f *monitorFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if len(args) == 1 {
		cfg.Target.Address = args[0]
	}

	changed := cmd.Flags().Changed
	if changed("char") {
		cfg.Target.Characteristic = f.char
	}
	if changed("service") {
		cfg.Target.Service = f.service
	}
	if changed("scan-timeout") {
		cfg.Timeouts.Scan = f.scanTimeout
	}
	if changed("connect-timeout") {
		cfg.Timeouts.Connect = f.connectTimeout
	}
	if changed("discovery-timeout") {
		cfg.Timeouts.Discovery = f.discoveryTimeout
	}
	if changed("read-timeout") {
		cfg.Timeouts.Read = f.readTimeout
	}
	if changed("delay") {
		cfg.RequestDelay = f.delay
	}
	if changed("prefer-notify") {
		cfg.PreferNotify = f.preferNotify
	}
	if changed("mqtt-broker") {
		cfg.MQTT.Broker = f.mqttBroker
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string, f *monitorFlags) error {
	cfg, err := loadMonitorConfig(cmd, args, f)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg, f.configPath != "")
	if err != nil {
		return err
	}

	target, err := cfg.SensorTarget()
	if err != nil {
		return err
	}
	target.Address = devicefactory.CanonicalAddress(target.Address)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.OutOrStdout(), "\nCtrl+C pressed, disconnecting...")
			cancel()
		case <-ctx.Done():
		}
	}()

	transport := devicefactory.NewTransport(logger, cfg.Timeouts.Connect)
	client := sensor.New(target, transport, cfg.ClientOptions(), logger)
	events, stopUpdates := client.Updates(sensor.DefaultObserverBuffer)
	defer stopUpdates()

	defer func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close client")
		}
		if err := transport.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close BLE transport")
		}
	}()

	if err := transport.Open(ctx, client); err != nil {
		return err
	}

	if cfg.MQTT.Enabled() {
		sink, err := startSink(ctx, cfg.MQTT, target, client, logger)
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	logger.WithFields(logrus.Fields{
		"address":        target.Address,
		"characteristic": target.CharacteristicUUID,
		"service":        target.ServiceUUID,
	}).Info("Monitoring sensor")

	return watch(ctx, client, events, newDisplay(cmd.OutOrStdout()), f.once)
}

// watch prints events until the context ends, the client fails, or, with
// once, the first reading arrives.
func watch(ctx context.Context, client *sensor.Client, events <-chan sensor.Event, d *display, once bool) error {
	var progress *ProgressPrinter
	if d.tty {
		progress = NewProgressPrinter(d.out, "Waiting for sensor", sensor.StateIdle.String(),
			sensor.StateReceiving.String(), sensor.StateFailed.String())
		progress.Start()
		defer progress.Stop()
	}

	if err := client.StartScanning(); err != nil {
		d.Status(client.CurrentStatus())
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return sensor.ErrClosed
			}
			if progress != nil && ev.Kind == sensor.EventStatus {
				progress.Callback()(ev.Status.State.String())
			}
			d.Event(ev)

			switch {
			case ev.Kind == sensor.EventStatus && ev.Status.State == sensor.StateFailed:
				if ev.Status.Err != nil {
					return ev.Status.Err
				}
				return errors.New(ev.Status.Message)
			case ev.Kind == sensor.EventReading && once:
				return nil
			}
		}
	}
}

func startSink(ctx context.Context, cfg publish.Config, target sensor.Target, client *sensor.Client, logger *logrus.Logger) (*publish.MQTTSink, error) {
	sink, err := publish.NewMQTTSink(cfg, target, logger)
	if err != nil {
		return nil, err
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := sink.Connect(connectCtx); err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	client.Subscribe(func(ev sensor.Event) {
		if err := sink.Handle(ev); err != nil {
			logger.WithError(err).Warn("Failed to publish event")
		}
	})
	return sink, nil
}
