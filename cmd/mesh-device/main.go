// Command mesh-device runs a simulated Bluetooth mesh node.
//
// The node is built from a YAML configuration (or the built-in layout: a
// sensor board with an On/Off server and two On/Off switches), joined to an
// in-memory mesh network and optionally bridged to an MQTT broker.
//
// Usage:
//
//	mesh-device [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-log-file string     Rotating log file (default "logs/device.log")
//	-capture string      Protocol capture file (CBOR)
//	-state string        Node state file (default "state/node.json")
//	-uuid string         Device UUID (random when empty)
//	-simulate            Simulate board readings (default true)
//	-publish-interval    Sensor publication period (default 10s)
//	-mqtt-broker string  MQTT broker URI, bridge disabled when empty
//	-interactive         Start the command console
//
// Examples:
//
//	# Run the default node with the console
//	mesh-device -interactive
//
//	# Bridge to a local broker and capture protocol events
//	mesh-device -mqtt-broker tcp://localhost:1883 -capture logs/device.mlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/meshmodel/cmd/mesh-device/interactive"
	"github.com/mash-protocol/meshmodel/pkg/bridge"
	"github.com/mash-protocol/meshmodel/pkg/mesh"
	"github.com/mash-protocol/meshmodel/pkg/persistence"
)

// flags holds the command line. Set flags override the configuration file.
type flags struct {
	configFile      string
	logLevel        string
	logFile         string
	capture         string
	stateFile       string
	uuid            string
	simulate        bool
	publishInterval time.Duration
	mqttBroker      string
	interactive     bool
}

func parseFlags(args []string) (flags, map[string]bool, error) {
	var f flags
	fs := flag.NewFlagSet("mesh-device", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Configuration file path")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFile, "log-file", "logs/device.log", "Rotating log file")
	fs.StringVar(&f.capture, "capture", "", "Protocol capture file (CBOR)")
	fs.StringVar(&f.stateFile, "state", "state/node.json", "Node state file")
	fs.StringVar(&f.uuid, "uuid", "", "Device UUID (random when empty)")
	fs.BoolVar(&f.simulate, "simulate", true, "Simulate board readings")
	fs.DurationVar(&f.publishInterval, "publish-interval", 10*time.Second, "Sensor publication period")
	fs.StringVar(&f.mqttBroker, "mqtt-broker", "", "MQTT broker URI, bridge disabled when empty")
	fs.BoolVar(&f.interactive, "interactive", false, "Start the command console")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// resolveConfig loads the configuration and applies the flags that were
// given explicitly.
func resolveConfig(f flags, set map[string]bool) (Config, error) {
	cfg := DefaultConfig()
	if f.configFile != "" {
		var err error
		if cfg, err = LoadConfig(f.configFile); err != nil {
			return cfg, err
		}
	}

	if set["log-level"] {
		cfg.Log.Level = f.logLevel
	}
	if set["log-file"] {
		cfg.Log.File = f.logFile
	}
	if set["capture"] {
		cfg.Log.Capture = f.capture
	}
	if set["state"] {
		cfg.StateFile = f.stateFile
	}
	if set["uuid"] {
		cfg.UUID = f.uuid
	}
	if set["simulate"] {
		cfg.Simulation.Enabled = f.simulate
	}
	if set["mqtt-broker"] {
		cfg.MQTT.Broker = f.mqttBroker
	}
	if set["publish-interval"] {
		for i := range cfg.Elements {
			for j, m := range cfg.Elements[i].Models {
				if m.Kind == KindSensorServer || m.Kind == KindBoardSensor {
					cfg.Elements[i].Models[j].PublishPeriod = f.publishInterval
				}
			}
		}
	}

	if cfg.UUID != "" {
		if _, err := uuid.Parse(cfg.UUID); err != nil {
			return cfg, fmt.Errorf("invalid uuid: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func main() {
	f, set, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	cfg, err := resolveConfig(f, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, f.interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config, withConsole bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log output moves to the console writer once the console exists.
	stdout := &switchWriter{w: os.Stdout}
	logger, logCloser, err := setupLogging(cfg.Log, stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	capture, captureCloser, err := setupCapture(cfg.Log, logger)
	if err != nil {
		return err
	}
	defer captureCloser.Close()

	dev, err := buildDevice(cfg, logger, capture)
	if err != nil {
		return err
	}

	dev.net = mesh.NewLoopback(logger)
	defer dev.net.Close()

	if err := startSession(ctx, dev, cfg, logger); err != nil {
		return err
	}
	defer dev.session.Close()

	if err := dev.applyModelConfig(ctx); err != nil {
		return fmt.Errorf("apply model configuration: %w", err)
	}
	logger.Info("device ready", "uuid", dev.session.UUID(), "elements", len(cfg.Elements))

	sim := newSimulator(dev.board, nil, logger)
	if cfg.Simulation.Enabled {
		if err := sim.Start(cfg.Simulation.Interval); err != nil {
			return err
		}
	}
	defer sim.Stop()

	if cfg.MQTT.Broker != "" {
		b, client, err := startBridge(dev, cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer func() {
			b.Stop()
			client.Disconnect()
		}()
	}

	if withConsole {
		console, err := interactive.New(dev, sim, cfg.Simulation.Interval)
		if err != nil {
			return err
		}
		stdout.set(console.Stdout())
		defer stdout.set(os.Stdout)
		go console.Run(ctx, cancel)
	} else {
		fmt.Fprintln(os.Stdout, "Device ready. Press Ctrl+C to quit.")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return nil
}

// startSession attaches with the stored token or joins. A stored token the
// network does not know is discarded and the node joins again.
func startSession(ctx context.Context, dev *device, cfg Config, logger *slog.Logger) error {
	store := persistence.NewNodeStateStore(cfg.StateFile)
	opts := []mesh.SessionOption{
		mesh.WithStore(store),
		mesh.WithSessionLogger(logger),
	}
	if cfg.UUID != "" {
		opts = append(opts, mesh.WithDeviceUUID(uuid.MustParse(cfg.UUID)))
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dev.session = mesh.NewSession(dev.app, dev.net, opts...)
	err := dev.session.Start(startCtx)
	if errors.Is(err, mesh.ErrUnknownToken) {
		logger.Warn("stored token unknown to the network, joining again")
		if err := store.Clear(); err != nil {
			return err
		}
		dev.session = mesh.NewSession(dev.app, dev.net, opts...)
		err = dev.session.Start(startCtx)
	}
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

func startBridge(dev *device, cfg bridge.Config, logger *slog.Logger) (*bridge.Bridge, bridge.Client, error) {
	client, err := bridge.Connect(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	b := bridge.New(dev.app, client, cfg, logger)
	if err := b.Start(); err != nil {
		client.Disconnect()
		return nil, nil, err
	}
	return b, client, nil
}

// switchWriter is an io.Writer whose target can be replaced while in use.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
