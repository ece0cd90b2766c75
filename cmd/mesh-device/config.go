package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/meshmodel/pkg/bridge"
	"github.com/mash-protocol/meshmodel/pkg/model"
)

// ModelKind names a model in the node configuration.
type ModelKind string

const (
	KindOnOffServer  ModelKind = "onoff-server"
	KindOnOffClient  ModelKind = "onoff-client"
	KindSensorServer ModelKind = "sensor-server"
	KindBoardSensor  ModelKind = "board-sensor-server"
	KindSensorClient ModelKind = "sensor-client"
	KindVendor       ModelKind = "vendor"
)

// ModelConfig describes one model of an element.
type ModelConfig struct {
	Kind ModelKind `yaml:"kind"`

	// PublishPeriod starts periodic publication after attach. Zero
	// disables it.
	PublishPeriod time.Duration `yaml:"publish_period,omitempty"`

	// PublishTo is the publication address, all nodes when empty.
	PublishTo string `yaml:"publish_to,omitempty"`

	Subscriptions []string `yaml:"subscriptions,omitempty"`
}

// ElementConfig describes one element.
type ElementConfig struct {
	Index    uint8         `yaml:"index"`
	Location uint16        `yaml:"location"`
	Models   []ModelConfig `yaml:"models"`
}

// LogConfig configures operational logging and protocol capture.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	// Capture is the path of the CBOR protocol capture, disabled when empty.
	Capture string `yaml:"capture"`
}

// SimulationConfig drives the synthetic board readings.
type SimulationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Config is the node configuration.
type Config struct {
	AppPath   string `yaml:"app_path"`
	CompanyID uint16 `yaml:"company_id"`
	ProductID uint16 `yaml:"product_id"`
	VersionID uint16 `yaml:"version_id"`

	// UUID fixes the device UUID; a random one is used when empty.
	UUID      string `yaml:"uuid,omitempty"`
	StateFile string `yaml:"state_file"`

	Log        LogConfig        `yaml:"log"`
	Simulation SimulationConfig `yaml:"simulation"`
	MQTT       bridge.Config    `yaml:"mqtt"`

	Elements []ElementConfig `yaml:"elements"`
}

// DefaultConfig returns the simulator layout: a sensor board with an On/Off
// server on element 0 and two On/Off switches.
func DefaultConfig() Config {
	return Config{
		AppPath:   model.DefaultPath,
		CompanyID: model.DefaultCompanyID,
		ProductID: model.DefaultProductID,
		VersionID: model.DefaultVersionID,
		StateFile: "state/node.json",
		Log: LogConfig{
			Level:      "info",
			File:       "logs/device.log",
			MaxSizeMB:  1,
			MaxBackups: 5,
		},
		Simulation: SimulationConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
		},
		Elements: []ElementConfig{
			{Index: 0, Location: 0x0100, Models: []ModelConfig{
				{Kind: KindOnOffServer},
				{Kind: KindBoardSensor, PublishPeriod: 10 * time.Second},
				{Kind: KindSensorClient},
				{Kind: KindVendor},
			}},
			{Index: 1, Location: 0x010D, Models: []ModelConfig{{Kind: KindOnOffClient}}},
			{Index: 2, Location: 0x010E, Models: []ModelConfig{{Kind: KindOnOffClient}}},
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Elements in the file
// replace the default layout as a whole.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration before anything is started.
func (c Config) Validate() error {
	if c.AppPath == "" {
		return errors.New("app_path is required")
	}
	if len(c.Elements) == 0 {
		return errors.New("at least one element is required")
	}

	seen := make(map[uint8]bool)
	for _, e := range c.Elements {
		if seen[e.Index] {
			return fmt.Errorf("element %d: duplicate index", e.Index)
		}
		seen[e.Index] = true
		if len(e.Models) == 0 {
			return fmt.Errorf("element %d: no models", e.Index)
		}

		kinds := make(map[ModelKind]bool)
		for _, m := range e.Models {
			if err := m.validate(); err != nil {
				return fmt.Errorf("element %d: %w", e.Index, err)
			}
			if kinds[m.Kind] {
				return fmt.Errorf("element %d: duplicate model %s", e.Index, m.Kind)
			}
			kinds[m.Kind] = true
		}
		if kinds[KindSensorServer] && kinds[KindBoardSensor] {
			return fmt.Errorf("element %d: only one sensor server per element", e.Index)
		}
	}
	if !seen[0] {
		return errors.New("element 0 is required")
	}

	if c.Simulation.Enabled && c.Simulation.Interval < time.Second {
		return fmt.Errorf("simulation interval must be at least 1s, got %s", c.Simulation.Interval)
	}
	if c.MQTT.Broker != "" {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m ModelConfig) validate() error {
	switch m.Kind {
	case KindOnOffServer, KindOnOffClient, KindSensorServer, KindBoardSensor, KindSensorClient, KindVendor:
	default:
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	if m.PublishPeriod != 0 && m.PublishPeriod < time.Second {
		return fmt.Errorf("%s: publish_period must be 0 or at least 1s", m.Kind)
	}
	if m.PublishTo != "" {
		if _, err := model.ParseAddress(m.PublishTo); err != nil {
			return fmt.Errorf("%s: publish_to: %w", m.Kind, err)
		}
	}
	for _, s := range m.Subscriptions {
		if _, err := model.ParseAddress(s); err != nil {
			return fmt.Errorf("%s: subscription: %w", m.Kind, err)
		}
	}
	return nil
}
