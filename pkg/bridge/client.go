package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Default broker settings.
const (
	DefaultCommandTopic = "command/inbox/#"
	DefaultUplinkPrefix = "sensor"
	DefaultQoS          = 1
	DefaultTimeout      = 10 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Handler receives a message from a subscribed topic.
type Handler func(topic string, payload []byte)

// Client is the subset of an MQTT client the bridge needs.
type Client interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, h Handler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// Config holds the broker connection settings.
type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	CommandTopic string `yaml:"command_topic"`
	UplinkPrefix string `yaml:"uplink_prefix"`
	// QoS applies to uplink publications and the command subscription.
	// Nil selects DefaultQoS; 0 is a valid setting.
	QoS *byte `yaml:"qos"`

	// KeyIndex is the application key used for downlink Sets.
	KeyIndex uint16 `yaml:"key_index"`

	Timeout time.Duration `yaml:"timeout"`

	// generatedID marks a ClientID chosen by withDefaults. A fresh random
	// identity has no broker session to resume.
	generatedID bool
}

// qos returns the configured QoS, DefaultQoS when unset.
func (c Config) qos() byte {
	if c.QoS == nil {
		return DefaultQoS
	}
	return *c.QoS
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.CommandTopic == "" {
		c.CommandTopic = DefaultCommandTopic
	}
	if c.UplinkPrefix == "" {
		c.UplinkPrefix = DefaultUplinkPrefix
	}
	if c.QoS == nil {
		qos := byte(DefaultQoS)
		c.QoS = &qos
	}
	if c.ClientID == "" {
		c.ClientID = "mesh-device-" + uuid.NewString()
		c.generatedID = true
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate checks the settings needed to connect.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("bridge: broker is required")
	}
	if c.QoS != nil && *c.QoS > 2 {
		return fmt.Errorf("bridge: invalid qos %d", *c.QoS)
	}
	return nil
}

// pahoClient adapts a paho client to Client.
type pahoClient struct {
	c       mqtt.Client
	timeout time.Duration
}

// Connect dials the broker. The connection reconnects on its own after it
// is lost; subscriptions are restored by paho's resume logic.
func Connect(cfg Config, logger *slog.Logger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	opts := clientOptions(cfg)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to mqtt broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	logger.Debug("connecting to mqtt broker", "broker", cfg.Broker, "client_id", cfg.ClientID, "clean_session", opts.CleanSession)
	c := mqtt.NewClient(opts)
	if err := wait(c.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return &pahoClient{c: c, timeout: cfg.Timeout}, nil
}

// clientOptions builds the paho options for cfg, which must have its
// defaults applied. A configured client id keeps a persistent session so
// QoS 1 commands queued while offline are delivered on reconnect.
func clientOptions(cfg Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(cfg.generatedID)
	opts.SetConnectTimeout(cfg.Timeout)
	return opts
}

func (p *pahoClient) Publish(topic string, qos byte, payload []byte) error {
	return wait(p.c.Publish(topic, qos, false, payload), p.timeout)
}

func (p *pahoClient) Subscribe(topic string, qos byte, h Handler) error {
	return wait(p.c.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	}), p.timeout)
}

func (p *pahoClient) Unsubscribe(topics ...string) error {
	return wait(p.c.Unsubscribe(topics...), p.timeout)
}

func (p *pahoClient) Disconnect() {
	p.c.Disconnect(250)
}

func wait(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return t.Error()
}

var _ Client = (*pahoClient)(nil)
