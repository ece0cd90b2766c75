package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
)

// uplinkQueue bounds the messages waiting for the broker.
const uplinkQueue = 64

// Bridge errors.
var (
	ErrAlreadyStarted = errors.New("bridge already started")
	ErrNoOnOffClient  = errors.New("element has no on/off client")
)

type uplinkJob struct {
	topic   string
	payload []byte
}

// Bridge forwards mesh traffic to MQTT and MQTT commands to the mesh.
type Bridge struct {
	app    *model.Application
	client Client
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	queue   chan uplinkJob
	done    chan struct{}
}

// New returns a bridge for app. Start registers it.
func New(app *model.Application, client Client, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		app:    app,
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "bridge"),
		queue:  make(chan uplinkJob, uplinkQueue),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the command topic and begins forwarding delivered
// messages.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	if err := b.client.Subscribe(b.cfg.CommandTopic, b.cfg.qos(), b.handleCommand); err != nil {
		b.mu.Lock()
		b.started = false
		b.mu.Unlock()
		return err
	}

	go b.publishLoop()
	b.app.OnMessage(b.uplink)
	b.recordState("STOPPED", "RUNNING")
	b.logger.Info("bridge started", "commands", b.cfg.CommandTopic, "uplink", b.cfg.UplinkPrefix)
	return nil
}

// Stop unsubscribes and drains the uplink queue. The application keeps the
// observer but it no longer forwards anything.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	if err := b.client.Unsubscribe(b.cfg.CommandTopic); err != nil {
		b.logger.Warn("unsubscribe failed", "error", err)
	}
	b.recordState("RUNNING", "STOPPED")
}

// uplink runs for every delivered message, on the transport's goroutine.
func (b *Bridge) uplink(e *model.Element, msg model.Message) {
	up, err := NewUplink(e.Location(), msg.Payload)
	if err != nil {
		b.logger.Debug("uplink skipped", "src", msg.Source, "error", err)
		return
	}
	data, err := json.Marshal(up)
	if err != nil {
		b.logger.Warn("uplink encode failed", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	select {
	case b.queue <- uplinkJob{topic: UplinkTopic(b.cfg.UplinkPrefix, msg.Source), payload: data}:
	default:
		b.logger.Warn("uplink queue full, message dropped", "src", msg.Source)
	}
}

func (b *Bridge) publishLoop() {
	defer close(b.done)
	for job := range b.queue {
		if err := b.client.Publish(job.topic, b.cfg.qos(), job.payload); err != nil {
			b.logger.Warn("error publishing to broker", "topic", job.topic, "error", err)
			continue
		}
		b.logger.Debug("uplink published", "topic", job.topic)
	}
}

// handleCommand runs on the MQTT client's goroutine.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if parts[len(parts)-1] != "sensor" {
		b.logger.Debug("command on unhandled channel", "topic", topic)
		return
	}
	device := ""
	if len(parts) > 1 {
		device = parts[len(parts)-2]
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		b.logger.Info("command ignored", "device", device, "error", err)
		return
	}
	if err := b.Execute(cmd); err != nil {
		b.logger.Warn("error forwarding command to device", "device", device, "error", err)
		return
	}
	b.logger.Info("forwarded command to device", "device", device, "dst", cmd.Destination().String(), "on", cmd.Display.On)
}

// Execute sends the On/Off Set of cmd. An unknown location falls back to the
// primary element.
func (b *Bridge) Execute(cmd Command) error {
	e, err := b.app.ElementByLocation(cmd.Display.Location)
	if err != nil {
		e, err = b.app.Element(0)
		if err != nil {
			return err
		}
	}

	m, err := e.Model(onoff.ClientModelID)
	if err != nil {
		return ErrNoOnOffClient
	}
	c, ok := m.(*onoff.Client)
	if !ok {
		return ErrNoOnOffClient
	}

	state := onoff.Off
	if cmd.Display.On {
		state = onoff.On
	}
	c.SetState(cmd.Destination(), b.cfg.KeyIndex, state)
	return nil
}

func (b *Bridge) recordState(from, to string) {
	b.app.Capture(meshlog.Event{
		Layer:    meshlog.LayerApplication,
		Category: meshlog.CategoryState,
		StateChange: &meshlog.StateChangeEvent{
			Entity:   meshlog.StateEntityBridge,
			OldState: from,
			NewState: to,
		},
	})
}
