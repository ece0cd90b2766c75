package onoff

import (
	"context"
	"sync"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/model"
)

// maxTID bounds the rolling transaction identifier.
const maxTID = 255

// StatusHandler receives a well-formed Status from a server.
type StatusHandler func(src uint16, state State)

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	onStatus  StatusHandler
	modelOpts []model.Option
}

// WithStatusHandler registers a callback for inbound Status messages.
func WithStatusHandler(fn StatusHandler) ClientOption {
	return func(c *clientConfig) {
		c.onStatus = fn
	}
}

// WithClientModelOptions passes options to the model base.
func WithClientModelOptions(opts ...model.Option) ClientOption {
	return func(c *clientConfig) {
		c.modelOpts = append(c.modelOpts, opts...)
	}
}

// Client is the Generic On/Off client model.
type Client struct {
	*model.Base

	mu   sync.Mutex
	tid  uint8
	last []byte

	onStatus StatusHandler
}

// NewClient returns a client whose first Set carries tid 0.
func NewClient(opts ...ClientOption) *Client {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		Base:     model.NewBase(ClientModelID, cfg.modelOpts...),
		onStatus: cfg.onStatus,
	}
}

// GetState asks the server at dst for its state.
func (c *Client) GetState(dst model.Address, keyIndex uint16) {
	c.send(dst, keyIndex, codec.EncodeOnOffGet())
}

// SetState sends an acknowledged Set.
func (c *Client) SetState(dst model.Address, keyIndex uint16, state State) {
	c.set(dst, keyIndex, state, true)
}

// SetStateUnacknowledged sends a Set Unacknowledged.
func (c *Client) SetStateUnacknowledged(dst model.Address, keyIndex uint16, state State) {
	c.set(dst, keyIndex, state, false)
}

func (c *Client) set(dst model.Address, keyIndex uint16, state State, ack bool) {
	c.mu.Lock()
	payload := codec.EncodeOnOffSet(uint8(state), c.tid, ack)
	c.tid = uint8((int(c.tid) + 1) % maxTID)
	c.mu.Unlock()

	c.send(dst, keyIndex, payload)
}

func (c *Client) send(dst model.Address, keyIndex uint16, payload []byte) {
	c.mu.Lock()
	c.last = payload
	c.mu.Unlock()

	c.SendMessage(dst, keyIndex, payload)
}

// Repeat resends the last command verbatim, transaction identifier
// included. It reports false when nothing was sent yet.
func (c *Client) Repeat(dst model.Address, keyIndex uint16) bool {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	if last == nil {
		c.Logger().Info("no previous command to repeat")
		return false
	}
	c.SendMessage(dst, keyIndex, last)
	return true
}

// NextTID returns the transaction identifier of the next Set.
func (c *Client) NextTID() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tid
}

// ProcessMessage handles Status; anything else is ignored.
func (c *Client) ProcessMessage(_ context.Context, msg model.Message) {
	m, ok := codec.DecodeOnOff(msg.Payload)
	if !ok || m.Opcode != codec.OpOnOffStatus {
		return
	}
	state := State(m.State)
	c.Logger().Info("status", "src", msg.Source, "state", state)
	if c.onStatus != nil {
		c.onStatus(msg.Source, state)
	}
}

var _ model.Model = (*Client)(nil)
