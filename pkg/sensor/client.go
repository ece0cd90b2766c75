package sensor

import (
	"context"
	"errors"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/model"
)

// TemperatureHandler receives a decoded temp8 reading in degrees Celsius.
type TemperatureHandler func(src uint16, celsius float64)

// ReadingsHandler receives every decoded Status.
type ReadingsHandler func(src uint16, r Readings)

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	onTemp     TemperatureHandler
	onReadings ReadingsHandler
	modelOpts  []model.Option
}

// WithTemperatureHandler registers a callback for temp8 readings.
func WithTemperatureHandler(fn TemperatureHandler) ClientOption {
	return func(c *clientConfig) {
		c.onTemp = fn
	}
}

// WithReadingsHandler registers a callback for all decoded readings.
func WithReadingsHandler(fn ReadingsHandler) ClientOption {
	return func(c *clientConfig) {
		c.onReadings = fn
	}
}

// WithClientModelOptions passes options to the model base.
func WithClientModelOptions(opts ...model.Option) ClientOption {
	return func(c *clientConfig) {
		c.modelOpts = append(c.modelOpts, opts...)
	}
}

// Client is the Sensor client model. It recognises the temp8 property;
// other properties reach only the readings handler.
type Client struct {
	*model.Base
	onTemp     TemperatureHandler
	onReadings ReadingsHandler
}

// NewClient returns a sensor client.
func NewClient(opts ...ClientOption) *Client {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		Base:       model.NewBase(ClientModelID, cfg.modelOpts...),
		onTemp:     cfg.onTemp,
		onReadings: cfg.onReadings,
	}
}

// Get polls the server at dst. A zero id requests every property.
func (c *Client) Get(dst model.Address, keyIndex, id uint16) {
	c.SendMessage(dst, keyIndex, codec.EncodeSensorGet(id))
}

// ProcessMessage decodes Sensor Status frames.
func (c *Client) ProcessMessage(_ context.Context, msg model.Message) {
	if len(msg.Payload) == 0 || msg.Payload[0] != codec.OpSensorStatus {
		return
	}
	r, err := ParseStatus(msg.Payload, c.Logger())
	if err != nil {
		if !errors.Is(err, codec.ErrTruncated) {
			c.Logger().Warn("sensor status dropped", "src", msg.Source, "error", err)
			return
		}
		c.Logger().Warn("sensor status truncated", "src", msg.Source, "error", err)
	}
	if len(r) == 0 {
		return
	}

	if c.onReadings != nil {
		c.onReadings(msg.Source, r)
	}
	if v, ok := r.Temp8(); ok {
		c.Logger().Info("sensor value", "src", msg.Source, "temperature", v)
		if c.onTemp != nil {
			c.onTemp(msg.Source, v)
		}
	}
}

var _ model.Model = (*Client)(nil)
