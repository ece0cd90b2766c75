package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/model"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	modelID   uint16
	modelOpts []model.Option
}

// WithModelID overrides the model identifier, for example to expose the
// server as a Sensor Setup Server.
func WithModelID(id uint16) ServerOption {
	return func(c *serverConfig) {
		c.modelID = id
	}
}

// WithModelOptions passes options to the model base.
func WithModelOptions(opts ...model.Option) ServerOption {
	return func(c *serverConfig) {
		c.modelOpts = append(c.modelOpts, opts...)
	}
}

// Server is the Sensor server model.
type Server struct {
	*model.Base

	// mu serialises sampling and sending so publications and Get replies
	// leave in sampling order.
	mu     sync.Mutex
	source Source
	pub    *model.Publication
}

// NewServer returns a sensor server publishing the properties of source.
func NewServer(source Source, opts ...ServerOption) *Server {
	cfg := serverConfig{modelID: ServerModelID}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{source: source}
	modelOpts := append(cfg.modelOpts, model.WithPublicationHandler(func(d time.Duration) {
		s.pub.SetPeriod(d)
	}))
	s.Base = model.NewBase(cfg.modelID, modelOpts...)
	s.pub = model.NewPublication(s.publish, s.Base.Logger())
	return s
}

// NewTemperatureServer returns a server publishing a random temperature.
func NewTemperatureServer(opts ...ServerOption) *Server {
	return NewServer(NewTemperature(nil), opts...)
}

// NewBoardServer returns a server publishing every property of board.
func NewBoardServer(board *Board, opts ...ServerOption) *Server {
	return NewServer(board, opts...)
}

// Source returns the property source.
func (s *Server) Source() Source {
	return s.source
}

// CreateSensorData samples the source and returns a Sensor Status frame.
func (s *Server) CreateSensorData() ([]byte, error) {
	return codec.EncodeSensorStatus(s.source.Properties()...)
}

// ProcessMessage answers Sensor Get and logs inbound Sensor Status.
func (s *Server) ProcessMessage(_ context.Context, msg model.Message) {
	if id, err := codec.DecodeSensorGet(msg.Payload); err == nil {
		s.reply(msg, id)
		return
	}
	if len(msg.Payload) == 0 || msg.Payload[0] != codec.OpSensorStatus {
		return
	}
	r, err := ParseStatus(msg.Payload, s.Logger())
	if err != nil {
		if !errors.Is(err, codec.ErrTruncated) {
			s.Logger().Warn("sensor status dropped", "src", msg.Source, "error", err)
			return
		}
		s.Logger().Warn("sensor status truncated", "src", msg.Source, "error", err)
	}
	if len(r) > 0 {
		s.Logger().Info("sensor data", "src", msg.Source, "readings", r)
	}
}

func (s *Server) reply(msg model.Message, id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props := s.source.Properties()
	if id != 0 {
		props = filterProperty(props, id)
	}
	data, err := codec.EncodeSensorStatus(props...)
	if err != nil {
		s.Logger().Warn("sensor status not encoded", "error", err)
		return
	}
	s.SendMessage(model.NewAddress(msg.Source), msg.KeyIndex, data)
}

func filterProperty(props []codec.Property, id uint16) []codec.Property {
	for _, p := range props {
		if p.ID == id {
			return []codec.Property{p}
		}
	}
	return nil
}

// Publish samples the source and publishes a Status now.
func (s *Server) Publish() {
	s.publish()
}

func (s *Server) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.CreateSensorData()
	if err != nil {
		s.Logger().Warn("sensor status not encoded", "error", err)
		return
	}
	if t, ok := s.source.(*Temperature); ok {
		s.Logger().Info("publish", "temperature", fmt.Sprintf("%.1f", t.Last()))
	} else {
		s.Logger().Info("publishing sensor data")
	}
	s.SendPublication(data)
}

// PublicationPeriod returns the active publication period.
func (s *Server) PublicationPeriod() time.Duration {
	return s.pub.Period()
}

// Stop cancels publication.
func (s *Server) Stop() {
	s.pub.Stop()
}

var (
	_ model.Model   = (*Server)(nil)
	_ model.Stopper = (*Server)(nil)
)
