package onoff

import (
	"context"
	"sync"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/model"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	initial   State
	timeout   time.Duration
	modelOpts []model.Option
}

// WithInitialState sets the power-up state.
func WithInitialState(s State) ServerOption {
	return func(c *serverConfig) {
		c.initial = s
	}
}

// WithTransactionTimeout overrides the dedup window.
func WithTransactionTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.timeout = d
	}
}

// WithModelOptions passes options to the model base.
func WithModelOptions(opts ...model.Option) ServerOption {
	return func(c *serverConfig) {
		c.modelOpts = append(c.modelOpts, opts...)
	}
}

// Server is the Generic On/Off server model.
type Server struct {
	*model.Base

	mu    sync.Mutex
	state State

	tx  *model.Transactions
	pub *model.Publication
}

// NewServer returns a server in the Off state unless WithInitialState is given.
func NewServer(opts ...ServerOption) *Server {
	cfg := serverConfig{timeout: model.TransactionTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{state: cfg.initial}
	modelOpts := append(cfg.modelOpts, model.WithPublicationHandler(func(d time.Duration) {
		s.pub.SetPeriod(d)
	}))
	s.Base = model.NewBase(ServerModelID, modelOpts...)
	s.tx = model.NewTransactions(cfg.timeout, s.Base.Logger())
	s.pub = model.NewPublication(s.publishStatus, s.Base.Logger())
	return s
}

// State returns the current state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProcessMessage handles Get, Set and Set Unacknowledged.
func (s *Server) ProcessMessage(_ context.Context, msg model.Message) {
	m, ok := codec.DecodeOnOff(msg.Payload)
	if !ok {
		return
	}

	switch m.Opcode {
	case codec.OpOnOffGet:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.Logger().Debug("get", "src", msg.Source, "state", s.state)
		s.SendMessage(model.NewAddress(msg.Source), msg.KeyIndex, codec.EncodeOnOffStatus(uint8(s.state)))

	case codec.OpOnOffSet, codec.OpOnOffSetUnack:
		s.set(msg, m)
	}
}

func (s *Server) set(msg model.Message, m codec.OnOffMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx.Observe(m.TID, msg.Source, msg.Destination) {
		s.Logger().Debug("duplicate transaction dropped", "tid", m.TID, "src", msg.Source)
		return
	}

	old := s.state
	s.state = State(m.State)
	if old != s.state {
		s.Logger().Info("state changed", "src", msg.Source, "old", old, "new", s.state)
		s.RecordState(old.String(), s.state.String(), "set")
	}

	if m.Acknowledged() {
		s.SendMessage(model.NewAddress(msg.Source), msg.KeyIndex, codec.EncodeOnOffStatus(uint8(s.state)))
	}
}

// Publish sends the current state on the publication address now.
func (s *Server) Publish() {
	s.publishStatus()
}

func (s *Server) publishStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendPublication(codec.EncodeOnOffStatus(uint8(s.state)))
}

// PublicationPeriod returns the active publication period.
func (s *Server) PublicationPeriod() time.Duration {
	return s.pub.Period()
}

// Stop cancels publication and the transaction window.
func (s *Server) Stop() {
	s.pub.Stop()
	s.tx.Stop()
}

var (
	_ model.Model   = (*Server)(nil)
	_ model.Stopper = (*Server)(nil)
)
