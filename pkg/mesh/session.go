package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/persistence"
)

// Session errors.
var (
	ErrJoinFailed   = errors.New("join failed")
	ErrNotJoined    = errors.New("node not joined")
	ErrSessionState = errors.New("invalid session state")
)

// State is the lifecycle state of a session.
type State uint8

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateAttached
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateJoining:
		return "JOINING"
	case StateJoined:
		return "JOINED"
	case StateAttached:
		return "ATTACHED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStore persists the join token and the attach configuration.
func WithStore(store *persistence.NodeStateStore) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// WithSessionLogger sets the operational logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDeviceUUID fixes the device UUID instead of generating one on join.
func WithDeviceUUID(id uuid.UUID) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// Session drives the join and attach lifecycle of one application.
type Session struct {
	app    *model.Application
	net    Network
	store  *persistence.NodeStateStore
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	id       uuid.UUID
	token    uint64
	joinedAt time.Time
	joinDone chan error
}

// NewSession returns an idle session.
func NewSession(app *model.Application, net Network, opts ...SessionOption) *Session {
	s := &Session{
		app:    app,
		net:    net,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UUID returns the device UUID, uuid.Nil before join.
func (s *Session) UUID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Token returns the join token, 0 before JoinComplete.
func (s *Session) Token() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Start attaches with a persisted token, or joins and then attaches.
func (s *Session) Start(ctx context.Context) error {
	if err := s.restore(); err != nil {
		return err
	}
	if s.Token() != 0 {
		s.logger.Info("attaching with stored token", "uuid", s.UUID())
		return s.Attach(ctx)
	}

	done, err := s.join(ctx)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Attach(ctx)
}

func (s *Session) restore() error {
	if s.store == nil {
		return nil
	}
	st, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load node state: %w", err)
	}
	if st == nil {
		return nil
	}
	token, err := st.TokenValue()
	if errors.Is(err, persistence.ErrNoToken) {
		return nil
	}
	if err != nil {
		return err
	}
	id, err := uuid.Parse(st.UUID)
	if err != nil {
		return fmt.Errorf("stored uuid: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.token = token
	s.joinedAt = st.JoinedAt
	s.setStateLocked(StateJoined, "restored")
	return nil
}

// Join requests provisioning. Completion arrives through JoinComplete or
// JoinFailed.
func (s *Session) Join(ctx context.Context) error {
	_, err := s.join(ctx)
	return err
}

func (s *Session) join(ctx context.Context) (<-chan error, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: join in %s", ErrSessionState, st)
	}
	if s.id == uuid.Nil {
		s.id = uuid.New()
	}
	id := s.id
	done := make(chan error, 1)
	s.joinDone = done
	s.setStateLocked(StateJoining, "")
	s.mu.Unlock()

	s.logger.Info("joining mesh network", "uuid", id)
	if err := s.net.Join(ctx, s.app, id, s); err != nil {
		s.mu.Lock()
		s.setStateLocked(StateIdle, err.Error())
		s.joinDone = nil
		s.mu.Unlock()
		return nil, fmt.Errorf("join: %w", err)
	}
	return done, nil
}

// JoinComplete records the token handed out by the network.
func (s *Session) JoinComplete(token uint64) {
	s.mu.Lock()
	s.token = token
	s.joinedAt = time.Now()
	s.setStateLocked(StateJoined, "join complete")
	done := s.joinDone
	s.joinDone = nil
	s.mu.Unlock()

	s.logger.Info("join complete", "token", fmt.Sprintf("%016x", token))
	if err := s.persist(nil); err != nil {
		s.logger.Warn("node state not saved", "error", err)
	}
	if done != nil {
		done <- nil
	}
}

// JoinFailed returns the session to idle.
func (s *Session) JoinFailed(reason string) {
	s.mu.Lock()
	s.setStateLocked(StateIdle, reason)
	done := s.joinDone
	s.joinDone = nil
	s.mu.Unlock()

	s.logger.Error("join failed", "reason", reason)
	if done != nil {
		done <- fmt.Errorf("%w: %s", ErrJoinFailed, reason)
	}
}

// Attach binds the application to the joined node, installs the transport
// and applies the configuration received from the network. Configuration
// for unknown models is logged and skipped.
func (s *Session) Attach(ctx context.Context) error {
	s.mu.Lock()
	if s.token == 0 {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("%w: attach in %s", ErrSessionState, s.state)
	}
	token, id := s.token, s.id
	s.mu.Unlock()

	t, configs, err := s.net.Attach(ctx, s.app, token)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	s.app.SetNodeID(id.String())
	s.app.Attach(t)
	if err := s.app.ApplyElementConfigs(configs); err != nil {
		s.logger.Warn("attach configuration partially applied", "error", err)
	}

	s.mu.Lock()
	s.setStateLocked(StateAttached, "")
	s.mu.Unlock()

	if err := s.persist(configs); err != nil {
		s.logger.Warn("node state not saved", "error", err)
	}
	return nil
}

// Leave removes the node from the network, forgets the stored state and
// closes the session.
func (s *Session) Leave(ctx context.Context) error {
	token := s.Token()
	if token == 0 {
		return ErrNotJoined
	}
	if err := s.net.Leave(ctx, token); err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("node state not cleared", "error", err)
		}
	}
	s.Close()
	return nil
}

// ServiceRemoved handles the disappearance of the mesh service.
func (s *Session) ServiceRemoved() {
	s.logger.Warn("mesh service removed")
	s.Close()
}

// Close stops every model timer and detaches the application. It is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateClosed, "")
	s.mu.Unlock()

	s.app.Close()
}

func (s *Session) setStateLocked(next State, reason string) {
	prev := s.state
	s.state = next
	if prev == next {
		return
	}
	s.app.Capture(meshlog.Event{
		Layer:    meshlog.LayerApplication,
		Category: meshlog.CategoryState,
		StateChange: &meshlog.StateChangeEvent{
			Entity:   meshlog.StateEntityNode,
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

func (s *Session) persist(configs []model.ElementConfig) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	st := &persistence.NodeState{
		UUID:     s.id.String(),
		JoinedAt: s.joinedAt,
	}
	st.SetToken(s.token)
	s.mu.Unlock()

	if configs == nil {
		if prev, err := s.store.Load(); err == nil && prev != nil {
			st.Elements = prev.Elements
		}
	} else {
		st.Elements = elementStates(configs)
	}
	return s.store.Save(st)
}

func elementStates(configs []model.ElementConfig) []persistence.ElementState {
	out := make([]persistence.ElementState, 0, len(configs))
	for _, ec := range configs {
		es := persistence.ElementState{Index: ec.Index}
		for _, mc := range ec.Models {
			ms := persistence.ModelState{
				ID:       mc.ID,
				Vendor:   mc.Vendor,
				Bindings: mc.Update.Bindings,
			}
			for _, sub := range mc.Update.Subscriptions {
				ms.Subscriptions = append(ms.Subscriptions, sub.String())
			}
			if mc.Update.PublicationPeriod != nil {
				ms.PublicationPeriod = uint32(mc.Update.PublicationPeriod.Milliseconds())
			}
			es.Models = append(es.Models, ms)
		}
		out = append(out, es)
	}
	return out
}

var _ JoinHandler = (*Session)(nil)
