package mesh

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/meshmodel/internal/meshtest"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/persistence"
)

type mockNetwork struct {
	mock.Mock
}

func (m *mockNetwork) Join(ctx context.Context, app *model.Application, id uuid.UUID, h JoinHandler) error {
	args := m.Called(ctx, app, id, h)
	return args.Error(0)
}

func (m *mockNetwork) Attach(ctx context.Context, app *model.Application, token uint64) (model.Transport, []model.ElementConfig, error) {
	args := m.Called(ctx, app, token)
	t, _ := args.Get(0).(model.Transport)
	configs, _ := args.Get(1).([]model.ElementConfig)
	return t, configs, args.Error(2)
}

func (m *mockNetwork) Leave(ctx context.Context, token uint64) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func startCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateJoining, "JOINING"},
		{StateJoined, "JOINED"},
		{StateAttached, "ATTACHED"},
		{StateClosed, "CLOSED"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestSessionJoinThenAttach(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	store := persistence.NewNodeStateStore(filepath.Join(t.TempDir(), "node.json"))
	app, srv := lightNode(t)
	s := NewSession(app, net, WithStore(store))

	require.NoError(t, s.Start(startCtx(t)))
	assert.Equal(t, StateAttached, s.State())
	assert.NotEqual(t, uuid.Nil, s.UUID())
	assert.NotZero(t, s.Token())
	assert.NotNil(t, app.Transport())
	assert.True(t, srv.Config().Bound(0))

	st, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, s.UUID().String(), st.UUID)
	token, err := st.TokenValue()
	require.NoError(t, err)
	assert.Equal(t, s.Token(), token)
	require.Len(t, st.Elements, 1)
	require.Len(t, st.Elements[0].Models, 1)
	assert.Equal(t, []uint16{0}, st.Elements[0].Models[0].Bindings)
}

func TestSessionAttachWithStoredToken(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	store := persistence.NewNodeStateStore(filepath.Join(t.TempDir(), "node.json"))

	first, _ := lightNode(t)
	s1 := NewSession(first, net, WithStore(store))
	require.NoError(t, s1.Start(startCtx(t)))
	s1.Close()

	second, _ := lightNode(t)
	s2 := NewSession(second, net, WithStore(store))
	require.NoError(t, s2.Start(startCtx(t)))

	assert.Equal(t, StateAttached, s2.State())
	assert.Equal(t, s1.Token(), s2.Token())
	assert.Equal(t, s1.UUID(), s2.UUID())
}

func TestSessionFixedUUID(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	id := uuid.MustParse("6f0b3c0e-3a3c-4c3a-9d8e-0f1e2d3c4b5a")
	app, _ := lightNode(t)
	s := NewSession(app, net, WithDeviceUUID(id))
	require.NoError(t, s.Start(startCtx(t)))
	assert.Equal(t, id, s.UUID())
}

func TestSessionJoinFailed(t *testing.T) {
	app, _ := lightNode(t)
	net := &mockNetwork{}
	s := NewSession(app, net)

	net.On("Join", mock.Anything, app, mock.Anything, s).
		Run(func(args mock.Arguments) {
			h := args.Get(3).(JoinHandler)
			go h.JoinFailed("provisioning rejected")
		}).
		Return(nil)

	err := s.Start(startCtx(t))
	assert.ErrorIs(t, err, ErrJoinFailed)
	assert.Contains(t, err.Error(), "provisioning rejected")
	assert.Equal(t, StateIdle, s.State())
	net.AssertNotCalled(t, "Attach", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionJoinError(t *testing.T) {
	app, _ := lightNode(t)
	net := &mockNetwork{}
	net.On("Join", mock.Anything, app, mock.Anything, mock.Anything).Return(ErrNetworkClosed)

	s := NewSession(app, net)
	err := s.Start(startCtx(t))
	assert.ErrorIs(t, err, ErrNetworkClosed)
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionJoinTwice(t *testing.T) {
	app, _ := lightNode(t)
	net := &mockNetwork{}
	net.On("Join", mock.Anything, app, mock.Anything, mock.Anything).Return(nil)

	s := NewSession(app, net)
	require.NoError(t, s.Join(context.Background()))
	assert.Equal(t, StateJoining, s.State())
	assert.ErrorIs(t, s.Join(context.Background()), ErrSessionState)
	net.AssertNumberOfCalls(t, "Join", 1)
}

func TestSessionAttachErrors(t *testing.T) {
	app, _ := lightNode(t)
	net := &mockNetwork{}
	s := NewSession(app, net)

	assert.ErrorIs(t, s.Attach(context.Background()), ErrNotJoined)

	net.On("Attach", mock.Anything, app, uint64(9)).Return(nil, nil, ErrUnknownToken)
	s.JoinComplete(9)
	assert.Equal(t, StateJoined, s.State())
	assert.ErrorIs(t, s.Attach(context.Background()), ErrUnknownToken)
	assert.Nil(t, app.Transport())
}

func TestSessionUnknownConfigTolerated(t *testing.T) {
	app, _ := lightNode(t)
	net := &mockNetwork{}
	configs := []model.ElementConfig{
		{Index: 0, Models: []model.ModelConfig{{ID: 0x1000, Vendor: model.VendorNone, Update: model.ConfigUpdate{Bindings: []uint16{1}}}}},
		{Index: 5, Models: []model.ModelConfig{{ID: 0x1000, Vendor: model.VendorNone}}},
	}
	net.On("Attach", mock.Anything, app, uint64(3)).Return(meshtest.NewRecorder(), configs, nil)

	s := NewSession(app, net)
	s.JoinComplete(3)
	require.NoError(t, s.Attach(context.Background()))
	assert.Equal(t, StateAttached, s.State())

	e, err := app.Element(0)
	require.NoError(t, err)
	m, err := e.Model(0x1000)
	require.NoError(t, err)
	assert.True(t, m.Config().Bound(1))
}

func TestSessionLeave(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	path := filepath.Join(t.TempDir(), "node.json")
	store := persistence.NewNodeStateStore(path)
	app, _ := lightNode(t)
	s := NewSession(app, net, WithStore(store))
	require.NoError(t, s.Start(startCtx(t)))

	require.NoError(t, s.Leave(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.Nil(t, app.Transport())

	st, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, st)

	assert.ErrorIs(t, s.Attach(context.Background()), ErrSessionState)
}

func TestSessionCloseIdempotent(t *testing.T) {
	app, _ := lightNode(t)
	s := NewSession(app, &mockNetwork{})
	s.Close()
	s.ServiceRemoved()
	assert.Equal(t, StateClosed, s.State())
}
