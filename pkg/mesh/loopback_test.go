package mesh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
)

type joinResult struct {
	token  uint64
	reason string
}

type chanHandler chan joinResult

func (h chanHandler) JoinComplete(token uint64) { h <- joinResult{token: token} }
func (h chanHandler) JoinFailed(reason string)  { h <- joinResult{reason: reason} }

// lightNode is a single-element application with an On/Off server.
func lightNode(t *testing.T) (*model.Application, *onoff.Server) {
	t.Helper()
	app := model.NewApplication("/light")
	e := model.NewElement(0, 0x0100, nil)
	require.NoError(t, app.AddElement(e))
	srv := onoff.NewServer()
	require.NoError(t, e.AddModel(srv))
	return app, srv
}

// switchNode is a two-element application with an On/Off client on each.
func switchNode(t *testing.T, onStatus onoff.StatusHandler) (*model.Application, []*onoff.Client) {
	t.Helper()
	app := model.NewApplication("/switch")
	var clients []*onoff.Client
	for i := range uint8(2) {
		e := model.NewElement(i, 0x010D+uint16(i), nil)
		require.NoError(t, app.AddElement(e))
		c := onoff.NewClient(onoff.WithStatusHandler(onStatus))
		require.NoError(t, e.AddModel(c))
		clients = append(clients, c)
	}
	return app, clients
}

func joinAndAttach(t *testing.T, net *Loopback, app *model.Application) uint64 {
	t.Helper()
	h := make(chanHandler, 1)
	require.NoError(t, net.Join(context.Background(), app, uuid.New(), h))

	var res joinResult
	select {
	case res = <-h:
	case <-time.After(time.Second):
		t.Fatal("JoinComplete not reported")
	}
	require.NotZero(t, res.token)

	tr, configs, err := net.Attach(context.Background(), app, res.token)
	require.NoError(t, err)
	app.Attach(tr)
	require.NoError(t, app.ApplyElementConfigs(configs))
	return res.token
}

func flush(t *testing.T, net *Loopback) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, net.Flush(ctx))
}

func TestLoopbackJoin(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	light, _ := lightNode(t)
	sw, _ := switchNode(t, nil)

	lightToken := joinAndAttach(t, net, light)
	swToken := joinAndAttach(t, net, sw)

	addr, err := net.Address(lightToken, 0)
	require.NoError(t, err)
	assert.Equal(t, FirstUnicastAddress, addr)

	addr, err = net.Address(swToken, 1)
	require.NoError(t, err)
	assert.Equal(t, FirstUnicastAddress+2, addr)

	_, err = net.Address(swToken, 2)
	assert.ErrorIs(t, err, model.ErrElementNotFound)

	_, err = net.Address(42, 0)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestLoopbackJoinDuplicateUUID(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	app, _ := lightNode(t)
	id := uuid.New()
	h := make(chanHandler, 2)
	require.NoError(t, net.Join(context.Background(), app, id, h))
	err := net.Join(context.Background(), app, id, h)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestLoopbackAttachDefaultBindings(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	app, srv := lightNode(t)
	joinAndAttach(t, net, app)

	assert.True(t, srv.Config().Bound(0))
	assert.False(t, srv.Config().Bound(1))

	_, _, err := net.Attach(context.Background(), app, 7)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestLoopbackUnicastRoundTrip(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	statuses := make(chan onoff.State, 4)
	light, srv := lightNode(t)
	sw, clients := switchNode(t, func(_ uint16, s onoff.State) { statuses <- s })

	lightToken := joinAndAttach(t, net, light)
	joinAndAttach(t, net, sw)

	dst, err := net.Address(lightToken, 0)
	require.NoError(t, err)

	clients[0].SetState(model.NewAddress(dst), 0, onoff.On)

	select {
	case s := <-statuses:
		assert.Equal(t, onoff.On, s)
	case <-time.After(time.Second):
		t.Fatal("no Status received")
	}
	assert.Equal(t, onoff.On, srv.State())
}

func TestLoopbackNoRoute(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	sw, _ := switchNode(t, nil)
	joinAndAttach(t, net, sw)

	results := make(chan error, 1)
	tr := sw.Transport()
	require.NotNil(t, tr)
	tr.Send(sw.Elements()[0].Path(), model.NewAddress(0x0700), 0, model.SendOptions{}, []byte{0x82, 0x01}, func(err error) {
		results <- err
	})

	select {
	case err := <-results:
		assert.ErrorIs(t, err, model.ErrNoRoute)
	case <-time.After(time.Second):
		t.Fatal("send result not reported")
	}
}

func TestLoopbackGroupDelivery(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	light, srv := lightNode(t)
	sw, clients := switchNode(t, nil)
	lightToken := joinAndAttach(t, net, light)
	joinAndAttach(t, net, sw)

	group := model.NewAddress(0xc000)
	require.NoError(t, net.UpdateModelConfig(lightToken, 0, model.ModelConfig{
		ID:     onoff.ServerModelID,
		Vendor: model.VendorNone,
		Update: model.ConfigUpdate{Subscriptions: []model.Address{group}},
	}))
	flush(t, net)
	require.True(t, srv.Config().Subscribed(group))

	clients[1].SetStateUnacknowledged(group, 0, onoff.On)
	flush(t, net)
	assert.Equal(t, onoff.On, srv.State())

	clients[1].SetStateUnacknowledged(model.NewAddress(0xc001), 0, onoff.Off)
	flush(t, net)
	assert.Equal(t, onoff.On, srv.State(), "unsubscribed group must not reach the server")
}

func TestLoopbackPublication(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	statuses := make(chan uint16, 4)
	light, srv := lightNode(t)
	sw, _ := switchNode(t, func(src uint16, _ onoff.State) { statuses <- src })
	joinAndAttach(t, net, light)
	joinAndAttach(t, net, sw)

	srv.Publish()

	// Without a publication address the status reaches every element of
	// the other node.
	for range 2 {
		select {
		case src := <-statuses:
			assert.Equal(t, FirstUnicastAddress, src)
		case <-time.After(time.Second):
			t.Fatal("publication not delivered")
		}
	}
}

func TestLoopbackClose(t *testing.T) {
	net := NewLoopback(nil)
	app, _ := lightNode(t)
	joinAndAttach(t, net, app)
	tr := app.Transport()

	net.Close()
	net.Close()

	results := make(chan error, 1)
	tr.Send(app.Path(), model.NewAddress(FirstUnicastAddress), 0, model.SendOptions{}, []byte{0x82, 0x01}, func(err error) {
		results <- err
	})
	select {
	case err := <-results:
		assert.True(t, errors.Is(err, ErrNetworkClosed))
	case <-time.After(time.Second):
		t.Fatal("closed network did not report")
	}

	assert.ErrorIs(t, net.Flush(context.Background()), ErrNetworkClosed)
	assert.ErrorIs(t, net.Join(context.Background(), app, uuid.New(), make(chanHandler, 1)), ErrNetworkClosed)
}

func TestLoopbackLeave(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	app, _ := lightNode(t)
	token := joinAndAttach(t, net, app)

	require.NoError(t, net.Leave(context.Background(), token))
	assert.ErrorIs(t, net.Leave(context.Background(), token), ErrUnknownToken)
}

func TestLoopbackPublicationAddress(t *testing.T) {
	net := NewLoopback(nil)
	defer net.Close()

	statuses := make(chan uint16, 4)
	light, srv := lightNode(t)
	sw, _ := switchNode(t, func(src uint16, _ onoff.State) { statuses <- src })
	lightToken := joinAndAttach(t, net, light)
	swToken := joinAndAttach(t, net, sw)

	group := model.NewAddress(0xc000)
	require.NoError(t, net.SetPublication(lightToken, 0, onoff.ServerModelID, model.VendorNone, group, 0))
	require.NoError(t, net.UpdateModelConfig(swToken, 1, model.ModelConfig{
		ID:     onoff.ClientModelID,
		Vendor: model.VendorNone,
		Update: model.ConfigUpdate{Subscriptions: []model.Address{group}},
	}))
	flush(t, net)

	srv.Publish()
	flush(t, net)

	require.Len(t, statuses, 1)
	assert.Equal(t, FirstUnicastAddress, <-statuses)
	assert.Zero(t, srv.PublicationPeriod())
}
