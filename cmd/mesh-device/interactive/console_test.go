package interactive

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/meshmodel/internal/meshtest"
	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/mesh"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
	"github.com/mash-protocol/meshmodel/pkg/sensor"
)

type pubCall struct {
	element uint8
	modelID uint16
	vendor  uint16
	dst     model.Address
	period  time.Duration
}

type fakeNode struct {
	app    *model.Application
	board  *sensor.Board
	onoff  map[uint8]*onoff.Client
	sensor map[uint8]*sensor.Client
	pubs   []pubCall
	pubErr error
}

func (n *fakeNode) Application() *model.Application { return n.app }
func (n *fakeNode) Session() *mesh.Session          { return nil }
func (n *fakeNode) Board() *sensor.Board            { return n.board }

func (n *fakeNode) OnOffClient(element uint8) (*onoff.Client, bool) {
	c, ok := n.onoff[element]
	return c, ok
}

func (n *fakeNode) SensorClient(element uint8) (*sensor.Client, bool) {
	c, ok := n.sensor[element]
	return c, ok
}

func (n *fakeNode) Address(element uint8) (uint16, error) {
	return 0x0200 + uint16(element), nil
}

func (n *fakeNode) SetPublication(element uint8, modelID, vendor uint16, dst model.Address, period time.Duration) error {
	n.pubs = append(n.pubs, pubCall{element, modelID, vendor, dst, period})
	return n.pubErr
}

type fakeSim struct {
	running  bool
	interval time.Duration
}

func (s *fakeSim) Start(d time.Duration) error {
	s.running, s.interval = true, d
	return nil
}

func (s *fakeSim) Stop()         { s.running = false }
func (s *fakeSim) Running() bool { return s.running }

func newTestConsole(t *testing.T) (*Console, *fakeNode, *meshtest.Recorder, *bytes.Buffer) {
	t.Helper()
	node := &fakeNode{
		app:    model.NewApplication(model.DefaultPath),
		board:  sensor.NewBoard(sensor.DefaultBoardState()),
		onoff:  make(map[uint8]*onoff.Client),
		sensor: make(map[uint8]*sensor.Client),
	}

	e0 := model.NewElement(0, 0x0100, nil)
	require.NoError(t, node.app.AddElement(e0))
	require.NoError(t, e0.AddModel(onoff.NewServer()))
	sc := sensor.NewClient()
	require.NoError(t, e0.AddModel(sc))
	node.sensor[0] = sc

	for i := uint8(1); i <= 2; i++ {
		e := model.NewElement(i, 0x010C+uint16(i), nil)
		require.NoError(t, node.app.AddElement(e))
		c := onoff.NewClient()
		require.NoError(t, e.AddModel(c))
		node.onoff[i] = c
	}

	rec := meshtest.NewRecorder()
	node.app.Attach(rec)

	var out bytes.Buffer
	c := newConsole(node, &fakeSim{}, 5*time.Second, &out)
	return c, node, rec, &out
}

func TestConsoleDefaults(t *testing.T) {
	c, _, _, _ := newTestConsole(t)
	assert.Equal(t, uint16(0x0200), c.dst.Value())
	assert.Equal(t, uint8(1), c.element)
	assert.Equal(t, uint8(0), c.sensorElement)
	assert.Zero(t, c.appKey)
}

func TestConsoleOnOff(t *testing.T) {
	c, _, rec, out := newTestConsole(t)

	t.Run("set", func(t *testing.T) {
		assert.True(t, c.Execute("set on"))
		require.True(t, rec.WaitFor(1, time.Second))
		sent := rec.Messages()[0]
		assert.Equal(t, codec.EncodeOnOffSet(1, 0, true), sent.Payload)
		assert.Equal(t, uint16(0x0200), sent.Dst.Value())
		assert.Equal(t, "/simulator/ele01", sent.Path)
		assert.Contains(t, out.String(), "tid 0")
	})

	t.Run("repeat keeps tid", func(t *testing.T) {
		rec.Reset()
		assert.True(t, c.Execute("repeat"))
		require.True(t, rec.WaitFor(1, time.Second))
		assert.Equal(t, codec.EncodeOnOffSet(1, 0, true), rec.Messages()[0].Payload)
	})

	t.Run("unack on other element", func(t *testing.T) {
		rec.Reset()
		assert.True(t, c.Execute("element 2"))
		assert.True(t, c.Execute("dest c000"))
		assert.True(t, c.Execute("appkey 3"))
		assert.True(t, c.Execute("unack off"))
		require.True(t, rec.WaitFor(1, time.Second))
		sent := rec.Messages()[0]
		assert.Equal(t, codec.EncodeOnOffSet(0, 0, false), sent.Payload)
		assert.Equal(t, uint16(0xc000), sent.Dst.Value())
		assert.Equal(t, uint16(3), sent.KeyIndex)
		assert.Equal(t, "/simulator/ele02", sent.Path)
	})

	t.Run("get", func(t *testing.T) {
		rec.Reset()
		assert.True(t, c.Execute("get"))
		require.True(t, rec.WaitFor(1, time.Second))
		assert.Equal(t, codec.EncodeOnOffGet(), rec.Messages()[0].Payload)
	})

	t.Run("invalid input", func(t *testing.T) {
		rec.Reset()
		out.Reset()
		c.Execute("set maybe")
		c.Execute("element 0")
		c.Execute("dest zz")
		c.Execute("appkey 99999")
		c.Execute("frobnicate")
		assert.Empty(t, rec.All())
		assert.Contains(t, out.String(), "Invalid state")
		assert.Contains(t, out.String(), "has no On/Off client")
		assert.Contains(t, out.String(), "Invalid address")
		assert.Contains(t, out.String(), "Invalid key index")
		assert.Contains(t, out.String(), "Unknown command")
		assert.Equal(t, uint8(2), c.element)
	})
}

func TestConsoleRepeatNothing(t *testing.T) {
	c, _, rec, out := newTestConsole(t)
	c.Execute("repeat")
	assert.Contains(t, out.String(), "Nothing to repeat")
	assert.Empty(t, rec.All())
}

func TestConsoleSensor(t *testing.T) {
	c, _, rec, _ := newTestConsole(t)
	c.Execute("sensor 4f")
	require.True(t, rec.WaitFor(1, time.Second))
	assert.Equal(t, codec.EncodeSensorGet(0x004f), rec.Messages()[0].Payload)
}

func TestConsolePub(t *testing.T) {
	c, node, _, out := newTestConsole(t)

	c.Execute("pub 0 1100 10s c000")
	c.Execute("pub 0 05f1:0001 0s")
	require.Len(t, node.pubs, 2)
	assert.Equal(t, pubCall{0, 0x1100, model.VendorNone, model.NewAddress(0xc000), 10 * time.Second}, node.pubs[0])
	assert.Equal(t, pubCall{0, 0x0001, 0x05f1, model.NewAddress(model.AllNodesAddress), 0}, node.pubs[1])

	node.pubErr = errors.New("unknown model")
	out.Reset()
	c.Execute("pub 0 1234 1s")
	assert.Contains(t, out.String(), "Publication not set")

	out.Reset()
	c.Execute("pub 0 1100")
	assert.Contains(t, out.String(), "Usage")
}

func TestConsoleSim(t *testing.T) {
	c, _, _, out := newTestConsole(t)
	sim := c.sim.(*fakeSim)

	c.Execute("sim start")
	assert.True(t, sim.running)
	assert.Equal(t, 5*time.Second, sim.interval)
	c.Execute("sim start")
	assert.Contains(t, out.String(), "already running")
	c.Execute("sim stop")
	assert.False(t, sim.running)
}

func TestConsoleStatusAndBoard(t *testing.T) {
	c, _, _, out := newTestConsole(t)
	c.Execute("status")
	assert.Contains(t, out.String(), "Element 1  addr 0201  location 0x010d")
	assert.Contains(t, out.String(), "1102")

	out.Reset()
	c.Execute("board")
	assert.Contains(t, out.String(), "Battery:        0x23")
}

func TestConsoleQuit(t *testing.T) {
	c, _, _, _ := newTestConsole(t)
	assert.True(t, c.Execute(""))
	assert.False(t, c.Execute("quit"))
}

func TestParseModelID(t *testing.T) {
	id, vendor, err := parseModelID("1000")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1000), id)
	assert.Equal(t, model.VendorNone, vendor)

	id, vendor, err = parseModelID("05f1:0001")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0001), id)
	assert.Equal(t, uint16(0x05f1), vendor)

	_, _, err = parseModelID("xyz")
	assert.Error(t, err)
}
