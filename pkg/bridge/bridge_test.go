package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/meshmodel/internal/meshtest"
	"github.com/mash-protocol/meshmodel/pkg/codec"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Publish(topic string, qos byte, payload []byte) error {
	args := m.Called(topic, qos, payload)
	return args.Error(0)
}

func (m *mockClient) Subscribe(topic string, qos byte, h Handler) error {
	args := m.Called(topic, qos, h)
	return args.Error(0)
}

func (m *mockClient) Unsubscribe(topics ...string) error {
	args := m.Called(topics)
	return args.Error(0)
}

func (m *mockClient) Disconnect() {
	m.Called()
}

// testApp has a sensor-side element at 0x0100 and a switch element at
// 0x010D carrying an On/Off client.
func testApp(t *testing.T) (*model.Application, *meshtest.Recorder) {
	t.Helper()
	app := model.NewApplication(model.DefaultPath)
	require.NoError(t, app.AddElement(model.NewElement(0, 0x0100, nil)))
	sw := model.NewElement(1, 0x010D, nil)
	require.NoError(t, app.AddElement(sw))
	require.NoError(t, sw.AddModel(onoff.NewClient()))

	rec := meshtest.NewRecorder()
	app.Attach(rec)
	return app, rec
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		wantOn  bool
	}{
		{"on", `{"address": 256, "display": {"location": 269, "on": true}}`, nil, true},
		{"off by default", `{"address": 256, "display": {"location": 269}}`, nil, false},
		{"missing address", `{"display": {"location": 269, "on": true}}`, ErrNoAddress, false},
		{"missing display", `{"address": 256}`, ErrNoDisplay, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint16(256), *cmd.Address)
			assert.Equal(t, uint16(269), cmd.Display.Location)
			assert.Equal(t, tt.wantOn, cmd.Display.On)
		})
	}

	t.Run("not json", func(t *testing.T) {
		_, err := ParseCommand([]byte("on"))
		assert.Error(t, err)
	})
}

func TestUplinkJSON(t *testing.T) {
	up, err := NewUplink(0x0100, codec.EncodeOnOffStatus(1))
	require.NoError(t, err)

	data, err := json.Marshal(up)
	require.NoError(t, err)
	assert.JSONEq(t, `{"location": 256, "opcode": [130, 4], "parameters": [1]}`, string(data))

	var back Uplink
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, up, back)

	_, err = NewUplink(0x0100, nil)
	assert.ErrorIs(t, err, ErrNoOpcode)

	assert.Error(t, json.Unmarshal([]byte(`{"opcode": [300]}`), &back))
}

func TestUplinkTopic(t *testing.T) {
	assert.Equal(t, "sensor/0100", UplinkTopic("sensor", 0x0100))
	assert.Equal(t, "up/00ab", UplinkTopic("up", 0xab))
}

func qosPtr(q byte) *byte { return &q }

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "tcp://localhost:1883", QoS: qosPtr(3)}.Validate())
	assert.NoError(t, Config{Broker: "tcp://localhost:1883"}.Validate())
	assert.NoError(t, Config{Broker: "tcp://localhost:1883", QoS: qosPtr(0)}.Validate())

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultCommandTopic, cfg.CommandTopic)
	assert.Equal(t, DefaultUplinkPrefix, cfg.UplinkPrefix)
	require.NotNil(t, cfg.QoS)
	assert.Equal(t, byte(DefaultQoS), *cfg.QoS)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestConfigQoSZero(t *testing.T) {
	cfg := Config{QoS: qosPtr(0)}.withDefaults()
	assert.Equal(t, byte(0), cfg.qos())
	assert.Equal(t, byte(DefaultQoS), Config{}.qos())
}

func TestClientOptions(t *testing.T) {
	t.Run("GeneratedClientID", func(t *testing.T) {
		cfg := Config{Broker: "tcp://localhost:1883"}.withDefaults()
		opts := clientOptions(cfg)

		assert.True(t, strings.HasPrefix(opts.ClientID, "mesh-device-"), opts.ClientID)
		assert.Len(t, opts.ClientID, len("mesh-device-")+36)
		assert.True(t, opts.CleanSession, "a generated identity cannot resume a session")

		other := clientOptions(Config{Broker: "tcp://localhost:1883"}.withDefaults())
		assert.NotEqual(t, opts.ClientID, other.ClientID)
	})

	t.Run("ConfiguredClientID", func(t *testing.T) {
		cfg := Config{Broker: "tcp://localhost:1883", ClientID: "lamp-1", Username: "u", Password: "p"}.withDefaults()
		opts := clientOptions(cfg)

		assert.Equal(t, "lamp-1", opts.ClientID)
		assert.False(t, opts.CleanSession)
		assert.Equal(t, "u", opts.Username)
		assert.True(t, opts.AutoReconnect)
		assert.Equal(t, DefaultTimeout, opts.ConnectTimeout)
		require.Len(t, opts.Servers, 1)
		assert.Equal(t, "localhost:1883", opts.Servers[0].Host)
	})
}

func TestBridgeQoSZero(t *testing.T) {
	app, _ := testApp(t)
	client := &mockClient{}
	client.On("Subscribe", DefaultCommandTopic, byte(0), mock.Anything).Return(nil)
	client.On("Unsubscribe", []string{DefaultCommandTopic}).Return(nil)

	b := New(app, client, Config{QoS: qosPtr(0)}, nil)
	require.NoError(t, b.Start())
	b.Stop()
	client.AssertExpectations(t)
}

func TestBridgeUplink(t *testing.T) {
	app, _ := testApp(t)
	client := &mockClient{}
	client.On("Subscribe", DefaultCommandTopic, byte(DefaultQoS), mock.Anything).Return(nil)

	published := make(chan []byte, 1)
	client.On("Publish", "sensor/0200", byte(DefaultQoS), mock.Anything).
		Run(func(args mock.Arguments) { published <- args.Get(2).([]byte) }).
		Return(nil)
	client.On("Unsubscribe", []string{DefaultCommandTopic}).Return(nil)

	b := New(app, client, Config{}, nil)
	require.NoError(t, b.Start())

	require.NoError(t, app.Deliver(context.Background(), 0, model.Message{
		Source:      0x0200,
		Destination: model.NewAddress(0x0100),
		Payload:     codec.EncodeOnOffStatus(1),
	}))

	select {
	case data := <-published:
		assert.JSONEq(t, `{"location": 256, "opcode": [130, 4], "parameters": [1]}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("uplink not published")
	}

	b.Stop()
	b.Stop()
	client.AssertNumberOfCalls(t, "Unsubscribe", 1)

	// Deliveries after Stop are not forwarded.
	require.NoError(t, app.Deliver(context.Background(), 0, model.Message{
		Source:  0x0200,
		Payload: codec.EncodeOnOffStatus(0),
	}))
	client.AssertNumberOfCalls(t, "Publish", 1)
}

func TestBridgeCommand(t *testing.T) {
	app, rec := testApp(t)
	client := &mockClient{}

	var handler Handler
	client.On("Subscribe", DefaultCommandTopic, byte(DefaultQoS), mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(Handler) }).
		Return(nil)

	b := New(app, client, Config{KeyIndex: 2}, nil)
	require.NoError(t, b.Start())
	require.NotNil(t, handler)

	handler("command/inbox/app/device/sensor", []byte(`{"address": 256, "display": {"location": 269, "on": true}}`))
	require.True(t, rec.WaitFor(1, time.Second))

	sent := rec.Messages()[0]
	assert.Equal(t, uint16(0x0100), sent.Dst.Value())
	assert.Equal(t, uint16(2), sent.KeyIndex)
	assert.Equal(t, codec.EncodeOnOffSet(1, 0, true), sent.Payload)

	t.Run("other channel ignored", func(t *testing.T) {
		rec.Reset()
		handler("command/inbox/app/device/display", []byte(`{"address": 256, "display": {"location": 269, "on": true}}`))
		assert.Empty(t, rec.All())
	})

	t.Run("malformed ignored", func(t *testing.T) {
		rec.Reset()
		handler("command/inbox/app/device/sensor", []byte(`{"display": {}}`))
		assert.Empty(t, rec.All())
	})
}

func TestBridgeExecuteFallback(t *testing.T) {
	app, _ := testApp(t)
	b := New(app, &mockClient{}, Config{}, nil)

	// Unknown location falls back to element 0, which has no client.
	addr := uint16(0x0100)
	err := b.Execute(Command{Address: &addr, Display: &Display{Location: 0x0999, On: true}})
	assert.ErrorIs(t, err, ErrNoOnOffClient)
}

func TestBridgeStartErrors(t *testing.T) {
	app, _ := testApp(t)
	client := &mockClient{}
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("not authorized")).Once()
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	b := New(app, client, Config{}, nil)
	assert.Error(t, b.Start())
	b.Stop()

	require.NoError(t, b.Start())
	assert.ErrorIs(t, b.Start(), ErrAlreadyStarted)
}
