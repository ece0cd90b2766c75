package model

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockTransport struct{ mock.Mock }

func (m *mockTransport) Send(path string, dst Address, keyIndex uint16, opts SendOptions, payload []byte, done ResultFunc) {
	args := m.Called(path, dst, keyIndex, opts, payload)
	if done != nil {
		go done(args.Error(0))
	}
}

func (m *mockTransport) Publish(path string, modelID uint16, opts PublishOptions, payload []byte, done ResultFunc) {
	args := m.Called(path, modelID, opts, payload)
	if done != nil {
		go done(args.Error(0))
	}
}

// testModel records what it receives.
type testModel struct {
	*Base
	got []Message
}

func newTestModel(id uint16, opts ...Option) *testModel {
	return &testModel{Base: NewBase(id, opts...)}
}

func (m *testModel) ProcessMessage(_ context.Context, msg Message) {
	m.got = append(m.got, msg)
}
