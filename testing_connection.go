package wsflow

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockConnection struct {
	mock.Mock

	listener Listener
	closeC   CloseChan
}

func newMockConnection() *mockConnection {
	return &mockConnection{closeC: make(CloseChan)}
}

func (m *mockConnection) factory() ConnectionFactory {
	return func(l Listener) Connection {
		m.listener = l
		return m
	}
}

func (m *mockConnection) Open(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockConnection) Write(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *mockConnection) Close(code int, reason string) {
	m.Called(code, reason)
}

func (m *mockConnection) CloseChan() CloseChan {
	return m.closeC
}

func (m *mockConnection) CloseErr() error {
	return nil
}
