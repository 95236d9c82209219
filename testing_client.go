package wsflow

import (
	"context"
	"iter"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of Client for packages that consume flows.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Open(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockClient) Messages(ctx context.Context) iter.Seq2[Message, error] {
	args := m.Called(ctx)
	return args.Get(0).(iter.Seq2[Message, error])
}

func (m *MockClient) Send(text string) {
	m.Called(text)
}

func (m *MockClient) SendBinary(data []byte) {
	m.Called(data)
}

func (m *MockClient) Close() {
	m.Called()
}

func (m *MockClient) State() State {
	args := m.Called()
	return args.Get(0).(State)
}

func (m *MockClient) On(event EventType, handler EventHandler) {
	m.Called(event, handler)
}

// MessagesOf returns a sequence yielding the given pairs in order.
func MessagesOf(pairs ...MessageOrError) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for _, p := range pairs {
			if !yield(p.Message, p.Err) {
				return
			}
		}
	}
}

// MessageOrError is one element of a sequence built by MessagesOf.
type MessageOrError struct {
	Message Message
	Err     error
}
