package wsflow

import (
	"context"
	"iter"
)

type (
	// Client is the interface that defines the behavior of a client: a single outbound connection
	// whose inbound frames are consumed as a sequence.
	Client interface {
		// Open starts establishing the connection and returns immediately
		Open(ctx context.Context)
		// Messages returns the single-subscriber sequence of inbound messages
		Messages(ctx context.Context) iter.Seq2[Message, error]
		// Send sends a text message to the server
		Send(text string)
		// SendBinary sends a binary message to the server
		SendBinary(data []byte)
		// Close closes the connection with the server
		Close()
		// State returns the current lifecycle state
		State() State
		// On registers a lifecycle listener
		On(event EventType, handler EventHandler)
	}

	ClientFactory func() Client
)

type State int32

const (
	StateUnopened State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
