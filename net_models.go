package wsflow

import (
	"context"
	"net/http"
)

type (
	CloseChan chan struct{}

	// Listener receives the events of a single connection. Implementations are called from the
	// connection's own goroutines and must return immediately.
	Listener interface {
		// OnOpen is called once the handshake succeeded.
		OnOpen(resp *http.Response)
		// OnMessage is called for every inbound text or binary frame, in receipt order.
		OnMessage(m Message)
		// OnClosing is called when the remote peer sent a close frame.
		OnClosing(code int, reason string)
		// OnClosed is called once the close handshake finished, whichever side started it.
		OnClosed(code int, reason string)
		// OnFailure is called when the connection could not be opened or broke while in flight.
		OnFailure(err error)
	}

	// Connection is a single outbound socket.
	Connection interface {
		// Open dials the remote end. It blocks until the handshake completed or failed; all later
		// activity is reported to the Listener the connection was built with.
		Open(ctx context.Context) error
		// Write queues m for transmission. It never blocks.
		Write(m Message) error
		// Close starts the close handshake with the given code and reason. Only the first call
		// transmits a close frame.
		Close(code int, reason string)
		// CloseChan is closed once the underlying socket is released.
		CloseChan() CloseChan
		// CloseErr explains why the connection ended, nil for a clean close.
		CloseErr() error
	}

	ConnectionFactory func(listener Listener) Connection
)
