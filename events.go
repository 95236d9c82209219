package wsflow

type EventType int

const (
	// EventConnect fires once the handshake completed and the connection is open.
	EventConnect EventType = iota + 1
	// EventClose fires when the connection reached its terminal state without a transport error.
	EventClose
	// EventFailure fires when the connection could not be opened or broke while in flight.
	EventFailure
)

func (e EventType) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventClose:
		return "close"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is the payload handed to lifecycle listeners.
type Event struct {
	Type   EventType
	Code   int
	Reason string
	Err    error
}

type EventHandler func(Event)
