package wsflow

import (
	"context"
	"iter"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/fasthttp/websocket"
)

const (
	// ConnectedNotification is the text of the synthetic first message of every successfully opened flow.
	ConnectedNotification = "Connected to WebSocket server"

	closedByClient = "Closed by client"
)

// delivery is one element of the inbound queue: a message or the terminal signal.
type delivery struct {
	msg Message
	err error
	end bool
}

// Flow owns exactly one outbound connection and turns its callbacks into a lazily consumed
// message sequence. Nothing it does blocks the caller: Open dials in the background, Send and
// Close only queue work for the connection goroutines.
type Flow struct {
	logger            Logger
	connectionFactory ConnectionFactory
	emitter           *EventEmitterCallback[EventType, Event]
	inbox             *queue[delivery]

	mu    sync.Mutex
	state State
	conn  Connection

	subscribed    atomic.Bool
	closeOnce     sync.Once
	terminateOnce sync.Once
}

func NewFlow(logger Logger, connectionFactory ConnectionFactory) *Flow {
	return &Flow{
		logger:            logger.WithField("type", "flow"),
		connectionFactory: connectionFactory,
		emitter:           NewEventEmitter[EventType, Event](),
		inbox:             newQueue[delivery](),
		conn:              noopConnection{},
	}
}

func NewFlowFactory(logger Logger, connectionFactory ConnectionFactory) ClientFactory {
	return func() Client {
		return NewFlow(logger, connectionFactory)
	}
}

// Open starts connecting in the background. Failures are logged and end the message
// sequence with an error; they are never returned. Cancelling ctx closes the connection.
// Only the first call has any effect.
func (f *Flow) Open(ctx context.Context) {
	f.mu.Lock()
	if f.state != StateUnopened {
		state := f.state
		f.mu.Unlock()
		f.logger.Warnf("open ignored, flow is %s", state)
		return
	}
	f.state = StateConnecting
	conn := f.connectionFactory(flowListener{f})
	f.conn = conn
	f.mu.Unlock()

	go f.connect(ctx, conn)
}

func (f *Flow) connect(ctx context.Context, conn Connection) {
	if err := conn.Open(ctx); err != nil {
		f.logger.Errorf("cannot open connection: %s", err)
		f.fail(err)
		return
	}

	select {
	case <-ctx.Done():
		f.logger.Debugf("context done, closing: %s", ctx.Err())
		f.Close()
	case <-conn.CloseChan():
		if err := conn.CloseErr(); err != nil {
			f.logger.Debugf("connection released: %s", err)
			return
		}
		f.logger.Debugln("connection released")
	}
}

// Messages returns the inbound message sequence. The first element of a successfully opened
// flow is a text message with ConnectedNotification, followed by every inbound frame in
// receipt order. A clean close ends the sequence; a transport failure yields a single error
// and ends it. Only one subscriber is allowed; whenever that subscriber stops iterating,
// the flow is closed.
func (f *Flow) Messages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		if !f.subscribed.CompareAndSwap(false, true) {
			yield(nil, ErrAlreadySubscribed)
			return
		}

		defer f.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-f.inbox.Ready():
			}

			for {
				d, ok := f.inbox.Pop()
				if !ok {
					break
				}
				if d.end {
					if d.err != nil {
						yield(nil, d.err)
					}
					return
				}
				if !yield(d.msg, nil) {
					return
				}
			}
		}
	}
}

// Send queues a text frame. It is dropped, with a warning, unless the flow is open.
func (f *Flow) Send(text string) {
	f.write(NewTextMessage(text))
}

// SendBinary queues a binary frame with the same delivery rules as Send.
func (f *Flow) SendBinary(data []byte) {
	f.write(NewBinaryMessage(data))
}

func (f *Flow) write(m Message) {
	f.mu.Lock()
	state, conn := f.state, f.conn
	f.mu.Unlock()

	if state != StateOpen {
		// TODO: decide whether messages sent while connecting should be buffered instead of dropped.
		f.logger.Warnf("flow is %s, dropping %s message", state, m.Type())
		return
	}

	if err := conn.Write(m); err != nil {
		f.logger.Errorf("cannot send %s message: %s", m.Type(), err)
	}
}

// Close requests a graceful shutdown with code 1000 and ends the message sequence.
// It is safe to call in any state and any number of times.
func (f *Flow) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		prev, conn := f.state, f.conn
		f.state = StateClosed
		f.mu.Unlock()

		switch prev {
		case StateConnecting, StateOpen:
			f.logger.Debugf("closing %s connection", prev)
			conn.Close(websocket.CloseNormalClosure, closedByClient)
		}

		f.terminate(delivery{end: true}, Event{
			Type:   EventClose,
			Code:   websocket.CloseNormalClosure,
			Reason: closedByClient,
		})
	})
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// On registers handler for lifecycle events of this flow.
func (f *Flow) On(event EventType, handler EventHandler) {
	f.emitter.On(event, callback[Event](handler))
}

func (f *Flow) fail(err error) {
	f.mu.Lock()
	f.state = StateClosed
	f.mu.Unlock()

	f.terminate(delivery{end: true, err: err}, Event{Type: EventFailure, Err: err})
}

// terminate notifies listeners and then enqueues the terminal signal, once.
func (f *Flow) terminate(d delivery, ev Event) {
	f.terminateOnce.Do(func() {
		f.emitter.Emit(ev.Type, ev)
		f.inbox.Push(d)
		f.inbox.Close()
	})
}

// flowListener receives connection callbacks. Every method only updates state and queues;
// none of them blocks the connection goroutines.
type flowListener struct {
	f *Flow
}

func (l flowListener) OnOpen(*http.Response) {
	f := l.f

	f.mu.Lock()
	if f.state != StateConnecting {
		f.mu.Unlock()
		return
	}
	f.state = StateOpen
	f.mu.Unlock()

	f.logger.Infoln("websocket connected")
	f.inbox.Push(delivery{msg: NewTextMessage(ConnectedNotification)})
	f.emitter.Emit(EventConnect, Event{Type: EventConnect})
}

func (l flowListener) OnMessage(m Message) {
	if !m.Type().IsData() {
		return
	}
	if !l.f.inbox.Push(delivery{msg: m}) {
		l.f.logger.Debugf("flow is closed, discarding inbound %s", m)
	}
}

func (l flowListener) OnClosing(code int, reason string) {
	l.f.logger.Infof("websocket closing: %d - %s", code, reason)
}

func (l flowListener) OnClosed(code int, reason string) {
	f := l.f

	f.mu.Lock()
	f.state = StateClosed
	f.mu.Unlock()

	f.terminate(delivery{end: true}, Event{Type: EventClose, Code: code, Reason: reason})
}

func (l flowListener) OnFailure(err error) {
	l.f.logger.Errorf("websocket failure: %s", err)
	l.f.fail(err)
}
