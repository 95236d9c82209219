package wsflow

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	WsConnectionOptions struct {
		// WriteTimeout bounds every single frame write.
		WriteTimeout time.Duration
		// CloseGracePeriod is how long a locally initiated close waits for the peer's close
		// frame before the socket is dropped.
		CloseGracePeriod time.Duration
		// PingInterval enables active keep-alive when greater than zero.
		PingInterval time.Duration
		// KeepAliveMessageFactory builds the keep-alive frames. Defaults to an empty ping.
		KeepAliveMessageFactory KeepAliveMessageFactory
	}

	// WsConnection represents a WebSocket connection.
	// It implements the Connection interface.
	WsConnection struct {
		errAdapters              ErrorAdapters
		openConnectionParamsRepo openConnectionParamsRepo
		logger                   Logger
		dialer                   *websocket.Dialer
		listener                 Listener
		opts                     WsConnectionOptions

		mu           sync.Mutex
		conn         *websocket.Conn
		closing      bool
		remoteClosed bool
		closeCode    int
		closeText    string
		closeTimer   *time.Timer

		send            *queue[Message] // send messages to be sent over the wire
		closeChan       CloseChan
		releaseOnce     sync.Once
		closeFrameOnce  sync.Once
		finishOnce      sync.Once
		closeReason     error
		closeReasonOnce sync.Once
	}
)

var DefaultWsConnectionOptions = WsConnectionOptions{
	WriteTimeout:     10 * time.Second,
	CloseGracePeriod: 5 * time.Second,
}

func NewWebsocketConnection(
	dialer *websocket.Dialer,
	openParamsRepo openConnectionParamsRepo,
	logger Logger,
	listener Listener,
	errorHandlers ErrorAdapters,
	opts WsConnectionOptions,
) *WsConnection {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWsConnectionOptions.WriteTimeout
	}
	if opts.CloseGracePeriod <= 0 {
		opts.CloseGracePeriod = DefaultWsConnectionOptions.CloseGracePeriod
	}
	if opts.KeepAliveMessageFactory == nil {
		opts.KeepAliveMessageFactory = NewKeepAliveMessageFactory(PingMessage, func() []byte { return nil })
	}

	id := uuid.NewString()

	return &WsConnection{
		errAdapters:              errorHandlers,
		dialer:                   dialer,
		openConnectionParamsRepo: openParamsRepo,
		listener:                 listener,
		opts:                     opts,
		send:                     newQueue[Message](),
		closeChan:                make(CloseChan),
		logger:                   logger.WithField("net", "ws_connection").WithField("conn_id", id),
	}
}

func NewWebsocketFactory(
	logger Logger,
	dialer *websocket.Dialer,
	openConnectionParamsRepo openConnectionParamsRepo,
	errorHandlers ErrorAdapters,
	opts WsConnectionOptions,
) ConnectionFactory {
	return func(listener Listener) Connection {
		return NewWebsocketConnection(
			dialer,
			openConnectionParamsRepo,
			logger,
			listener,
			errorHandlers,
			opts,
		)
	}
}

// Write queues a message to be sent over the WebSocket connection.
func (w *WsConnection) Write(m Message) error {
	w.mu.Lock()
	open := w.conn != nil
	w.mu.Unlock()

	if !open {
		return ErrNotConnected
	}
	if !w.send.Push(m) {
		return ErrConnectionClosed
	}
	return nil
}

// Close starts the close handshake once every previously written message has been flushed.
// Calling it before Open completes defers the handshake until the socket is up.
func (w *WsConnection) Close(code int, reason string) {
	w.mu.Lock()
	if w.conn == nil {
		w.closing = true
		w.closeCode, w.closeText = code, reason
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.send.Push(NewCloseMessage(code, reason))
}

// Open dials the WebSocket server.
// This method is blocking and returns when the connection is successfully established or an error occurs.
func (w *WsConnection) Open(ctx context.Context) error {
	return w.start(ctx)
}

// CloseChan returns a channel that will be closed when the WebSocket connection is closed.
func (w *WsConnection) CloseChan() CloseChan {
	return w.closeChan
}

// CloseErr returns an error that explains why the WebSocket connection was closed.
// If the connection closed normally, CloseErr returns nil.
func (w *WsConnection) CloseErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeReason
}

func (w *WsConnection) start(ctx context.Context) error {
	p, err := w.openConnectionParamsRepo.Get(ctx)
	if err != nil {
		w.logger.Errorf("cannot get connection params due to %s", err)
		w.abort(err)
		return err
	}

	conn, resp, err := w.dialer.DialContext(ctx, p.URL.String(), p.Header)

	if err = w.handleDialError(conn, resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", p.URL.String(), err)
		if conn != nil {
			_ = conn.Close()
		}
		w.abort(err)
		return err
	}

	w.logger.Debugf("success opening connection to %s", p.URL.String())

	conn.SetPingHandler(w.replyPingWithPong)

	conn.SetPongHandler(func(string) error {
		w.logger.Debugln("<= [PONG]")
		return nil
	})

	conn.SetCloseHandler(w.handleRemoteClose)

	w.mu.Lock()
	w.conn = conn
	pending := w.closing
	code, text := w.closeCode, w.closeText
	w.closing = false
	w.mu.Unlock()

	w.listener.OnOpen(resp)

	go w.read()
	go w.write()

	if w.opts.PingInterval > 0 {
		ka := newActiveKeepAlive(w.logger, w.opts.PingInterval, w.opts.KeepAliveMessageFactory)
		go ka.run(w.send.Push, w.closeChan)
	}

	if pending {
		w.send.Push(NewCloseMessage(code, text))
	}

	return nil
}

func (w *WsConnection) read() {
	defer w.release()

	for {
		messageType, bts, err := w.conn.ReadMessage()
		if err != nil {
			w.handleReadError(err)
			return
		}
		// message types from ReadMessage are either binary or text
		switch messageType {
		case websocket.BinaryMessage:
			w.logger.Debugf("<= [BIN] %d bytes", len(bts))
			w.listener.OnMessage(NewBinaryMessage(bts))
		default:
			w.logger.Debugf("<= [TEXT] %s", string(bts))
			w.listener.OnMessage(NewTextMessage(string(bts)))
		}
	}
}

func (w *WsConnection) handleReadError(err error) {
	// A CloseError only means a clean close when the peer actually sent a close frame. An abrupt
	// drop is reported as a synthetic 1006 CloseError as well.
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && w.receivedCloseFrame() {
		w.finish(closeErr.Code, closeErr.Text, nil)
		return
	}

	if closing, code, text := w.closingState(); closing {
		// The socket was dropped on our side while the close handshake was in progress.
		w.logger.Debugf("read ended during close handshake: %s", err)
		w.finish(code, text, nil)
		return
	}

	w.logger.Errorf("error occurred on websocket read: %s", err)
	w.finish(0, "", errors.Wrap(
		ErrConnectionClosed,
		"error occurred on websocket read: "+err.Error(),
	))
}

func (w *WsConnection) write() {
	for {
		select {
		case <-w.closeChan:
			return
		case <-w.send.Ready():
			for {
				msg, ok := w.send.Pop()
				if !ok {
					break
				}
				w.writeMessage(msg)
			}
		}
	}
}

func (w *WsConnection) writeMessage(msg Message) {
	if closing, _, _ := w.closingState(); closing && msg.Type().IsData() {
		w.logger.Warnf("dropping %s message written after close", msg.Type())
		return
	}

	deadline := time.Now().Add(w.opts.WriteTimeout)

	var err error

	switch msg.Type() {
	case PingMessage:
		w.logger.Debugln("=> [PING]")
		err = w.conn.WriteControl(websocket.PingMessage, msg.Data(), deadline)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			err = nil
		}
	case PongMessage:
		w.logger.Debugln("=> [PONG]")
		err = w.conn.WriteControl(websocket.PongMessage, msg.Data(), deadline)
	case TextMessage:
		w.logger.Debugf("=> [TEXT] %s", msg.Data())
		_ = w.conn.SetWriteDeadline(deadline)
		err = w.conn.WriteMessage(websocket.TextMessage, msg.Data())
	case BinaryMessage:
		w.logger.Debugf("=> [BIN] %d bytes", len(msg.Data()))
		_ = w.conn.SetWriteDeadline(deadline)
		err = w.conn.WriteMessage(websocket.BinaryMessage, msg.Data())
	case CloseMessage:
		code := websocket.CloseNormalClosure
		if cm, ok := msg.(closeMessage); ok {
			code = cm.Code
		}
		w.writeCloseFrame(code, string(msg.Data()))
	}

	if err != nil {
		// The read loop observes the broken socket and reports it; writes only log.
		w.logger.Errorf("cannot write %s message: %s", msg.Type(), err)
	}
}

// handleRemoteClose runs on the read goroutine when the peer sends a close frame.
func (w *WsConnection) handleRemoteClose(code int, text string) error {
	w.logger.Debugf("<= [CLOSE] %d %s", code, text)
	w.mu.Lock()
	w.remoteClosed = true
	w.mu.Unlock()
	w.listener.OnClosing(code, text)
	w.writeCloseFrame(websocket.CloseNormalClosure, "")
	return nil
}

// writeCloseFrame transmits at most one close frame per connection, then gives the peer
// CloseGracePeriod to complete the handshake.
func (w *WsConnection) writeCloseFrame(code int, reason string) {
	w.closeFrameOnce.Do(func() {
		w.mu.Lock()
		w.closing = true
		w.closeCode, w.closeText = code, reason
		w.mu.Unlock()

		w.logger.Debugf("=> [CLOSE] %d %s", code, reason)
		deadline := time.Now().Add(w.opts.WriteTimeout)
		err := w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			w.logger.Warnf("cannot write close frame: %s", err)
			w.release()
			return
		}

		w.mu.Lock()
		w.closeTimer = time.AfterFunc(w.opts.CloseGracePeriod, w.release)
		w.mu.Unlock()
	})
}

func (w *WsConnection) receivedCloseFrame() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remoteClosed
}

func (w *WsConnection) closingState() (bool, int, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closing, w.closeCode, w.closeText
}

// finish reports the terminal outcome to the listener exactly once.
func (w *WsConnection) finish(code int, reason string, err error) {
	w.finishOnce.Do(func() {
		w.setCloseReason(err)
		if err != nil {
			w.listener.OnFailure(err)
			return
		}
		w.listener.OnClosed(code, reason)
	})
}

// abort ends a connection that never opened.
func (w *WsConnection) abort(err error) {
	w.finishOnce.Do(func() {
		w.setCloseReason(err)
	})
	w.release()
}

func (w *WsConnection) release() {
	w.releaseOnce.Do(func() {
		w.mu.Lock()
		conn := w.conn
		if w.closeTimer != nil {
			w.closeTimer.Stop()
		}
		w.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		w.send.Close()
		close(w.closeChan)
	})
}

func (w *WsConnection) setCloseReason(err error) {
	w.closeReasonOnce.Do(func() {
		w.mu.Lock()
		w.closeReason = err
		w.mu.Unlock()
	})
}

func (w *WsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) error {
	if w.errAdapters.OnDial != nil {
		return w.errAdapters.OnDial(conn, resp, err)
	}

	if err == nil {
		return nil
	}

	// 1. Check HTTP errors first
	var msg string

	if resp != nil {
		if resp.Body != nil {
			bts, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				msg = string(bts)
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.Wrap(ErrRateLimit, msg)
		}
	}

	// 2. Network errors
	return errors.Wrap(ErrCannotConnect, err.Error())
}
