// Package echoserver implements a WebSocket backend that returns every frame it receives unchanged.
package echoserver

import (
	"net"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"github.com/sonirico/wsflow"
)

const controlWriteTimeout = time.Second

// Hooks observe the traffic of every echoed connection. Nil hooks are skipped.
type Hooks struct {
	OnConnect func()
	OnMessage func(messageType int, data []byte)
	OnClose   func(code int, text string)
}

// Handler serves the echo backend over net/http.
func Handler(logger wsflow.Logger, hooks Hooks) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	logger = logger.WithField("server", "echo_http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnf("cannot upgrade %s: %s", r.RemoteAddr, err)
			return
		}
		echo(logger, conn, hooks)
	})
}

// Server serves the echo backend over fasthttp.
type Server struct {
	addr     string
	logger   wsflow.Logger
	hooks    Hooks
	upgrader websocket.FastHTTPUpgrader
	srv      *fasthttp.Server
}

func NewServer(logger wsflow.Logger, addr string, hooks Hooks) *Server {
	s := &Server{
		addr:   addr,
		logger: logger.WithField("server", "echo_fasthttp"),
		hooks:  hooks,
		upgrader: websocket.FastHTTPUpgrader{
			CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
		},
	}
	s.srv = &fasthttp.Server{
		Name:    "wsflow-echo",
		Handler: s.handle,
	}
	return s
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !websocket.FastHTTPIsWebSocketUpgrade(ctx) {
		ctx.Error("websocket upgrade required", fasthttp.StatusBadRequest)
		return
	}

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		echo(s.logger, conn, s.hooks)
	})
	if err != nil {
		s.logger.Warnf("cannot upgrade %s: %s", ctx.RemoteAddr(), err)
	}
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("echo backend listening on %s", s.addr)
	return s.srv.ListenAndServe(s.addr)
}

// Serve accepts connections from ln until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Infof("echo backend listening on %s", ln.Addr())
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func echo(logger wsflow.Logger, conn *websocket.Conn, hooks Hooks) {
	defer conn.Close()

	logger = logger.WithField("remote", conn.RemoteAddr().String())
	logger.Debugln("connection accepted")

	if hooks.OnConnect != nil {
		hooks.OnConnect()
	}

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Debugf("close frame received: %d %s", code, text)
		if hooks.OnClose != nil {
			hooks.OnClose(code, text)
		}
		reply := websocket.FormatCloseMessage(code, "")
		if code == websocket.CloseNoStatusReceived {
			reply = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		}
		_ = conn.WriteControl(websocket.CloseMessage, reply, time.Now().Add(controlWriteTimeout))
		return nil
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("read ended: %s", err)
			}
			return
		}
		if hooks.OnMessage != nil {
			hooks.OnMessage(mt, data)
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			logger.Warnf("cannot echo frame: %s", err)
			return
		}
	}
}
