package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonirico/wsflow"
	"github.com/sonirico/wsflow/echoserver"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestChatEchoesStdinLines(t *testing.T) {
	l, _ := logtest.NewNullLogger()
	srv := httptest.NewServer(echoserver.Handler(wsflow.NewLogrusLogger(l), echoserver.Hooks{}))
	defer srv.Close()

	in, stdin := io.Pipe()
	out := &syncBuffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errC := make(chan error, 1)
	go func() {
		errC <- newApp(in, out).command().Run(ctx,
			[]string{"wsflow", "--log-level", "error", "chat", "--url", wsURL(srv.URL)})
	}()

	_, err := io.WriteString(stdin, "hello\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return out.String() == wsflow.ConnectedNotification+"\nhello\n"
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, stdin.Close())

	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("chat did not return after stdin was closed")
	}
}

func TestChatReportsConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := wsURL(srv.URL)
	srv.Close()

	err := newApp(strings.NewReader(""), io.Discard).command().Run(context.Background(),
		[]string{"wsflow", "--log-level", "panic", "chat", "--url", target})

	assert.True(t, errors.Is(err, wsflow.ErrCannotConnect), "got %v", err)
}

func TestTranscribePrintsFinalTranscript(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"partial","text":"send"}`))
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"final","alternatives":["send the invoice"]}`))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		}
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "speech.raw")
	require.NoError(t, os.WriteFile(audio, bytes.Repeat([]byte{0x7f}, 5000), 0o600))

	out := &syncBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newApp(strings.NewReader(""), out).command().Run(ctx,
		[]string{"wsflow", "--log-level", "error", "transcribe", "--url", wsURL(srv.URL), "--file", audio})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "... send\n")
	assert.True(t, strings.HasSuffix(out.String(), "\nsend the invoice\n"), out.String())
}

func TestTranscribeRequiresSpeechURL(t *testing.T) {
	err := newApp(strings.NewReader(""), io.Discard).command().Run(context.Background(),
		[]string{"wsflow", "--log-level", "error", "transcribe", "--file", "speech.raw"})

	assert.True(t, errors.Is(err, wsflow.ErrInvalidConfig), "got %v", err)
}
