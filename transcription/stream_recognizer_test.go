package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sonirico/wsflow"
)

// speechService acknowledges every audio chunk with a partial result and answers
// CloseStream with a final result followed by a normal close.
type speechService struct {
	srv      *httptest.Server
	received atomic.Int64
}

func newSpeechService(t *testing.T) *speechService {
	t.Helper()

	s := &speechService{}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(ev streamEvent) {
			bts, _ := json.Marshal(ev)
			_ = conn.WriteMessage(websocket.TextMessage, bts)
		}

		send(streamEvent{Type: "speech_started"})
		send(streamEvent{Type: "rms", RmsDB: -10})

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				s.received.Add(int64(len(data)))
				send(streamEvent{Type: "partial", Text: "hello"})
				continue
			}
			if string(data) == closeStreamMessage {
				send(streamEvent{Type: "final", Alternatives: []string{"hello world", "yellow world"}})
				send(streamEvent{Type: "utterance_end"})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *speechService) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func bytesSource(data []byte) AudioSource {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func newTestLogger() wsflow.Logger {
	l, _ := logtest.NewNullLogger()
	return wsflow.NewLogrusLogger(l)
}

func TestStreamRecognizerRelaysTranscripts(t *testing.T) {
	service := newSpeechService(t)
	audio := bytes.Repeat([]byte{0x01, 0x02}, 1500)

	rec := NewStreamRecognizer(newTestLogger(), wsflow.Config{URL: service.url()},
		bytesSource(audio), Config{ChunkSize: 1024})
	require.True(t, rec.Available())

	m := NewManager(newTestLogger(), rec, Config{})
	defer m.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.StartRecording(ctx)

	require.Eventually(t, func() bool {
		s := m.State()
		return s.Transcript == "hello world" && !s.Recording
	}, 3*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, len(audio), service.received.Load())
	assert.Empty(t, m.State().ErrorMessage)
}

func TestStreamRecognizerReportsServiceErrors(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","code":8}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := NewStreamRecognizer(newTestLogger(), wsflow.Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")},
		bytesSource(nil), Config{})
	m := NewManager(newTestLogger(), rec, Config{})
	defer m.Destroy()

	m.StartRecording(context.Background())

	require.Eventually(t, func() bool {
		return m.State().ErrorMessage == ErrorRecognizerBusy.Message()
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, m.State().Recording)
}

func TestStreamRecognizerConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	rec := NewStreamRecognizer(newTestLogger(), wsflow.Config{URL: target, ConnectTimeout: time.Second},
		bytesSource(nil), Config{})
	m := NewManager(newTestLogger(), rec, Config{})
	defer m.Destroy()

	m.StartRecording(context.Background())

	require.Eventually(t, func() bool {
		return m.State().ErrorMessage == ErrorNetwork.Message()
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStreamRecognizerAudioFailure(t *testing.T) {
	service := newSpeechService(t)
	failing := func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("no microphone")
	}

	rec := NewStreamRecognizer(newTestLogger(), wsflow.Config{URL: service.url()}, failing, Config{})
	m := NewManager(newTestLogger(), rec, Config{})
	defer m.Destroy()

	m.StartRecording(context.Background())

	require.Eventually(t, func() bool {
		return m.State().ErrorMessage == ErrorAudio.Message()
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStreamRecognizerUnavailableWithoutSource(t *testing.T) {
	rec := NewStreamRecognizer(newTestLogger(), wsflow.Config{URL: "ws://localhost:1"}, nil, Config{})
	assert.False(t, rec.Available())

	m := NewManager(newTestLogger(), rec, Config{})
	m.StartRecording(context.Background())
	assert.Equal(t, msgUnavailable, m.State().ErrorMessage)
}

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{}
}

func (l *recordingListener) record(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) recorded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) OnReadyForSpeech()           { l.record("ready") }
func (l *recordingListener) OnBeginningOfSpeech()        { l.record("begin") }
func (l *recordingListener) OnRmsChanged(db float32)     { l.record(fmt.Sprintf("rms %.0f", db)) }
func (l *recordingListener) OnEndOfSpeech()              { l.record("end") }
func (l *recordingListener) OnError(code ErrorCode)      { l.record(fmt.Sprintf("error %d", code)) }
func (l *recordingListener) OnPartialResults(m []string) { l.record("partial " + strings.Join(m, "|")) }
func (l *recordingListener) OnResults(m []string)        { l.record("final " + strings.Join(m, "|")) }

// newMockedRecognizer returns a recognizer whose sessions consume seq, and a channel closed
// once the session announced the end of its audio.
func newMockedRecognizer(t *testing.T, seq iter.Seq2[wsflow.Message, error]) (*StreamRecognizer, <-chan struct{}) {
	t.Helper()

	streamClosed := make(chan struct{})
	var once sync.Once

	client := &wsflow.MockClient{}
	client.Mock.On("Open", mock.Anything).Return()
	client.Mock.On("Messages", mock.Anything).Return(seq)
	client.Mock.On("Send", closeStreamMessage).Return().Maybe().Run(func(mock.Arguments) {
		once.Do(func() { close(streamClosed) })
	})
	client.Mock.On("SendBinary", mock.Anything).Return().Maybe()
	client.Mock.On("Close").Return().Maybe()

	factory := func() wsflow.Client { return client }
	return newStreamRecognizer(newTestLogger(), factory, bytesSource(nil), Config{}), streamClosed
}

func TestStreamSessionMapsSequenceErrorToNetworkError(t *testing.T) {
	rec, _ := newMockedRecognizer(t, wsflow.MessagesOf(
		wsflow.MessageOrError{Err: errors.Wrap(wsflow.ErrConnectionClosed, "reset by peer")},
	))
	defer rec.Destroy()

	l := newRecordingListener()
	require.NoError(t, rec.StartListening(context.Background(), l))

	require.Eventually(t, func() bool {
		return len(l.recorded()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{fmt.Sprintf("error %d", ErrorNetwork)}, l.recorded())
}

func TestStreamSessionDispatchesEvents(t *testing.T) {
	rec, streamClosed := newMockedRecognizer(t, wsflow.MessagesOf(
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(wsflow.ConnectedNotification)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"speech_started"}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`not json`)},
		wsflow.MessageOrError{Message: wsflow.NewBinaryMessage([]byte{1})},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"rms","rms_db":-7}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"mystery"}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"partial","text":"pay"}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"final","alternatives":["pay now","play now"]}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"utterance_end"}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"error"}`)},
		wsflow.MessageOrError{Message: wsflow.NewTextMessage(`{"type":"error","code":7}`)},
	))
	defer rec.Destroy()

	l := newRecordingListener()
	require.NoError(t, rec.StartListening(context.Background(), l))

	want := []string{
		"ready",
		"begin",
		"rms -7",
		"partial pay",
		"final pay now|play now",
		"end",
		fmt.Sprintf("error %d", ErrorServer),
		fmt.Sprintf("error %d", ErrorNoMatch),
	}
	require.Eventually(t, func() bool {
		return len(l.recorded()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, l.recorded())

	select {
	case <-streamClosed:
	case <-time.After(time.Second):
		t.Fatal("end of audio was never announced")
	}
}

func TestStreamRecognizerUnavailableWithoutURL(t *testing.T) {
	rec := NewStreamRecognizer(newTestLogger(), wsflow.Config{}, bytesSource(nil), Config{})
	assert.False(t, rec.Available())

	err := rec.StartListening(context.Background(), newRecordingListener())
	assert.True(t, errors.Is(err, wsflow.ErrInvalidConfig))
}
