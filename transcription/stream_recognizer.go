package transcription

import (
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/sonirico/wsflow"
)

const closeStreamMessage = `{"type":"CloseStream"}`

// AudioSource opens the audio of one session.
type AudioSource func(ctx context.Context) (io.ReadCloser, error)

// streamEvent is one JSON message sent by the speech service.
type streamEvent struct {
	Type         string   `json:"type"`
	Text         string   `json:"text"`
	Alternatives []string `json:"alternatives"`
	Code         int      `json:"code"`
	RmsDB        float32  `json:"rms_db"`
}

func (e streamEvent) matches() []string {
	if len(e.Alternatives) > 0 {
		return e.Alternatives
	}
	if e.Text != "" {
		return []string{e.Text}
	}
	return nil
}

// StreamRecognizer is a Recognizer backed by a streaming speech service reached over a
// wsflow.Flow. Audio is streamed as binary frames; results come back as JSON text frames.
type StreamRecognizer struct {
	logger    wsflow.Logger
	source    AudioSource
	chunkSize int
	newFlow   wsflow.ClientFactory

	mu      sync.Mutex
	session *streamSession
}

// NewStreamRecognizer connects every session to flowCfg.URL. The recognizer is unavailable
// when that URL is empty or invalid.
func NewStreamRecognizer(
	logger wsflow.Logger,
	flowCfg wsflow.Config,
	source AudioSource,
	cfg Config,
) *StreamRecognizer {
	logger = logger.WithField("type", "stream_recognizer")

	var newFlow wsflow.ClientFactory
	if flowCfg.URL == "" {
		logger.Warnln("no speech service url configured")
	} else if connFactory, err := wsflow.NewConnectionFactoryFromConfig(logger, flowCfg); err != nil {
		logger.Errorf("cannot configure speech service: %s", err)
	} else {
		newFlow = wsflow.NewFlowFactory(logger, connFactory)
	}

	return newStreamRecognizer(logger, newFlow, source, cfg)
}

func newStreamRecognizer(
	logger wsflow.Logger,
	newFlow wsflow.ClientFactory,
	source AudioSource,
	cfg Config,
) *StreamRecognizer {
	return &StreamRecognizer{
		logger:    logger,
		source:    source,
		chunkSize: cfg.WithDefaults().ChunkSize,
		newFlow:   newFlow,
	}
}

func (r *StreamRecognizer) Available() bool {
	return r.source != nil && r.newFlow != nil
}

// StartListening replaces any running session with a new one.
func (r *StreamRecognizer) StartListening(ctx context.Context, l Listener) error {
	if r.newFlow == nil {
		return errors.Wrap(wsflow.ErrInvalidConfig, "speech service is not configured")
	}
	flow := r.newFlow()

	s := &streamSession{
		logger:    r.logger,
		flow:      flow,
		source:    r.source,
		chunkSize: r.chunkSize,
		listener:  l,
		stop:      make(chan struct{}),
	}

	r.mu.Lock()
	prev := r.session
	r.session = s
	r.mu.Unlock()

	if prev != nil {
		prev.destroy()
	}

	flow.Open(ctx)
	go s.consume(ctx)

	return nil
}

func (r *StreamRecognizer) StopListening() {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()

	if s != nil {
		s.stopAudio()
	}
}

func (r *StreamRecognizer) Destroy() {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	if s != nil {
		s.destroy()
	}
}

type streamSession struct {
	logger    wsflow.Logger
	flow      wsflow.Client
	source    AudioSource
	chunkSize int
	listener  Listener

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *streamSession) consume(ctx context.Context) {
	for m, err := range s.flow.Messages(ctx) {
		if err != nil {
			s.logger.Errorf("speech stream failed: %s", err)
			s.listener.OnError(ErrorNetwork)
			return
		}

		text, ok := wsflow.TextOf(m)
		if !ok {
			s.logger.Debugf("ignoring %s", m)
			continue
		}

		if text == wsflow.ConnectedNotification {
			s.listener.OnReadyForSpeech()
			go s.pump(ctx)
			continue
		}

		s.dispatch(text)
	}
}

func (s *streamSession) dispatch(text string) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		s.logger.Warnf("malformed speech event %q: %s", text, err)
		return
	}

	switch ev.Type {
	case "speech_started":
		s.listener.OnBeginningOfSpeech()
	case "rms":
		s.listener.OnRmsChanged(ev.RmsDB)
	case "partial":
		s.listener.OnPartialResults(ev.matches())
	case "final":
		s.listener.OnResults(ev.matches())
	case "utterance_end":
		s.listener.OnEndOfSpeech()
	case "error":
		code := ErrorCode(ev.Code)
		if ev.Code == 0 {
			code = ErrorServer
		}
		s.listener.OnError(code)
	default:
		s.logger.Debugf("unknown speech event type %q", ev.Type)
	}
}

// pump streams the session audio until it is exhausted or the session is stopped, then tells
// the service that no more audio follows.
func (s *streamSession) pump(ctx context.Context) {
	defer s.closeStream()

	audio, err := s.source(ctx)
	if err != nil {
		s.logger.Errorf("cannot open audio: %s", err)
		s.listener.OnError(ErrorAudio)
		return
	}
	defer audio.Close()

	buf := make([]byte, s.chunkSize)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.flow.SendBinary(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Errorf("cannot read audio: %s", err)
				s.listener.OnError(ErrorAudio)
			}
			return
		}
	}
}

func (s *streamSession) stopAudio() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *streamSession) closeStream() {
	s.closeOnce.Do(func() {
		s.flow.Send(closeStreamMessage)
	})
}

func (s *streamSession) destroy() {
	s.stopAudio()
	s.flow.Close()
}
