package transcription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sonirico/wsflow"
)

const msgUnavailable = "Speech recognition not available on this device"

// State is a snapshot of the manager, handed to change listeners.
type State struct {
	Recording    bool
	Transcript   string
	ErrorMessage string
	AudioLevel   float32
	Continuous   bool
	Remaining    time.Duration
}

type changeEvent struct{}

// Manager drives recognition sessions and keeps the resulting State. In continuous mode a
// session keeps recording across pauses in speech and is stopped after Config.MaxRecording.
type Manager struct {
	logger     wsflow.Logger
	recognizer Recognizer
	cfg        Config
	emitter    *wsflow.EventEmitterCallback[changeEvent, State]

	mu         sync.Mutex
	state      State
	generation uint64
	timerStop  chan struct{}
}

func NewManager(logger wsflow.Logger, recognizer Recognizer, cfg Config) *Manager {
	return &Manager{
		logger:     logger.WithField("type", "transcription_manager"),
		recognizer: recognizer,
		cfg:        cfg.WithDefaults(),
		emitter:    wsflow.NewEventEmitter[changeEvent, State](),
	}
}

// OnChange registers handler to be called with every new State.
func (m *Manager) OnChange(handler func(State)) {
	m.emitter.On(changeEvent{}, handler)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) ToggleContinuousMode() {
	m.update(func(s *State) {
		s.Continuous = !s.Continuous
	})
}

// StartRecording starts a new recognition session. Problems are reported through
// State.ErrorMessage, never returned.
func (m *Manager) StartRecording(ctx context.Context) {
	if !m.recognizer.Available() {
		m.logger.Warnln("speech recognition unavailable")
		m.update(func(s *State) {
			s.ErrorMessage = msgUnavailable
		})
		return
	}

	m.mu.Lock()
	m.generation++
	l := &sessionListener{m: m, generation: m.generation}
	m.mu.Unlock()

	if err := m.recognizer.StartListening(ctx, l); err != nil {
		m.logger.Errorf("cannot start listening: %s", err)
		m.update(func(s *State) {
			s.Recording = false
			s.ErrorMessage = ErrorClient.Message()
		})
	}
}

func (m *Manager) StopRecording() {
	m.recognizer.StopListening()
	m.update(func(s *State) {
		s.Recording = false
		s.AudioLevel = 0
		m.stopTimerLocked()
	})
}

func (m *Manager) ClearTranscription() {
	m.update(func(s *State) {
		s.Transcript = ""
		s.ErrorMessage = ""
	})
}

// Destroy stops the countdown and releases the recognizer. The manager must not be used afterwards.
func (m *Manager) Destroy() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.generation++
	m.mu.Unlock()

	m.recognizer.Destroy()
	m.emitter.Close()
}

func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	snapshot := m.state
	m.mu.Unlock()

	m.emitter.Emit(changeEvent{}, snapshot)
}

// updateSession applies fn only while generation is the current session.
func (m *Manager) updateSession(generation uint64, fn func(*State)) {
	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		return
	}
	fn(&m.state)
	snapshot := m.state
	m.mu.Unlock()

	m.emitter.Emit(changeEvent{}, snapshot)
}

// startTimerLocked starts the continuous mode countdown. m.mu must be held.
func (m *Manager) startTimerLocked() {
	if !m.state.Continuous {
		return
	}
	m.stopTimerLocked()

	stop := make(chan struct{})
	m.timerStop = stop
	m.state.Remaining = m.cfg.MaxRecording

	go m.countdown(stop)
}

// stopTimerLocked stops the countdown. m.mu must be held.
func (m *Manager) stopTimerLocked() {
	if m.timerStop != nil {
		close(m.timerStop)
		m.timerStop = nil
	}
	m.state.Remaining = 0
}

func (m *Manager) countdown(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		var expired bool
		m.update(func(s *State) {
			if m.timerStop != stop || !s.Recording {
				return
			}
			s.Remaining -= m.cfg.Tick
			if s.Remaining > 0 {
				return
			}
			s.Recording = false
			s.AudioLevel = 0
			s.ErrorMessage = "Recording stopped after " + humanize(m.cfg.MaxRecording)
			m.stopTimerLocked()
			expired = true
		})

		if expired {
			m.logger.Infof("continuous recording reached %s, stopping", m.cfg.MaxRecording)
			m.recognizer.StopListening()
			return
		}
	}
}

func humanize(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}

// sessionListener binds recognizer callbacks to the session that started them, so that late
// callbacks of a replaced session are ignored.
type sessionListener struct {
	m          *Manager
	generation uint64
}

func (l *sessionListener) OnReadyForSpeech() {
	l.m.updateSession(l.generation, func(s *State) {
		s.Recording = true
		s.ErrorMessage = ""
		l.m.startTimerLocked()
	})
}

func (l *sessionListener) OnBeginningOfSpeech() {
	l.m.logger.Debugln("speech started")
}

func (l *sessionListener) OnRmsChanged(db float32) {
	l.m.updateSession(l.generation, func(s *State) {
		s.AudioLevel = NormalizeLevel(db)
	})
}

func (l *sessionListener) OnEndOfSpeech() {
	l.m.updateSession(l.generation, func(s *State) {
		if s.Continuous {
			return
		}
		s.Recording = false
		s.AudioLevel = 0
		l.m.stopTimerLocked()
	})
}

func (l *sessionListener) OnError(code ErrorCode) {
	l.m.logger.Warnf("recognition error %d: %s", code, code.Message())
	l.m.updateSession(l.generation, func(s *State) {
		s.Recording = false
		s.ErrorMessage = code.Message()
		l.m.stopTimerLocked()
	})
}

func (l *sessionListener) OnPartialResults(matches []string) {
	if len(matches) == 0 {
		return
	}
	l.m.updateSession(l.generation, func(s *State) {
		s.Transcript = matches[0]
	})
}

func (l *sessionListener) OnResults(matches []string) {
	l.m.updateSession(l.generation, func(s *State) {
		s.Recording = false
		if len(matches) > 0 {
			s.Transcript = matches[0]
		}
	})
}
