// Package transcription relays speech recognition sessions to a small observable state:
// whether audio is being recorded, the latest transcript, a user facing error message and
// the current input level.
package transcription

import (
	"context"
)

// Recognizer is the speech recognition service. It is treated as opaque: the manager only
// starts and stops sessions and consumes the callbacks.
type Recognizer interface {
	// Available reports whether recognition can run at all.
	Available() bool
	// StartListening starts a session reporting to l. It must not block on audio.
	StartListening(ctx context.Context, l Listener) error
	// StopListening stops capturing audio. Final results may still be delivered afterwards.
	StopListening()
	// Destroy releases every resource held by the recognizer.
	Destroy()
}

// Listener receives the events of one recognition session.
type Listener interface {
	OnReadyForSpeech()
	OnBeginningOfSpeech()
	OnRmsChanged(db float32)
	OnEndOfSpeech()
	OnError(code ErrorCode)
	OnPartialResults(matches []string)
	OnResults(matches []string)
}

type ErrorCode int

const (
	ErrorNetworkTimeout          ErrorCode = 1
	ErrorNetwork                 ErrorCode = 2
	ErrorAudio                   ErrorCode = 3
	ErrorServer                  ErrorCode = 4
	ErrorClient                  ErrorCode = 5
	ErrorSpeechTimeout           ErrorCode = 6
	ErrorNoMatch                 ErrorCode = 7
	ErrorRecognizerBusy          ErrorCode = 8
	ErrorInsufficientPermissions ErrorCode = 9
)

// Message is the user facing description of the code.
func (c ErrorCode) Message() string {
	switch c {
	case ErrorAudio:
		return "Audio recording error"
	case ErrorClient:
		return "Client side error"
	case ErrorInsufficientPermissions:
		return "Insufficient permissions"
	case ErrorNetwork:
		return "Network error"
	case ErrorNetworkTimeout:
		return "Network timeout"
	case ErrorNoMatch:
		return "No speech input detected"
	case ErrorRecognizerBusy:
		return "Recognition service busy"
	case ErrorServer:
		return "Server error"
	case ErrorSpeechTimeout:
		return "No speech input"
	default:
		return "Unknown error occurred"
	}
}

func (c ErrorCode) Error() string {
	return c.Message()
}

// NormalizeLevel maps an RMS reading in dB to [0, 1], treating -20dB..0dB as the useful range.
func NormalizeLevel(db float32) float32 {
	level := (db + 20) / 20
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}
