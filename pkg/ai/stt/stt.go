// Package stt provides the interfaces and types for continuous speech recognition.
// A recognizer runs one session at a time, emits interim and final transcripts,
// and signals the end of the session by closing its event channel.
package stt

import (
	"context"
	"time"

	"github.com/chriscow/sous-voice/pkg/ai"
)

// Recognition error variables, re-exported for callers that only import stt.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Config contains configuration for a recognition session.
type Config struct {
	Lang            string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// DefaultConfig is the session setup the voice controller uses: continuous,
// with interim results so a wake phrase can interrupt speech output.
var DefaultConfig = Config{
	Lang:            "en-US",
	Continuous:      true,
	InterimResults:  true,
	MaxAlternatives: 1,
}

// ErrorCode identifies a recognition error reported by the capability.
type ErrorCode string

const (
	CodeNoSpeech     ErrorCode = "no-speech"
	CodeAborted      ErrorCode = "aborted"
	CodeAudioCapture ErrorCode = "audio-capture"
	CodeNetwork      ErrorCode = "network"
	CodeNotAllowed   ErrorCode = "not-allowed"
	CodeUnavailable  ErrorCode = "service-not-allowed"
)

// IsBenign reports whether a recognition error code is expected during normal
// operation. Benign errors never change the microphone state.
func IsBenign(code ErrorCode) bool {
	return code == CodeNoSpeech || code == CodeAborted
}

// EventType represents the type of recognition event.
type EventType int

const (
	// EventInterim carries a partial transcript that may still change.
	EventInterim EventType = iota
	// EventFinal carries a transcript that will not change.
	EventFinal
	// EventError carries a recognition error code.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents one recognition result or error.
type Event struct {
	Type       EventType
	Transcript string    // empty for error events
	IsFinal    bool      // true only for EventFinal
	Timestamp  time.Time // when the capability produced the event
	Code       ErrorCode // only set for error events
}

// Interim builds an interim result event.
func Interim(transcript string) Event {
	return Event{Type: EventInterim, Transcript: transcript, Timestamp: time.Now()}
}

// Final builds a final result event.
func Final(transcript string) Event {
	return Event{Type: EventFinal, Transcript: transcript, IsFinal: true, Timestamp: time.Now()}
}

// Failure builds an error event.
func Failure(code ErrorCode) Event {
	return Event{Type: EventError, Code: code, Timestamp: time.Now()}
}

// Capabilities describes what a recognizer supports.
type Capabilities struct {
	Continuous         bool
	InterimResults     bool
	SupportedLanguages []string
}

// Recognizer is the recognition capability.
type Recognizer interface {
	// Start begins a new recognition session. Events arrive on the returned
	// channel in production order; the channel is closed when the session
	// ends, whether by silence, Abort, or ctx cancellation. Start returns
	// ai.ErrCapabilityUnavailable when recognition is not supported.
	Start(ctx context.Context, cfg Config) (<-chan Event, error)

	// Abort ends the current session immediately and discards pending results.
	// It is safe to call when no session is running.
	Abort() error

	// Capabilities returns the recognizer's capabilities.
	Capabilities() Capabilities
}
