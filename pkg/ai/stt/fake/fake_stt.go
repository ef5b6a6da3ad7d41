package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/chriscow/sous-voice/pkg/ai/stt"
)

// ErrNoSession is returned by Push and End when no session is running.
var ErrNoSession = errors.New("no recognition session running")

// FakeRecognizer is a scripted recognizer for testing. Tests push events into
// the running session and end it explicitly, the way a browser recognizer ends
// a session after a stretch of silence.
type FakeRecognizer struct {
	mu       sync.Mutex
	events   chan stt.Event
	starts   int
	aborts   int
	startErr error
	lastCfg  stt.Config
	caps     *stt.Capabilities
}

// NewFakeRecognizer creates a new fake recognizer.
func NewFakeRecognizer() *FakeRecognizer {
	return &FakeRecognizer{}
}

// FailNextStart makes every following Start call return err until cleared with nil.
func (f *FakeRecognizer) FailNextStart(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

// Start opens a new session. Any previous session is closed first.
func (f *FakeRecognizer) Start(ctx context.Context, cfg stt.Config) (<-chan stt.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}

	f.closeLocked()
	f.starts++
	f.lastCfg = cfg
	events := make(chan stt.Event, 64)
	f.events = events

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.events == events {
			f.closeLocked()
		}
	}()

	return events, nil
}

// Abort closes the current session, if any.
func (f *FakeRecognizer) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	f.closeLocked()
	return nil
}

// Push delivers an event to the running session.
func (f *FakeRecognizer) Push(ev stt.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		return ErrNoSession
	}
	f.events <- ev
	return nil
}

// End finishes the running session as if the recognizer timed out on silence.
func (f *FakeRecognizer) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		return ErrNoSession
	}
	f.closeLocked()
	return nil
}

// Running reports whether a session is open.
func (f *FakeRecognizer) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events != nil
}

// Starts returns how many sessions have been started.
func (f *FakeRecognizer) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Aborts returns how many times Abort was called.
func (f *FakeRecognizer) Aborts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborts
}

// LastConfig returns the configuration of the most recent session.
func (f *FakeRecognizer) LastConfig() stt.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCfg
}

// SetCapabilities overrides what Capabilities reports.
func (f *FakeRecognizer) SetCapabilities(caps stt.Capabilities) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caps = &caps
}

// Capabilities returns the fake recognizer capabilities: continuous with
// interim results unless overridden.
func (f *FakeRecognizer) Capabilities() stt.Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.caps != nil {
		return *f.caps
	}
	return stt.Capabilities{
		Continuous:         true,
		InterimResults:     true,
		SupportedLanguages: []string{"en-US", "en-GB"},
	}
}

func (f *FakeRecognizer) closeLocked() {
	if f.events != nil {
		close(f.events)
		f.events = nil
	}
}
