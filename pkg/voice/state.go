// Package voice implements the hands-free control core: wake phrase
// detection, the follow-up listening window, the microphone state machine,
// sentence-by-sentence speech output, and the controller that keeps them
// consistent while recognition, synthesis, and network events interleave.
package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chriscow/sous-voice/internal/metrics"
)

// ErrInvalidTransition is returned for a state change along an edge the
// microphone state machine does not have.
var ErrInvalidTransition = errors.New("invalid microphone state transition")

// MicState is the authoritative microphone state.
type MicState int32

const (
	MicDisabled MicState = iota
	MicIdle
	MicListening
	MicProcessing
	MicSpeaking
	MicError
)

func (s MicState) String() string {
	switch s {
	case MicDisabled:
		return "disabled"
	case MicIdle:
		return "idle"
	case MicListening:
		return "listening"
	case MicProcessing:
		return "processing"
	case MicSpeaking:
		return "speaking"
	case MicError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// edges lists every allowed transition. Transitions into MicDisabled and
// into MicError are handled in CanTransition.
var edges = map[MicState][]MicState{
	MicDisabled:   {MicIdle},
	MicIdle:       {MicListening, MicProcessing, MicSpeaking},
	MicListening:  {MicIdle, MicProcessing, MicSpeaking},
	MicProcessing: {MicSpeaking, MicIdle, MicListening},
	MicSpeaking:   {MicIdle, MicListening, MicProcessing},
	MicError:      {MicIdle},
}

// CanTransition reports whether from → to is an edge of the state machine.
// Self transitions are always allowed and change nothing.
func CanTransition(from, to MicState) bool {
	if from == to {
		return true
	}
	switch to {
	case MicDisabled:
		return true
	case MicError:
		return from != MicDisabled
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateChangeListener is called after every state change.
type StateChangeListener func(from, to MicState)

// StateMachine owns the current MicState. Writes come only from the
// controller; readers may observe it from any goroutine.
type StateMachine struct {
	mu        sync.RWMutex
	state     MicState
	since     time.Time
	listeners []StateChangeListener
}

// NewStateMachine creates a state machine in MicDisabled.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: MicDisabled, since: time.Now()}
}

// Current returns the current state.
func (m *StateMachine) Current() MicState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Since returns when the current state was entered.
func (m *StateMachine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// OnChange registers a listener. Listeners run synchronously after the
// state is updated, outside the lock.
func (m *StateMachine) OnChange(fn StateChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Transition moves to the given state. A self transition is a no-op; an edge
// the machine does not have leaves the state unchanged and returns
// ErrInvalidTransition.
func (m *StateMachine) Transition(to MicState) error {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		metrics.RejectedTransitions.WithLabelValues(from.String(), to.String()).Inc()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.since = time.Now()
	listeners := append([]StateChangeListener(nil), m.listeners...)
	m.mu.Unlock()

	metrics.MicTransitions.WithLabelValues(from.String(), to.String()).Inc()
	for _, fn := range listeners {
		fn(from, to)
	}
	return nil
}
