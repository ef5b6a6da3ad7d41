package voice

import (
	"context"

	"github.com/chriscow/sous-voice/pkg/ai/stt"
)

// Event is anything that can happen to the controller. Every event enters
// through Controller.Dispatch.
type Event interface {
	isEvent()
}

// EnableMic turns the microphone on. Ctx bounds the whole mic session,
// including commands dispatched during it.
type EnableMic struct {
	Ctx context.Context
}

// DisableMic turns the microphone off, cancelling speech, the follow-up
// window, recognition, and in-flight turns.
type DisableMic struct{}

// ToggleMic flips the microphone.
type ToggleMic struct {
	Ctx context.Context
}

// SpeakText asks for text to be spoken. It is ignored while the mic is off.
type SpeakText struct {
	Text string
}

// TurnComplete reports that a dispatched command finished without anything
// to speak, so the controller can leave processing.
type TurnComplete struct{}

type recognized struct {
	session uint64
	ev      stt.Event
}

type recognitionEnded struct {
	session uint64
}

type speechFinished struct {
	queue uint64
}

type speechFailed struct {
	queue uint64
	err   error
}

type followUpExpired struct {
	window uint64
}

func (EnableMic) isEvent()        {}
func (DisableMic) isEvent()       {}
func (ToggleMic) isEvent()        {}
func (SpeakText) isEvent()        {}
func (TurnComplete) isEvent()     {}
func (recognized) isEvent()       {}
func (recognitionEnded) isEvent() {}
func (speechFinished) isEvent()   {}
func (speechFailed) isEvent()     {}
func (followUpExpired) isEvent()  {}
