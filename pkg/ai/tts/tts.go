// Package tts provides the interfaces and types for the speech synthesis
// capability. Synthesis works one utterance at a time: the caller hands over a
// segment of text and is told once when that segment is finished.
package tts

import (
	"context"
	"strings"

	"github.com/chriscow/sous-voice/pkg/ai"
)

// Synthesis error variables, re-exported for callers that only import tts.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Voice describes one voice offered by a synthesizer.
type Voice struct {
	Name string
	Lang string
}

// Utterance is one segment of text to speak.
type Utterance struct {
	Text  string
	Voice string  // preferred voice name, empty for the synthesizer default
	Lang  string
	Rate  float32 // 1.0 is normal speed
}

// Capabilities describes the capabilities of a synthesizer.
type Capabilities struct {
	SupportedLanguages   []string
	SupportsRateControl  bool
	SupportsVoiceControl bool
}

// Synthesizer is the speech synthesis capability.
type Synthesizer interface {
	// Speak starts speaking u and returns immediately. done is called exactly
	// once when the utterance ends, with nil on normal completion or the
	// failure otherwise. Cancelling ctx stops playback; done then receives
	// ctx.Err(). When Speak itself returns an error, done is never called.
	Speak(ctx context.Context, u Utterance, done func(error)) error

	// Voices lists the voices available for Utterance.Voice.
	Voices() []Voice

	// Capabilities returns the synthesizer's capabilities.
	Capabilities() Capabilities
}

// PickVoice chooses the preferred voice from the available list: an English
// voice whose name marks it as female, else any en-US voice, else the first
// one. It reports false when the list is empty.
func PickVoice(voices []Voice) (Voice, bool) {
	for _, v := range voices {
		if strings.HasPrefix(v.Lang, "en") && strings.Contains(strings.ToLower(v.Name), "female") {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.HasPrefix(v.Lang, "en-US") {
			return v, true
		}
	}
	if len(voices) > 0 {
		return voices[0], true
	}
	return Voice{}, false
}
