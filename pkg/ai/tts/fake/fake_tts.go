package fake

import (
	"context"
	"sync"

	"github.com/chriscow/sous-voice/pkg/ai/tts"
)

type pending struct {
	utterance tts.Utterance
	done      func(error)
}

// FakeTTS is a manually driven synthesizer for testing. Every Speak call is
// recorded and stays in flight until the test completes or fails it, so the
// test decides exactly when segment completion callbacks fire.
type FakeTTS struct {
	mu       sync.Mutex
	spoken   []tts.Utterance
	inFlight []pending
	speakErr error
	auto     bool
}

// NewFakeTTS creates a new fake synthesizer.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{}
}

// AutoComplete makes every following Speak call finish synchronously.
func (f *FakeTTS) AutoComplete(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auto = on
}

// FailSpeak makes Speak return err until cleared with nil.
func (f *FakeTTS) FailSpeak(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakErr = err
}

// Speak records the utterance. Cancelling ctx does not complete it; tests
// fire completions explicitly to exercise late callbacks.
func (f *FakeTTS) Speak(ctx context.Context, u tts.Utterance, done func(error)) error {
	f.mu.Lock()
	if f.speakErr != nil {
		err := f.speakErr
		f.mu.Unlock()
		return err
	}
	f.spoken = append(f.spoken, u)
	if f.auto {
		f.mu.Unlock()
		done(nil)
		return nil
	}
	f.inFlight = append(f.inFlight, pending{utterance: u, done: done})
	f.mu.Unlock()
	return nil
}

// Complete finishes the oldest in-flight utterance normally.
// It reports false when nothing is in flight.
func (f *FakeTTS) Complete() bool {
	return f.finish(nil)
}

// Fail finishes the oldest in-flight utterance with err.
func (f *FakeTTS) Fail(err error) bool {
	return f.finish(err)
}

// CompleteAll finishes in-flight utterances until none remain, including
// ones started by earlier completions.
func (f *FakeTTS) CompleteAll() int {
	n := 0
	for f.Complete() {
		n++
	}
	return n
}

// Spoken returns the texts passed to Speak, in order.
func (f *FakeTTS) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.spoken))
	for i, u := range f.spoken {
		texts[i] = u.Text
	}
	return texts
}

// Utterances returns the utterances passed to Speak, in order.
func (f *FakeTTS) Utterances() []tts.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Utterance(nil), f.spoken...)
}

// InFlight returns the number of utterances awaiting completion.
func (f *FakeTTS) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

// Voices returns the fake voice list.
func (f *FakeTTS) Voices() []tts.Voice {
	return []tts.Voice{
		{Name: "Fake Male", Lang: "en-GB"},
		{Name: "Fake Female", Lang: "en-US"},
	}
}

// Capabilities returns the fake synthesizer capabilities.
func (f *FakeTTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		SupportedLanguages:   []string{"en-US", "en-GB"},
		SupportsRateControl:  true,
		SupportsVoiceControl: true,
	}
}

func (f *FakeTTS) finish(err error) bool {
	f.mu.Lock()
	if len(f.inFlight) == 0 {
		f.mu.Unlock()
		return false
	}
	p := f.inFlight[0]
	f.inFlight = f.inFlight[1:]
	f.mu.Unlock()

	p.done(err)
	return true
}
