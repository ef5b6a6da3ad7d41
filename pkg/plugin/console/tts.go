package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/sous-voice/pkg/ai/tts"
)

// Synthesizer prints each utterance and completes it after a delay that
// grows with its length, roughly the time it would take to say it.
type Synthesizer struct {
	mu      sync.Mutex
	out     io.Writer
	perWord time.Duration
}

// NewSynthesizer writes to out. perWord is the simulated speaking time per
// word at rate 1; zero completes immediately.
func NewSynthesizer(out io.Writer, perWord time.Duration) *Synthesizer {
	return &Synthesizer{out: out, perWord: perWord}
}

// Speak prints u and calls done once the simulated speech ends or ctx is
// cancelled.
func (s *Synthesizer) Speak(ctx context.Context, u tts.Utterance, done func(error)) error {
	s.mu.Lock()
	_, err := fmt.Fprintf(s.out, "🔊 %s\n", u.Text)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	d := s.duration(u)
	go func() {
		if d <= 0 {
			done(ctx.Err())
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			done(nil)
		case <-ctx.Done():
			done(ctx.Err())
		}
	}()
	return nil
}

func (s *Synthesizer) duration(u tts.Utterance) time.Duration {
	words := len(strings.Fields(u.Text))
	d := time.Duration(words) * s.perWord
	if u.Rate > 0 {
		d = time.Duration(float64(d) / float64(u.Rate))
	}
	return d
}

// Voices returns the single console voice.
func (s *Synthesizer) Voices() []tts.Voice {
	return []tts.Voice{{Name: "Console", Lang: "en-US"}}
}

// Capabilities returns the console synthesizer capabilities.
func (s *Synthesizer) Capabilities() tts.Capabilities {
	return tts.Capabilities{SupportedLanguages: []string{"en-US"}, SupportsRateControl: true}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
