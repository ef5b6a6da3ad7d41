package voice

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/chriscow/sous-voice/internal/metrics"
	"github.com/chriscow/sous-voice/pkg/ai"
	"github.com/chriscow/sous-voice/pkg/ai/tts"
)

// ErrNothingToSpeak is returned by Speak for blank text.
var ErrNothingToSpeak = errors.New("nothing to speak")

// DefaultSpeechRate is slightly faster than the synthesizer default.
const DefaultSpeechRate float32 = 1.05

var sentenceRE = regexp.MustCompile(`[^.!?\n]+[.!?\n]*`)

// SplitSentences splits text into sentence-like segments, each kept with its
// terminator. Blank segments are dropped.
func SplitSentences(text string) []string {
	var out []string
	for _, seg := range sentenceRE.FindAllString(text, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SpeechConfig configures a SpeechStreamer.
type SpeechConfig struct {
	Synthesizer tts.Synthesizer
	Voice       string // empty picks one with tts.PickVoice
	Lang        string
	Rate        float32

	// OnFinished is called once when a queue has been spoken to the end. It
	// is not called for a queue that was cancelled.
	OnFinished func(gen uint64)

	// OnFailed is called when the synthesizer reports it cannot speak at all
	// (ai.ErrCapabilityUnavailable). The queue is dropped first.
	OnFailed func(gen uint64, err error)

	Logger *slog.Logger
}

// SpeechStreamer speaks a block of text one sentence at a time. Each Speak
// call starts a new queue generation; completion callbacks that belong to an
// older generation are ignored, so after Cancel returns nothing from the
// cancelled queue can advance.
type SpeechStreamer struct {
	synth      tts.Synthesizer
	voice      string
	lang       string
	rate       float32
	onFinished func(gen uint64)
	onFailed   func(gen uint64, err error)
	logger     *slog.Logger

	mu        sync.Mutex
	gen       uint64
	queue     []string
	cursor    int
	active    bool
	ctx       context.Context
	cancelSeg context.CancelFunc
}

// NewSpeechStreamer creates a streamer over the given synthesizer.
func NewSpeechStreamer(cfg SpeechConfig) (*SpeechStreamer, error) {
	if cfg.Synthesizer == nil {
		return nil, errors.New("synthesizer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultSpeechRate
	}
	if cfg.Lang == "" {
		cfg.Lang = "en-US"
	}
	if cfg.Voice == "" {
		if v, ok := tts.PickVoice(cfg.Synthesizer.Voices()); ok {
			cfg.Voice = v.Name
		}
	}

	return &SpeechStreamer{
		synth:      cfg.Synthesizer,
		voice:      cfg.Voice,
		lang:       cfg.Lang,
		rate:       cfg.Rate,
		onFinished: cfg.OnFinished,
		onFailed:   cfg.OnFailed,
		logger:     cfg.Logger,
	}, nil
}

// Speak cancels any active queue and starts speaking text. It returns the
// generation of the new queue.
func (s *SpeechStreamer) Speak(ctx context.Context, text string) (uint64, error) {
	segments := SplitSentences(text)
	if len(segments) == 0 {
		return 0, ErrNothingToSpeak
	}

	s.mu.Lock()
	s.cancelLocked()
	s.gen++
	gen := s.gen
	s.queue = segments
	s.cursor = 0
	s.active = true
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Debug("speaking", slog.Uint64("queue", gen), slog.Int("segments", len(segments)))
	s.next(gen, -1)
	return gen, nil
}

// Cancel stops the current segment and drops the rest of the queue. It
// reports whether a queue was active; calling it when idle changes nothing.
func (s *SpeechStreamer) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.cancelLocked()
	return true
}

// Active reports whether a queue is being spoken.
func (s *SpeechStreamer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Generation returns the generation of the most recent queue.
func (s *SpeechStreamer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Voice returns the voice utterances are spoken with.
func (s *SpeechStreamer) Voice() string {
	return s.voice
}

func (s *SpeechStreamer) cancelLocked() {
	if s.cancelSeg != nil {
		s.cancelSeg()
		s.cancelSeg = nil
	}
	if s.active {
		s.gen++
	}
	s.active = false
	s.queue = nil
	s.cursor = 0
}

// next speaks the segment under the cursor, or finishes the queue. done is
// the index of the segment that just ended, -1 when starting; a completion
// for any other segment is a duplicate and ignored.
func (s *SpeechStreamer) next(gen uint64, done int) {
	s.mu.Lock()
	if gen != s.gen || !s.active || s.cursor != done+1 {
		s.mu.Unlock()
		return
	}
	if s.cancelSeg != nil {
		s.cancelSeg()
		s.cancelSeg = nil
	}
	if s.cursor >= len(s.queue) {
		s.active = false
		s.queue = nil
		s.mu.Unlock()
		if s.onFinished != nil {
			s.onFinished(gen)
		}
		return
	}

	idx := s.cursor
	text := s.queue[idx]
	s.cursor++
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	segCtx, cancel := context.WithCancel(parent)
	s.cancelSeg = cancel
	s.mu.Unlock()

	metrics.SpeechSegments.Inc()
	u := tts.Utterance{Text: text, Voice: s.voice, Lang: s.lang, Rate: s.rate}
	err := s.synth.Speak(segCtx, u, func(err error) {
		s.segmentDone(gen, idx, err)
	})
	if err != nil {
		// A segment that cannot start must not stall the queue.
		s.segmentDone(gen, idx, err)
	}
}

func (s *SpeechStreamer) segmentDone(gen uint64, idx int, err error) {
	if errors.Is(err, ai.ErrCapabilityUnavailable) {
		s.mu.Lock()
		current := gen == s.gen && s.active
		if current {
			s.cancelLocked()
		}
		s.mu.Unlock()
		if current && s.onFailed != nil {
			s.onFailed(gen, err)
		}
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("speech segment failed",
			slog.Uint64("queue", gen),
			slog.Int("segment", idx),
			slog.String("error", err.Error()))
	}
	s.next(gen, idx)
}
