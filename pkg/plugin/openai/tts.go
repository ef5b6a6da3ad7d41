// Package openai speaks utterances with OpenAI's speech endpoint and plays the
// returned PCM through an audio sink.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chriscow/sous-voice/pkg/ai/tts"
	"github.com/chriscow/sous-voice/pkg/audio"
	openai "github.com/sashabaranov/go-openai"
)

// PCMFormat is what the speech endpoint returns for the pcm response format.
var PCMFormat = audio.Format{SampleRate: 24000, Channels: 1}

var voiceNames = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Config holds configuration for the OpenAI synthesizer.
type Config struct {
	APIKey  string
	BaseURL string // optional, for proxies and tests
	Model   string // default tts-1
	Voice   string // default nova
	Sink    audio.Sink
	Logger  *slog.Logger
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
	sink   audio.Sink
	logger *slog.Logger
}

// New creates a synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("audio sink is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceNova)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Synthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		voice:  cfg.Voice,
		sink:   cfg.Sink,
		logger: cfg.Logger,
	}, nil
}

// Speak requests audio for u and plays it in the background. done receives
// ctx.Err() when playback is cancelled.
func (s *Synthesizer) Speak(ctx context.Context, u tts.Utterance, done func(error)) error {
	if strings.TrimSpace(u.Text) == "" {
		return errors.New("empty utterance")
	}
	go func() {
		done(s.speak(ctx, u))
	}()
	return nil
}

func (s *Synthesizer) speak(ctx context.Context, u tts.Utterance) error {
	start := time.Now()
	voice := u.Voice
	if voice == "" {
		voice = s.voice
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          u.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}
	if u.Rate > 0 {
		req.Speed = float64(u.Rate)
	}

	resp, err := s.client.CreateSpeech(ctx, req)
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	if err := s.sink.Play(ctx, resp, PCMFormat); err != nil {
		return err
	}
	s.logger.Debug("utterance played",
		slog.String("voice", voice),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Voices lists the endpoint's voices, the configured one first.
func (s *Synthesizer) Voices() []tts.Voice {
	voices := []tts.Voice{{Name: s.voice, Lang: "en-US"}}
	for _, name := range voiceNames {
		if name != s.voice {
			voices = append(voices, tts.Voice{Name: name, Lang: "en-US"})
		}
	}
	return voices
}

// Capabilities returns the synthesizer's capabilities.
func (s *Synthesizer) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		SupportedLanguages:   []string{"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh"},
		SupportsRateControl:  true,
		SupportsVoiceControl: true,
	}
}

// Close releases the sink when it holds an output device. Call it once the
// synthesizer is no longer speaking.
func (s *Synthesizer) Close() error {
	if c, ok := s.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ io.Closer       = (*Synthesizer)(nil)
)
