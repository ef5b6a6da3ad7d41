package openai

import (
	"fmt"
	"os"

	"github.com/chriscow/sous-voice/pkg/audio"
	"github.com/chriscow/sous-voice/pkg/audio/playback"
	"github.com/chriscow/sous-voice/pkg/audio/wav"
	"github.com/chriscow/sous-voice/pkg/plugin"
)

// newOpenAITTS is the factory function for the OpenAI synthesizer.
func newOpenAITTS(cfg map[string]any) (any, error) {
	config := Config{
		APIKey:  plugin.String(cfg, "api_key", os.Getenv("OPENAI_API_KEY")),
		BaseURL: plugin.String(cfg, "base_url", ""),
		Model:   plugin.String(cfg, "model", ""),
		Voice:   plugin.String(cfg, "voice", ""),
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}

	sink, err := newSink(cfg)
	if err != nil {
		return nil, err
	}
	config.Sink = sink
	return New(config)
}

func newSink(cfg map[string]any) (audio.Sink, error) {
	switch kind := plugin.String(cfg, "sink", "device"); kind {
	case "device":
		return playback.New()
	case "wav":
		return wav.NewSink(plugin.String(cfg, "wav_dir", "speech"))
	default:
		return nil, fmt.Errorf("unknown audio sink %q (want device or wav)", kind)
	}
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech played on the default output device",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"base_url": "API base URL override",
			"model":    "tts-1",
			"voice":    "nova",
			"sink":     "device or wav",
			"wav_dir":  "directory for wav output (default speech)",
		},
	})
}
