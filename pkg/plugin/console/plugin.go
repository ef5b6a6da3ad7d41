package console

import (
	"os"
	"time"

	"github.com/chriscow/sous-voice/pkg/plugin"
)

func newConsoleSTT(cfg map[string]any) (any, error) {
	return NewRecognizer(os.Stdin), nil
}

func newConsoleTTS(cfg map[string]any) (any, error) {
	ms := plugin.Float(cfg, "word_ms", 250)
	return NewSynthesizer(os.Stdout, time.Duration(ms)*time.Millisecond), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "console",
		Factory:     newConsoleSTT,
		Description: "Transcripts typed on stdin (prefix ~ for interim, ! for an error code)",
		Version:     "1.0.0",
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "console",
		Factory:     newConsoleTTS,
		Description: "Prints speech to stdout",
		Version:     "1.0.0",
		Config: map[string]any{
			"word_ms": "simulated milliseconds per word (default 250)",
		},
	})
}
