// Package fake registers the scripted recognizer and synthesizer so the CLI
// can run without a microphone or an audio device.
package fake

import (
	sttfake "github.com/chriscow/sous-voice/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/sous-voice/pkg/ai/tts/fake"
	"github.com/chriscow/sous-voice/pkg/plugin"
)

// newFakeSTT creates a recognizer that only hears what tests push into it.
func newFakeSTT(cfg map[string]any) (any, error) {
	return sttfake.NewFakeRecognizer(), nil
}

// newFakeTTS creates a synthesizer that finishes every utterance at once
// unless auto_complete is false.
func newFakeTTS(cfg map[string]any) (any, error) {
	synth := ttsfake.NewFakeTTS()
	auto := true
	if v, ok := cfg["auto_complete"].(bool); ok {
		auto = v
	}
	synth.AutoComplete(auto)
	return synth, nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Scripted recognizer for testing",
		Version:     "1.0.0",
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Silent synthesizer for testing",
		Version:     "1.0.0",
		Config: map[string]any{
			"auto_complete": "finish utterances immediately (default true)",
		},
	})
}
