package plugin

import (
	"errors"
	"fmt"

	"github.com/chriscow/sous-voice/pkg/ai/stt"
	"github.com/chriscow/sous-voice/pkg/ai/tts"
)

// ErrUnknownPlugin is returned when no plugin is registered under a name.
var ErrUnknownPlugin = errors.New("unknown plugin")

// NewRecognizer builds the stt plugin registered as name.
func NewRecognizer(name string, cfg map[string]any) (stt.Recognizer, error) {
	return newRecognizer(globalRegistry, name, cfg)
}

// NewSynthesizer builds the tts plugin registered as name.
func NewSynthesizer(name string, cfg map[string]any) (tts.Synthesizer, error) {
	return newSynthesizer(globalRegistry, name, cfg)
}

func newRecognizer(r *Registry, name string, cfg map[string]any) (stt.Recognizer, error) {
	instance, err := build(r, KindSTT, name, cfg)
	if err != nil {
		return nil, err
	}
	rec, ok := instance.(stt.Recognizer)
	if !ok {
		return nil, fmt.Errorf("plugin %s/%s returned %T, not a recognizer", KindSTT, name, instance)
	}
	return rec, nil
}

func newSynthesizer(r *Registry, name string, cfg map[string]any) (tts.Synthesizer, error) {
	instance, err := build(r, KindTTS, name, cfg)
	if err != nil {
		return nil, err
	}
	synth, ok := instance.(tts.Synthesizer)
	if !ok {
		return nil, fmt.Errorf("plugin %s/%s returned %T, not a synthesizer", KindTTS, name, instance)
	}
	return synth, nil
}

func build(r *Registry, kind, name string, cfg map[string]any) (any, error) {
	factory, ok := r.Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownPlugin, kind, name)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	instance, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", kind, name, err)
	}
	return instance, nil
}

// String reads a string option, returning def when absent or empty.
func String(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Float reads a numeric option. YAML and JSON decoders produce different
// numeric types, so ints and float64 are both accepted.
func Float(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
