// Package config loads sous settings from defaults, an optional YAML file,
// a .env file, and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chriscow/sous-voice/pkg/backend"
)

// Defaults.
const (
	DefaultFollowUp   = 6 * time.Second
	DefaultSpeechRate = 1.05
	DefaultSTT        = "console"
	DefaultTTS        = "console"
)

// DefaultWakePhrases are the spellings recognizers commonly produce for
// the wake word.
var DefaultWakePhrases = []string{"hey sous", "hey sue", "hey souz", "hey soos"}

// Config is the full sous configuration.
type Config struct {
	Backend       BackendConfig `yaml:"backend"`
	Voice         VoiceConfig   `yaml:"voice"`
	Plugins       PluginConfig  `yaml:"plugins"`
	Notifications bool          `yaml:"notifications"`
	MetricsAddr   string        `yaml:"metrics_addr"`
}

// BackendConfig locates the cooking service.
type BackendConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// VoiceConfig tunes the hands-free loop.
type VoiceConfig struct {
	WakePhrases []string      `yaml:"wake_phrases"`
	FollowUp    time.Duration `yaml:"follow_up"`
	Voice       string        `yaml:"voice"`
	Lang        string        `yaml:"lang"`
	Rate        float32       `yaml:"rate"`
}

// PluginConfig picks the recognizer and synthesizer. Options are keyed by
// plugin name, e.g. "wsbridge" or "openai".
type PluginConfig struct {
	STT     string                    `yaml:"stt"`
	TTS     string                    `yaml:"tts"`
	Options map[string]map[string]any `yaml:"options"`
}

// PluginOptions returns the options for a plugin, never nil.
func (p PluginConfig) PluginOptions(name string) map[string]any {
	if opts, ok := p.Options[name]; ok && opts != nil {
		return opts
	}
	return map[string]any{}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{URL: backend.DefaultBaseURL},
		Voice: VoiceConfig{
			WakePhrases: append([]string(nil), DefaultWakePhrases...),
			FollowUp:    DefaultFollowUp,
			Lang:        "en-US",
			Rate:        DefaultSpeechRate,
		},
		Plugins:       PluginConfig{STT: DefaultSTT, TTS: DefaultTTS},
		Notifications: true,
	}
}

// Load builds the configuration. path names a YAML file; when empty,
// SOUS_CONFIG is consulted, and with neither set no file is read. A missing
// .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("SOUS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := cfg.UnmarshalYAMLBytes(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAMLBytes overlays YAML onto c. Keys absent from data keep their
// current values.
func (c *Config) UnmarshalYAMLBytes(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("SOUS_BACKEND_URL"); ok {
		c.Backend.URL = v
	}
	if v, ok := get("SOUS_TOKEN"); ok {
		c.Backend.Token = v
	}
	if v, ok := get("SOUS_WAKE_PHRASES"); ok {
		c.Voice.WakePhrases = splitList(v)
	}
	if v, ok := get("SOUS_FOLLOW_UP"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SOUS_FOLLOW_UP %q: %w", v, err)
		}
		c.Voice.FollowUp = d
	}
	if v, ok := get("SOUS_VOICE"); ok {
		c.Voice.Voice = v
	}
	if v, ok := get("SOUS_LANG"); ok {
		c.Voice.Lang = v
	}
	if v, ok := get("SOUS_SPEECH_RATE"); ok {
		rate, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("invalid SOUS_SPEECH_RATE %q: %w", v, err)
		}
		c.Voice.Rate = float32(rate)
	}
	if v, ok := get("SOUS_STT"); ok {
		c.Plugins.STT = v
	}
	if v, ok := get("SOUS_TTS"); ok {
		c.Plugins.TTS = v
	}
	if v, ok := get("SOUS_NOTIFY"); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SOUS_NOTIFY %q: %w", v, err)
		}
		c.Notifications = on
	}
	if v, ok := get("SOUS_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

// Validate checks the configuration for values the voice core cannot run
// with.
func (c *Config) Validate() error {
	var errs []error
	if len(splitList(strings.Join(c.Voice.WakePhrases, ","))) == 0 {
		errs = append(errs, errors.New("at least one wake phrase is required"))
	}
	if c.Voice.FollowUp <= 0 {
		errs = append(errs, fmt.Errorf("follow-up window must be positive, got %s", c.Voice.FollowUp))
	}
	if c.Voice.Rate <= 0 {
		errs = append(errs, fmt.Errorf("speech rate must be positive, got %g", c.Voice.Rate))
	}
	if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		errs = append(errs, fmt.Errorf("backend url must be http or https, got %q", c.Backend.URL))
	}
	if c.Plugins.STT == "" || c.Plugins.TTS == "" {
		errs = append(errs, errors.New("both an stt and a tts plugin must be selected"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
