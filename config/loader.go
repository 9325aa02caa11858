package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// Config. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Defaults()
		return &cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Realtime.Events = cfg.Realtime.Events.WithDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !slices.Contains(Voices, cfg.Realtime.Voice) {
		errs = append(errs, fmt.Errorf("realtime.voice %q is invalid; valid values: %s", cfg.Realtime.Voice, strings.Join(Voices, ", ")))
	}
	if cfg.Realtime.Model == "" {
		errs = append(errs, errors.New("realtime.model is required"))
	}
	if !strings.HasPrefix(cfg.Realtime.URL, "ws://") && !strings.HasPrefix(cfg.Realtime.URL, "wss://") {
		errs = append(errs, fmt.Errorf("realtime.url %q must be a ws:// or wss:// URL", cfg.Realtime.URL))
	}

	switch cfg.Interview.Mode {
	case "interview", "conversation":
	default:
		errs = append(errs, fmt.Errorf("interview.mode %q is invalid; valid values: interview, conversation", cfg.Interview.Mode))
	}
	if d := cfg.Interview.DurationMinutes; d < MinDurationMinutes || d > MaxDurationMinutes {
		errs = append(errs, fmt.Errorf("interview.duration_minutes %d must be between %d and %d", d, MinDurationMinutes, MaxDurationMinutes))
	}
	if cfg.Interview.ExitGrace < 0 {
		errs = append(errs, errors.New("interview.exit_grace must not be negative"))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, errors.New("audio.frame_size must be positive"))
	}
	if cfg.Audio.WriteChunk <= 0 || cfg.Audio.WriteChunk%2 != 0 {
		errs = append(errs, errors.New("audio.write_chunk must be a positive even byte count"))
	}
	if cfg.Audio.GateThreshold < 0 {
		errs = append(errs, errors.New("audio.gate_threshold must not be negative"))
	}
	if cfg.Audio.InputDevice < -1 || cfg.Audio.OutputDevice < -1 {
		errs = append(errs, errors.New("audio device ids must be -1 (default) or a device index"))
	}

	if cfg.Evaluation.MaxRetries < 0 {
		errs = append(errs, errors.New("evaluation.max_retries must not be negative"))
	}
	if cfg.Output.DataDir == "" {
		errs = append(errs, errors.New("output.data_dir is required"))
	}

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	return errors.Join(errs...)
}
