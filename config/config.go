// Package config loads the YAML configuration and watches it for changes.
package config

import (
	"log/slog"
	"time"

	"github.com/bosley/parley/audio"
	"github.com/bosley/parley/realtime"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Voices accepted by the realtime model.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 120
)

// Config is the root configuration.
type Config struct {
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Interview  InterviewConfig  `yaml:"interview"`
	Audio      AudioConfig      `yaml:"audio"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Output     OutputConfig     `yaml:"output"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Log        LogConfig        `yaml:"log"`
}

// RealtimeConfig describes the realtime model connection.
type RealtimeConfig struct {
	URL                string        `yaml:"url"`
	Model              string        `yaml:"model"`
	Voice              string        `yaml:"voice"`
	Language           string        `yaml:"language"`
	TranscriptionModel string        `yaml:"transcription_model"`
	CAFile             string        `yaml:"ca_file"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`

	// Events overrides individual event type names. Empty names keep the
	// defaults.
	Events realtime.EventNames `yaml:"events"`
}

// InterviewConfig holds session behaviour.
type InterviewConfig struct {
	// Mode is "interview" or "conversation".
	Mode              string        `yaml:"mode"`
	DurationMinutes   int           `yaml:"duration_minutes"`
	ExitGrace         time.Duration `yaml:"exit_grace"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// AudioConfig holds local device settings. Device ids of -1 select the
// system default.
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	FrameSize     int     `yaml:"frame_size"`
	WriteChunk    int     `yaml:"write_chunk"`
	GateThreshold float64 `yaml:"gate_threshold"`
	InputDevice   int     `yaml:"input_device"`
	OutputDevice  int     `yaml:"output_device"`
}

// EvaluationConfig configures question generation and scoring.
type EvaluationConfig struct {
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	CacheDir   string        `yaml:"cache_dir"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// OutputConfig names where session files are written.
type OutputConfig struct {
	DataDir       string `yaml:"data_dir"`
	RecordingsDir string `yaml:"recordings_dir"`
}

// MonitorConfig enables the live monitor when Addr is set.
type MonitorConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ArchiveConfig enables the SQLite archive when Path is set.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level LogLevel `yaml:"level"`
}

// Defaults returns the configuration used for any value a file leaves out.
func Defaults() Config {
	return Config{
		Realtime: RealtimeConfig{
			URL:                realtime.DefaultURL,
			Model:              "gpt-4o-realtime-preview",
			Voice:              "alloy",
			Language:           "en",
			TranscriptionModel: "gpt-4o-transcribe",
			HandshakeTimeout:   15 * time.Second,
			Events:             realtime.DefaultEventNames(),
		},
		Interview: InterviewConfig{
			Mode:              "interview",
			DurationMinutes:   30,
			ExitGrace:         3 * time.Second,
			EvaluationTimeout: 2 * time.Minute,
		},
		Audio: AudioConfig{
			SampleRate:    audio.SampleRate,
			FrameSize:     audio.FrameSize,
			WriteChunk:    audio.WriteChunkSize,
			GateThreshold: audio.GateThreshold,
			InputDevice:   -1,
			OutputDevice:  -1,
		},
		Evaluation: EvaluationConfig{
			Model:      "gpt-4o",
			CacheDir:   "data/question_cache",
			Timeout:    time.Minute,
			MaxRetries: 2,
		},
		Output: OutputConfig{
			DataDir:       "data",
			RecordingsDir: "recordings",
		},
		Log: LogConfig{Level: LogInfo},
	}
}
