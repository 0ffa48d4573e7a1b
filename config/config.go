package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Speech        SpeechConfig        `yaml:"speech"`
	Audio         AudioConfig         `yaml:"audio"`
	Capture       CaptureConfig       `yaml:"capture"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains the control API listener
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// SpeechConfig contains the recognition service settings
type SpeechConfig struct {
	APIKey         string        `yaml:"api_key"`
	RTURL          string        `yaml:"rt_url"`
	TokenURL       string        `yaml:"token_url"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	Language       string        `yaml:"language"`
	OperatingPoint string        `yaml:"operating_point"`
	MaxDelay       float64       `yaml:"max_delay"` // seconds
	EnablePartials bool          `yaml:"enable_partials"`
	Diarization    string        `yaml:"diarization"`
}

// AudioConfig contains mixing and streaming parameters
type AudioConfig struct {
	SourceRate          uint32        `yaml:"source_rate"`
	TargetRate          uint32        `yaml:"target_rate"`
	FrameSize           int           `yaml:"frame_size"`
	DrainGrace          time.Duration `yaml:"drain_grace"`
	DrainTimeout        time.Duration `yaml:"drain_timeout"`
	EnrollmentChunkSize int           `yaml:"enrollment_chunk_bytes"`
}

// CaptureConfig selects the screen audio backend
type CaptureConfig struct {
	Backend         string `yaml:"backend"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

// NotificationsConfig toggles desktop notifications
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Address: "127.0.0.1:8765"},
		Speech: SpeechConfig{
			RTURL:          "wss://eu2.rt.speechmatics.com/v2",
			TokenURL:       "https://mp.speechmatics.com/v1/api_keys",
			TokenTTL:       60 * time.Second,
			Language:       "en",
			OperatingPoint: "enhanced",
			MaxDelay:       1.5,
			EnablePartials: true,
			Diarization:    "speaker",
		},
		Audio: AudioConfig{
			SourceRate:          48000,
			TargetRate:          16000,
			FrameSize:           480,
			DrainGrace:          2500 * time.Millisecond,
			DrainTimeout:        10 * time.Second,
			EnrollmentChunkSize: 320,
		},
		Capture: CaptureConfig{
			Backend:         "none",
			FramesPerBuffer: 480,
		},
		Notifications: NotificationsConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory and the process environment,
// in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.E(types.KindConfig, "load config", errors.Wrapf(err, "read config file %s", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.E(types.KindConfig, "load config", errors.Wrapf(err, "parse config file %s", path))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, types.E(types.KindConfig, "load config", errors.Wrap(err, "read .env"))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, types.E(types.KindConfig, "load config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, types.E(types.KindConfig, "load config", errors.Wrap(err, "config validation failed"))
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Speech.APIKey = getEnv("SPEECHMATICS_API_KEY", c.Speech.APIKey)
	c.Speech.RTURL = getEnv("SPEECHMATICS_RT_URL", c.Speech.RTURL)
	c.Speech.TokenURL = getEnv("SPEECHMATICS_TOKEN_URL", c.Speech.TokenURL)
	c.HTTP.Address = getEnv("HTTP_ADDRESS", c.HTTP.Address)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Capture.Backend = getEnv("CAPTURE_BACKEND", c.Capture.Backend)

	if v := os.Getenv("NOTIFICATIONS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "NOTIFICATIONS_ENABLED=%q", v)
		}
		c.Notifications.Enabled = enabled
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return errors.Wrap(err, "http config")
	}
	if err := c.Speech.Validate(); err != nil {
		return errors.Wrap(err, "speech config")
	}
	if err := c.Audio.Validate(); err != nil {
		return errors.Wrap(err, "audio config")
	}
	if err := c.Capture.Validate(); err != nil {
		return errors.Wrap(err, "capture config")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "logging config")
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Address == "" {
		return errors.New("address cannot be empty")
	}
	return nil
}

// Validate validates recognition settings
func (s *SpeechConfig) Validate() error {
	if s.APIKey == "" {
		return errors.New("api_key cannot be empty (set SPEECHMATICS_API_KEY)")
	}
	if s.TokenURL == "" {
		return errors.New("token_url cannot be empty")
	}
	if s.TokenTTL < time.Second {
		return errors.Errorf("token_ttl must be at least 1s, got %s", s.TokenTTL)
	}
	if s.Language == "" {
		return errors.New("language cannot be empty")
	}
	if s.MaxDelay <= 0 {
		return errors.Errorf("max_delay must be positive, got %f", s.MaxDelay)
	}
	switch s.Diarization {
	case "", "none", "speaker", "channel":
	default:
		return errors.Errorf("diarization must be one of [none, speaker, channel], got '%s'", s.Diarization)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SourceRate == 0 {
		return errors.New("source_rate must be positive")
	}
	if a.TargetRate == 0 {
		return errors.New("target_rate must be positive")
	}
	if a.FrameSize < 1 {
		return errors.Errorf("frame_size must be at least 1 sample, got %d", a.FrameSize)
	}
	if a.DrainGrace < 0 {
		return errors.Errorf("drain_grace cannot be negative, got %s", a.DrainGrace)
	}
	if a.DrainTimeout <= 0 {
		return errors.Errorf("drain_timeout must be positive, got %s", a.DrainTimeout)
	}
	if a.EnrollmentChunkSize < 2 || a.EnrollmentChunkSize%2 != 0 {
		return errors.Errorf("enrollment_chunk_bytes must be a positive even number, got %d", a.EnrollmentChunkSize)
	}
	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", "none", "portaudio":
	default:
		return errors.Errorf("backend must be 'none' or 'portaudio', got '%s'", c.Backend)
	}
	if c.FramesPerBuffer < 0 {
		return errors.Errorf("frames_per_buffer cannot be negative, got %d", c.FramesPerBuffer)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(l.Level)] {
		return errors.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(l.Format)] {
		return errors.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}
