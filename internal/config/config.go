package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the auth section
const (
	EnvEmail = "SPEECHCOACH_EMAIL"
	EnvToken = "SPEECHCOACH_TOKEN"
)

// Config represents the complete client configuration
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Audio   AudioConfig   `yaml:"audio"`
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig selects and configures the capture device
type CaptureConfig struct {
	Driver        string `yaml:"driver"` // ffmpeg or replay
	FFmpegPath    string `yaml:"ffmpeg_path"`
	InputFormat   string `yaml:"input_format"`
	AudioFormat   string `yaml:"audio_format"`
	VideoDevice   string `yaml:"video_device"`
	AudioDevice   string `yaml:"audio_device"`
	ReplayFile    string `yaml:"replay_file"`
	ChunkSize     int    `yaml:"chunk_size"` // bytes
	QueueSize     int    `yaml:"queue_size"` // chunks
	ContainerMIME string `yaml:"container_mime"`
	StartTimeout  int    `yaml:"start_timeout"` // seconds to wait for the devices to open
}

// AudioConfig contains extraction and encoding parameters
type AudioConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
	Downmix     string `yaml:"downmix"` // average or first
}

// APIConfig contains the remote speech-analysis service settings
type APIConfig struct {
	BaseURL      string `yaml:"base_url"`
	Timeout      int    `yaml:"timeout"` // seconds
	DefaultTitle string `yaml:"default_title"`
}

// AuthConfig holds the user's credentials for the remote service
type AuthConfig struct {
	Email string `yaml:"email" validate:"omitempty,email"`
	Token string `yaml:"token"`
}

// HTTPConfig contains the local control surface configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that works without a config file
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Driver:        "ffmpeg",
			FFmpegPath:    "ffmpeg",
			InputFormat:   "avfoundation",
			AudioFormat:   "alsa",
			VideoDevice:   "0",
			AudioDevice:   "0",
			ChunkSize:     32 * 1024,
			QueueSize:     64,
			ContainerMIME: "video/mp4",
			StartTimeout:  10,
		},
		Audio: AudioConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			BitrateKbps: 128,
			Downmix:     "average",
		},
		API: APIConfig{
			BaseURL:      "http://127.0.0.1:8000",
			Timeout:      60,
			DefaultTitle: "Practice session",
		},
		HTTP: HTTPConfig{
			Port:    8090,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file over Default, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides credentials from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEmail); ok {
		c.Auth.Email = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Auth.Token = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Driver {
	case "ffmpeg":
		if c.FFmpegPath == "" {
			return fmt.Errorf("ffmpeg_path cannot be empty for the ffmpeg driver")
		}
		if c.InputFormat == "" {
			return fmt.Errorf("input_format cannot be empty for the ffmpeg driver")
		}
		if c.VideoDevice == "" || c.AudioDevice == "" {
			return fmt.Errorf("video_device and audio_device are required for the ffmpeg driver")
		}
	case "replay":
		if c.ReplayFile == "" {
			return fmt.Errorf("replay_file cannot be empty for the replay driver")
		}
	default:
		return fmt.Errorf("driver must be 'ffmpeg' or 'replay', got '%s'", c.Driver)
	}

	if c.ChunkSize < 1024 {
		return fmt.Errorf("chunk_size must be at least 1024 bytes, got %d", c.ChunkSize)
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize)
	}

	if c.ContainerMIME == "" {
		return fmt.Errorf("container_mime cannot be empty")
	}

	if c.StartTimeout < 1 {
		return fmt.Errorf("start_timeout must be at least 1 second, got %d", c.StartTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.FFmpegPath == "" || a.FFprobePath == "" {
		return fmt.Errorf("ffmpeg_path and ffprobe_path cannot be empty")
	}

	if a.BitrateKbps != 128 {
		return fmt.Errorf("bitrate_kbps must be 128, got %d", a.BitrateKbps)
	}

	validDownmix := map[string]bool{"average": true, "first": true}
	if !validDownmix[a.Downmix] {
		return fmt.Errorf("downmix must be 'average' or 'first', got '%s'", a.Downmix)
	}

	return nil
}

// Validate validates API configuration
func (a *APIConfig) Validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

var validate = validator.New()

// Validate checks the email format. Missing credentials are not a config
// error; the session refuses to start without a token instead.
func (a *AuthConfig) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("email %q is not a valid address", a.Email)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// output is stdout, stderr or a file path
	return nil
}

// GetStartTimeoutDuration returns the device start timeout as a time.Duration
func (c *CaptureConfig) GetStartTimeoutDuration() time.Duration {
	return time.Duration(c.StartTimeout) * time.Second
}

// GetTimeoutDuration returns the API timeout as a time.Duration
func (a *APIConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}
