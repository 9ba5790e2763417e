// ABOUTME: Server configuration
// ABOUTME: YAML file with defaults, validated per section
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Audio     audio.Format    `yaml:"audio"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener and local integrations
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	EnableMDNS      bool          `yaml:"enable_mdns"`
	UseTUI          bool          `yaml:"tui"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// StorageConfig locates the container archives
type StorageConfig struct {
	StreamsDir    string `yaml:"streams_dir"`
	RecordingsDir string `yaml:"recordings_dir"`
	// PublicDir holds the dashboard's static files; empty disables serving
	PublicDir string `yaml:"public_dir"`
}

// WebSocketConfig tunes per-connection transport behavior
type WebSocketConfig struct {
	SendBuffer      int           `yaml:"send_buffer"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// RedisConfig enables relaying lifecycle events over Redis pub/sub
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			EnableMDNS:      true,
			ShutdownTimeout: 5 * time.Second,
			MaxUploadBytes:  512 << 20,
		},
		Storage: StorageConfig{
			StreamsDir:    "streams",
			RecordingsDir: "recordings",
			PublicDir:     "public",
		},
		Audio: audio.LiveFormat,
		WebSocket: WebSocketConfig{
			SendBuffer:      256,
			WriteTimeout:    10 * time.Second,
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			MaxMessageBytes: 1 << 20,
		},
		Redis: RedisConfig{
			Channel: "micstream:events",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "micstream-server.log",
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.WebSocket.Validate(); err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	return nil
}

// Validate checks the listener settings
func (s *ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", s.ShutdownTimeout)
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", s.MaxUploadBytes)
	}
	return nil
}

// Validate checks the archive locations
func (s *StorageConfig) Validate() error {
	if s.StreamsDir == "" {
		return fmt.Errorf("streams_dir is required")
	}
	if s.RecordingsDir == "" {
		return fmt.Errorf("recordings_dir is required")
	}
	if s.StreamsDir == s.RecordingsDir {
		return fmt.Errorf("streams_dir and recordings_dir must differ")
	}
	return nil
}

// Validate checks the transport tuning
func (w *WebSocketConfig) Validate() error {
	if w.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", w.SendBuffer)
	}
	if w.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", w.WriteTimeout)
	}
	if w.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive, got %v", w.PingInterval)
	}
	if w.ReadTimeout != 0 && w.ReadTimeout <= w.PingInterval {
		return fmt.Errorf("read_timeout (%v) must exceed ping_interval (%v)", w.ReadTimeout, w.PingInterval)
	}
	if w.MaxMessageBytes < 0 {
		return fmt.Errorf("max_message_bytes must not be negative, got %d", w.MaxMessageBytes)
	}
	return nil
}

// Validate checks the relay settings
func (r *RedisConfig) Validate() error {
	if r.URL != "" && r.Channel == "" {
		return fmt.Errorf("channel is required when url is set")
	}
	return nil
}
