package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, audio.LiveFormat, cfg.Audio)
	assert.Equal(t, "streams", cfg.Storage.StreamsDir)
	assert.Equal(t, "recordings", cfg.Storage.RecordingsDir)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  name: studio
  enable_mdns: false
storage:
  streams_dir: /var/lib/micstream/streams
websocket:
  send_buffer: 64
  write_timeout: 2s
  read_timeout: 90s
redis:
  url: redis://localhost:6379/0
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "studio", cfg.Server.Name)
	assert.False(t, cfg.Server.EnableMDNS)
	assert.Equal(t, "/var/lib/micstream/streams", cfg.Storage.StreamsDir)
	assert.Equal(t, "recordings", cfg.Storage.RecordingsDir, "unset keys keep their defaults")
	assert.Equal(t, 64, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 2*time.Second, cfg.WebSocket.WriteTimeout)
	assert.Equal(t, 90*time.Second, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, "micstream:events", cfg.Redis.Channel)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{"bad yaml", "server: [", "failed to parse"},
		{"bad port", "server:\n  port: 70000\n", "port must be between"},
		{"bad bit depth", "audio:\n  bit_depth: 12\n", "audio config"},
		{"same dirs", "storage:\n  streams_dir: x\n  recordings_dir: x\n", "must differ"},
		{"read timeout too short", "websocket:\n  ping_interval: 30s\n  read_timeout: 10s\n", "must exceed"},
		{"redis without channel", "redis:\n  url: redis://localhost\n  channel: \"\"\n", "channel is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
