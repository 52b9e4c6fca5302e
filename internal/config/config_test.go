package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Stream, cfg.Stream)
	assert.Equal(t, CommandSocket, cfg.Command.Protocol)
	assert.Equal(t, 10*time.Minute, cfg.Minio.StuckAfter)
}

func TestLoadConfigYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
stream:
  bitrate_kbps: 4000
  max_zoom: 8
  protocol: mpegts
  gcs_ip: 192.168.1.20
  gcs_port: 5601
  drain_timeout: 500ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Stream.BitrateKbps)
	assert.Equal(t, 8.0, cfg.Stream.MaxZoom)
	assert.Equal(t, models.ProtocolMPEGTS, cfg.Stream.Protocol)
	assert.Equal(t, models.Host{IP: "192.168.1.20", Port: 5601}, cfg.Stream.Host())
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.DrainTimeout)
	assert.Equal(t, 30, cfg.Stream.Framerate)
}

func TestLoadConfigEnvWins(t *testing.T) {
	path := writeConfig(t, "stream:\n  bitrate_kbps: 4000\n")
	t.Setenv("BITRATE_KBPS", "6000")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("MINIO_STUCK_AFTER", "5m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Stream.BitrateKbps)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Minio.StuckAfter)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "bad ip", mutate: func(c *Config) { c.Stream.GCSIP = "300.1.1.1"; c.Stream.GCSPort = 5600 }},
		{name: "ip without port", mutate: func(c *Config) { c.Stream.GCSIP = "10.0.0.1"; c.Stream.GCSPort = 0 }},
		{name: "bitrate", mutate: func(c *Config) { c.Stream.BitrateKbps = 100 }},
		{name: "max zoom", mutate: func(c *Config) { c.Stream.MaxZoom = 4 }},
		{name: "protocol", mutate: func(c *Config) { c.Stream.Protocol = "srt" }},
		{name: "command protocol", mutate: func(c *Config) { c.Command.Protocol = "zmq" }},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Command.Protocol = CommandKafka }},
		{name: "command cadence", mutate: func(c *Config) { c.Stream.CommandEvery = 0 }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "stream: [not a map")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
