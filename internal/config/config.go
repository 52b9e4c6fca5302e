package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/validate"
)

const DefaultPath = "internal/config/local.yaml"

const (
	CommandSocket = "socket"
	CommandPipe   = "pipe"
	CommandKafka  = "kafka"
)

// Config структура конфига
type Config struct {
	Stream  Stream  `yaml:"stream"`
	Camera  Camera  `yaml:"camera"`
	Command Command `yaml:"command"`

	Kafka struct {
		Brokers        []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID        string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		CommandTopic   string   `yaml:"command_topic" env:"KAFKA_COMMAND_TOPIC"`
		TelemetryTopic string   `yaml:"telemetry_topic" env:"KAFKA_TELEMETRY_TOPIC"`
	} `yaml:"kafka"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Minio struct {
		Endpoint       string        `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey      string        `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey      string        `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Secure         bool          `yaml:"secure" env:"MINIO_SECURE"`
		Bucket         string        `yaml:"bucket" env:"MINIO_BUCKET"`
		UploadInterval time.Duration `yaml:"upload_interval" env:"MINIO_UPLOAD_INTERVAL"`
		StuckAfter     time.Duration `yaml:"stuck_after" env:"MINIO_STUCK_AFTER"`
	} `yaml:"minio"`

	API struct {
		Listen string `yaml:"listen" env:"API_LISTEN"`
	} `yaml:"api"`

	Log struct {
		Level   string `yaml:"level" env:"LOG_LEVEL"`
		Verbose bool   `yaml:"verbose" env:"VERBOSE"`
	} `yaml:"log"`
}

type Stream struct {
	Resolution      models.Resolution `yaml:"resolution"`
	StillResolution models.Resolution `yaml:"still_resolution"`
	Framerate       int               `yaml:"framerate" env:"FRAMERATE"`
	BitrateKbps     int               `yaml:"bitrate_kbps" env:"BITRATE_KBPS"`
	RecordBitrate   string            `yaml:"record_bitrate" env:"RECORD_BITRATE"`
	MaxZoom         float64           `yaml:"max_zoom" env:"MAX_ZOOM"`
	ZoomRate        float64           `yaml:"zoom_rate" env:"ZOOM_RATE"`
	Protocol        models.Protocol   `yaml:"protocol" env:"STREAMING_PROTOCOL"`
	GCSIP           string            `yaml:"gcs_ip" env:"GCS_IP"`
	GCSPort         int               `yaml:"gcs_port" env:"GCS_PORT"`
	Stabilize       bool              `yaml:"stabilize" env:"STABILIZE"`
	CommandEvery    int               `yaml:"command_every" env:"COMMAND_EVERY"`
	MediaDir        string            `yaml:"media_dir" env:"MEDIA_DIR"`
	Encoder         string            `yaml:"encoder" env:"ENCODER_PATH"`
	Codec           string            `yaml:"codec" env:"ENCODER_CODEC"`
	DrainTimeout    time.Duration     `yaml:"drain_timeout" env:"ENCODER_DRAIN_TIMEOUT"`
}

// Host returns the configured GCS destination, which may be unset.
func (s Stream) Host() models.Host {
	return models.Host{IP: s.GCSIP, Port: s.GCSPort}
}

type Camera struct {
	FFmpeg string `yaml:"ffmpeg" env:"CAMERA_FFMPEG"`
	Input  string `yaml:"input" env:"CAMERA_INPUT"`
	Format string `yaml:"format" env:"CAMERA_FORMAT"`
}

type Command struct {
	Protocol        string `yaml:"protocol" env:"COMMAND_PROTOCOL"`
	SocketListen    string `yaml:"socket_listen" env:"COMMAND_SOCKET_LISTEN"`
	SocketTelemetry string `yaml:"socket_telemetry" env:"COMMAND_SOCKET_TELEMETRY"`
	PipeInput       string `yaml:"pipe_input" env:"COMMAND_PIPE_INPUT"`
	PipeOutput      string `yaml:"pipe_output" env:"COMMAND_PIPE_OUTPUT"`
}

// Default returns the payload defaults used when a key is missing from the file.
func Default() *Config {
	cfg := &Config{
		Stream: Stream{
			Resolution:      models.Resolution{Width: 1280, Height: 720},
			StillResolution: models.Resolution{Width: 4056, Height: 3040},
			Framerate:       30,
			BitrateKbps:     2000,
			RecordBitrate:   "1M",
			MaxZoom:         16.0,
			ZoomRate:        1.65,
			Protocol:        models.ProtocolRTP,
			CommandEvery:    2,
			MediaDir:        "/mnt/external",
			Encoder:         "ffmpeg",
			Codec:           "h264_v4l2m2m",
			DrainTimeout:    3 * time.Second,
		},
		Camera: Camera{
			FFmpeg: "ffmpeg",
			Input:  "/dev/video0",
			Format: "v4l2",
		},
		Command: Command{
			Protocol:        CommandSocket,
			SocketListen:    "0.0.0.0:54321",
			SocketTelemetry: "localhost:54322",
			PipeInput:       "/tmp/pistreamer_cmd",
			PipeOutput:      "/tmp/pistreamer_telemetry",
		},
	}
	cfg.Kafka.GroupID = "pistreamer"
	cfg.Kafka.CommandTopic = "pistreamer-commands"
	cfg.Kafka.TelemetryTopic = "pistreamer-telemetry"
	cfg.Minio.Bucket = "media"
	cfg.Minio.UploadInterval = 30 * time.Second
	cfg.Minio.StuckAfter = 10 * time.Minute
	cfg.API.Listen = ":8002"
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig reads YAML over the defaults, then applies environment overrides.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	// Читаем YAML
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// Парсим переменные окружения с приоритетом
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the runtime command checks to the startup values.
func (c *Config) Validate() error {
	s := c.Stream
	if s.GCSIP != "" {
		if _, err := validate.IP(s.GCSIP); err != nil {
			return fmt.Errorf("stream.gcs_ip: %w", err)
		}
		if err := validate.CheckPort(s.GCSPort); err != nil {
			return fmt.Errorf("stream.gcs_port: %w", err)
		}
	}
	if err := validate.CheckBitrate(s.BitrateKbps); err != nil {
		return fmt.Errorf("stream.bitrate_kbps: %w", err)
	}
	if err := validate.CheckMaxZoom(s.MaxZoom); err != nil {
		return fmt.Errorf("stream.max_zoom: %w", err)
	}
	if _, err := validate.Protocol(string(s.Protocol)); err != nil {
		return fmt.Errorf("stream.protocol: %w", err)
	}
	if s.Framerate <= 0 {
		return fmt.Errorf("stream.framerate must be positive, got %d", s.Framerate)
	}
	if s.CommandEvery <= 0 {
		return fmt.Errorf("stream.command_every must be positive, got %d", s.CommandEvery)
	}
	if s.ZoomRate <= 0 {
		return fmt.Errorf("stream.zoom_rate must be positive, got %v", s.ZoomRate)
	}
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return fmt.Errorf("stream.resolution must be positive, got %s", s.Resolution)
	}

	switch c.Command.Protocol {
	case CommandSocket, CommandPipe:
	case CommandKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers required for kafka command protocol")
		}
	default:
		return fmt.Errorf("command.protocol: unsupported %q", c.Command.Protocol)
	}
	return nil
}
