package models

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

type CommandType string

const (
	CommandZoom              CommandType = "zoom"
	CommandMaxZoom           CommandType = "max_zoom"
	CommandBitrate           CommandType = "bitrate"
	CommandRecord            CommandType = "record"
	CommandStopRecording     CommandType = "stop_recording"
	CommandTakePhoto         CommandType = "take_photo"
	CommandStabilize         CommandType = "stabilize"
	CommandGCSHost           CommandType = "gcs_host"
	CommandGCSIP             CommandType = "gcs_ip"
	CommandGCSPort           CommandType = "gcs_port"
	CommandStartGCSStream    CommandType = "start_gcs_stream"
	CommandStopGCSStream     CommandType = "stop_gcs_stream"
	CommandStreamingProtocol CommandType = "streaming_protocol"
	CommandInitTrackingPOI   CommandType = "init_tracking_poi"
	CommandStopTracking      CommandType = "stop_tracking"
	CommandGPSData           CommandType = "gps_data"
	CommandMiscData          CommandType = "misc_data"
)

// Command is one tokenized control line.
type Command struct {
	Type  CommandType `json:"type"`
	Value string      `json:"value"`
}

type ZoomStatus string

const (
	ZoomStop ZoomStatus = "stop"
	ZoomIn   ZoomStatus = "in"
	ZoomOut  ZoomStatus = "out"
)

type TrackStatus string

const (
	TrackNone   TrackStatus = "none"
	TrackInit   TrackStatus = "init"
	TrackActive TrackStatus = "active"
	TrackStop   TrackStatus = "stop"
)

type Protocol string

const (
	ProtocolRTP    Protocol = "rtp"
	ProtocolMPEGTS Protocol = "mpegts"
)

// Host is a GCS destination. Empty IP means no destination configured.
type Host struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

func (h Host) String() string {
	return net.JoinHostPort(h.IP, strconv.Itoa(h.Port))
}

func (h Host) IsSet() bool {
	return h.IP != "" && h.Port > 0
}

// Rect is a crop window in sensor pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Resolution struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaPhoto MediaKind = "photo"
)

type MediaStatus string

const (
	MediaPending   MediaStatus = "pending"
	MediaUploading MediaStatus = "uploading"
	MediaUploaded  MediaStatus = "uploaded"
	MediaFailed    MediaStatus = "failed"
)

// Media is a catalogued recording or photo waiting for offload.
type Media struct {
	ID         string          `json:"id"`
	Kind       MediaKind       `json:"kind"`
	Path       string          `json:"path"`
	Status     MediaStatus     `json:"status"`
	GPS        json.RawMessage `json:"gps,omitempty"`
	Misc       json.RawMessage `json:"misc,omitempty"`
	URL        string          `json:"url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UploadedAt *time.Time      `json:"uploaded_at,omitempty"`
}

// IsValidMediaTransition проверяет допустимость перехода между статусами
func IsValidMediaTransition(current, next MediaStatus) bool {
	transitions := map[MediaStatus][]MediaStatus{
		MediaPending:   {MediaUploading},
		MediaUploading: {MediaUploaded, MediaFailed, MediaPending}, // pending: сброс зависшей выгрузки
		MediaFailed:    {MediaPending},
	}

	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}
