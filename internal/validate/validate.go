// Package validate holds the value checks shared by command dispatch and startup configuration.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"net/netip"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

const (
	MinBitrateKbps = 500
	MaxBitrateKbps = 10000
	MinMaxZoom     = 8.0
	MaxMaxZoom     = 16.0
	MinPort        = 1
	MaxPort        = 65535
)

var ErrEmpty = errors.New("value is required")

func IP(value string) (string, error) {
	if value == "" {
		return "", ErrEmpty
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return "", fmt.Errorf("not an ip address: %q", value)
	}
	return addr.String(), nil
}

func Port(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("port is not an integer: %q", value)
	}
	return port, CheckPort(port)
}

func CheckPort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range [%d, %d]", port, MinPort, MaxPort)
	}
	return nil
}

// Host parses "ip:port", splitting at the first colon.
func Host(value string) (models.Host, error) {
	rawIP, rawPort, ok := strings.Cut(value, ":")
	if !ok {
		return models.Host{}, fmt.Errorf("host must be ip:port, got %q", value)
	}
	ip, err := IP(rawIP)
	if err != nil {
		return models.Host{}, err
	}
	port, err := Port(rawPort)
	if err != nil {
		return models.Host{}, err
	}
	return models.Host{IP: ip, Port: port}, nil
}

// Bitrate parses a kbps value and returns bits per second.
func Bitrate(value string) (int, error) {
	kbps, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("bitrate is not an integer: %q", value)
	}
	if err := CheckBitrate(kbps); err != nil {
		return 0, err
	}
	return kbps * 1000, nil
}

func CheckBitrate(kbps int) error {
	if kbps < MinBitrateKbps || kbps > MaxBitrateKbps {
		return fmt.Errorf("bitrate %d kbps out of range [%d, %d]", kbps, MinBitrateKbps, MaxBitrateKbps)
	}
	return nil
}

func MaxZoom(value string) (float64, error) {
	zoom, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("max zoom is not a number: %q", value)
	}
	return zoom, CheckMaxZoom(zoom)
}

func CheckMaxZoom(zoom float64) error {
	if zoom < MinMaxZoom || zoom > MaxMaxZoom {
		return fmt.Errorf("max zoom %.2f out of range [%.1f, %.1f]", zoom, MinMaxZoom, MaxMaxZoom)
	}
	return nil
}

// Zoom accepts either an absolute level or one of in/out/stop.
// Exactly one of the returned level and status is meaningful.
func Zoom(value string) (float64, models.ZoomStatus, error) {
	switch status := models.ZoomStatus(strings.ToLower(value)); status {
	case models.ZoomIn, models.ZoomOut, models.ZoomStop:
		return 0, status, nil
	}
	level, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, "", fmt.Errorf("zoom must be a number or in/out/stop, got %q", value)
	}
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return 0, "", fmt.Errorf("zoom must be finite, got %q", value)
	}
	return level, "", nil
}

func Protocol(value string) (models.Protocol, error) {
	switch p := models.Protocol(strings.ToLower(value)); p {
	case models.ProtocolRTP, models.ProtocolMPEGTS:
		return p, nil
	}
	return "", fmt.Errorf("unsupported streaming protocol %q", value)
}

// Point parses "x,y" integer pixel coordinates.
func Point(value string) (image.Point, error) {
	rawX, rawY, ok := strings.Cut(value, ",")
	if !ok {
		return image.Point{}, fmt.Errorf("point must be x,y, got %q", value)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(rawX))
	y, errY := strconv.Atoi(strings.TrimSpace(rawY))
	if errX != nil || errY != nil {
		return image.Point{}, fmt.Errorf("point coordinates must be integers, got %q", value)
	}
	if x < 0 || y < 0 {
		return image.Point{}, fmt.Errorf("point coordinates must not be negative, got %q", value)
	}
	return image.Pt(x, y), nil
}

// Toggle parses start/stop.
func Toggle(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "start":
		return true, nil
	case "stop":
		return false, nil
	}
	return false, fmt.Errorf("expected start or stop, got %q", value)
}

// FileName accepts an empty value or a bare file name without directories.
func FileName(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if filepath.Base(value) != value || value == "." || value == ".." {
		return "", fmt.Errorf("file name must not contain a path: %q", value)
	}
	return value, nil
}

func JSON(value string) (json.RawMessage, error) {
	if !json.Valid([]byte(value)) {
		return nil, fmt.Errorf("value is not valid json")
	}
	return json.RawMessage(value), nil
}
