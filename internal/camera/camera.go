// Package camera owns the capture device and its per-configuration reference crop.
package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

// ErrEmptyFrame is a transient capture miss; the caller skips the iteration.
var ErrEmptyFrame = errors.New("empty frame")

type Profile struct {
	Name       string
	Resolution models.Resolution
	Framerate  int
}

type Device interface {
	Configure(p Profile) error
	Start() error
	Stop() error
	CaptureFrame() (*image.RGBA, error)
	ReferenceCrop() models.Rect
	SetCrop(rect models.Rect) error
}

// Session wraps a device and remembers its reference crop, captured once per
// configuration. The hardware lock serializes capture against multi-step
// sequences such as a still capture when capture and recording share the device.
type Session struct {
	dev     Device
	profile Profile
	ref     models.Rect
	running bool
	hw      sync.Mutex
	log     *logrus.Entry
}

func NewSession(dev Device) *Session {
	return &Session{dev: dev, log: logging.For("camera")}
}

// Acquire takes the hardware lock.
func (s *Session) Acquire() { s.hw.Lock() }

func (s *Session) Release() { s.hw.Unlock() }

// Configure applies a profile, restarting the device if it was running.
func (s *Session) Configure(p Profile) error {
	wasRunning := s.running
	if wasRunning {
		if err := s.Stop(); err != nil {
			return err
		}
	}

	if err := s.dev.Configure(p); err != nil {
		return fmt.Errorf("failed to configure camera for %s: %w", p.Name, err)
	}
	s.profile = p
	s.ref = s.dev.ReferenceCrop()
	s.log.Infof("configured %s profile %s@%d, reference crop %+v", p.Name, p.Resolution, p.Framerate, s.ref)

	if wasRunning {
		return s.Start()
	}
	return nil
}

func (s *Session) Start() error {
	if s.running {
		return nil
	}
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("failed to start camera: %w", err)
	}
	s.running = true
	return nil
}

func (s *Session) Stop() error {
	if !s.running {
		return nil
	}
	s.running = false
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("failed to stop camera: %w", err)
	}
	return nil
}

func (s *Session) CaptureFrame() (*image.RGBA, error) {
	frame, err := s.dev.CaptureFrame()
	if err != nil {
		return nil, err
	}
	if frame == nil || len(frame.Pix) == 0 {
		return nil, ErrEmptyFrame
	}
	return frame, nil
}

func (s *Session) ReferenceCrop() models.Rect { return s.ref }

func (s *Session) SetCrop(rect models.Rect) error {
	return s.dev.SetCrop(rect)
}

func (s *Session) Profile() Profile { return s.profile }
