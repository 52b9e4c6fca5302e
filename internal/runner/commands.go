package runner

import (
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/stream"
)

// The methods below implement router.Engine.

// SetZoom applies an absolute level and ends any continuous hold.
func (r *Runner) SetZoom(level float64) error {
	r.zoom.SetStatus(models.ZoomStop)
	r.labelFrames = r.cfg.Framerate
	return r.zoom.SetZoom(level)
}

func (r *Runner) SetZoomStatus(status models.ZoomStatus) {
	r.zoom.SetStatus(status)
}

func (r *Runner) SetMaxZoom(maxZoom float64) error {
	r.labelFrames = r.cfg.Framerate
	return r.zoom.SetMax(maxZoom)
}

func (r *Runner) Reconfigure(change stream.Change) error {
	return r.streams.Reconfigure(change)
}

// StartGCS starts the stream selected by the current protocol.
func (r *Runner) StartGCS() error {
	return r.streams.Start(r.streams.SelectedGCS())
}

func (r *Runner) StopGCS() {
	if kind, ok := r.streams.ActiveGCS(); ok {
		r.streams.Stop(kind)
	}
}

func (r *Runner) StartRecording(fileName string) error {
	if !r.mediaAvailable() {
		return ErrMediaUnavailable
	}
	if r.streams.IsStreaming(stream.KindRecord) {
		return nil
	}
	if fileName == "" {
		fileName = r.timestamp() + ".ts"
	}
	return r.streams.StartRecording(filepath.Join(r.cfg.MediaDir, fileName))
}

func (r *Runner) StopRecording() error {
	path, _, recording := r.streams.Recording()
	if !recording {
		return nil
	}
	r.streams.Stop(stream.KindRecord)
	r.catalogMedia(models.MediaVideo, path)
	return nil
}

// TakePhoto captures one frame at the still profile and restores streaming.
// Without an active GCS stream it does nothing. The camera is held for the whole sequence.
func (r *Runner) TakePhoto(fileName string) error {
	if _, ok := r.streams.ActiveGCS(); !ok {
		r.log.Info("take_photo ignored, gcs stream not active")
		return nil
	}
	if !r.mediaAvailable() {
		return ErrMediaUnavailable
	}
	if fileName == "" {
		fileName = r.timestamp() + ".jpg"
	}
	path := filepath.Join(r.cfg.MediaDir, fileName)

	frame, err := r.captureStill()
	if err != nil {
		return err
	}
	if err := writeJPEG(path, frame); err != nil {
		return err
	}

	r.log.Infof("photo saved to %s", path)
	r.catalogMedia(models.MediaPhoto, path)
	return nil
}

func (r *Runner) captureStill() (*image.RGBA, error) {
	r.camera.Acquire()
	defer r.camera.Release()

	switched := r.still.Resolution != r.streaming.Resolution
	if switched {
		if err := r.camera.Configure(r.still); err != nil {
			return nil, err
		}
		if err := r.zoom.Apply(); err != nil {
			r.log.Errorf("zoom on still profile: %v", err)
		}
	}

	frame, captureErr := r.camera.CaptureFrame()

	if switched {
		if err := r.camera.Configure(r.streaming); err != nil {
			return nil, fmt.Errorf("failed to restore streaming profile: %w", err)
		}
		if err := r.zoom.Apply(); err != nil {
			r.log.Errorf("zoom on streaming profile: %v", err)
		}
	}

	if captureErr != nil {
		return nil, fmt.Errorf("still capture: %w", captureErr)
	}
	return frame, nil
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func (r *Runner) SetStabilize(enabled bool) {
	if enabled && !r.stabilize {
		if s, ok := r.stabilizer.(interface{ Reset() }); ok {
			s.Reset()
		}
	}
	r.stabilize = enabled
}

func (r *Runner) InitTracking(point image.Point) {
	r.poi = point
	r.track = models.TrackInit
}

func (r *Runner) StopTracking() {
	r.track = models.TrackNone
}

func (r *Runner) SetGPSData(data json.RawMessage) {
	r.gps = data
}

func (r *Runner) SetMiscData(data json.RawMessage) {
	r.misc = data
}
