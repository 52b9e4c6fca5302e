package runner

import (
	"time"

	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/stream"
)

// Status is a point-in-time copy of the engine state, safe to read from any goroutine.
type Status struct {
	Zoom       float64            `json:"zoom"`
	MaxZoom    float64            `json:"max_zoom"`
	ZoomStatus models.ZoomStatus  `json:"zoom_status"`
	Tracking   models.TrackStatus `json:"tracking"`
	Stabilize  bool               `json:"stabilize"`
	Protocol   models.Protocol    `json:"protocol"`
	Streams    []stream.Status    `json:"streams"`
	FPS        float64            `json:"fps"`
	Frames     uint64             `json:"frames"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (r *Runner) publishStatus() {
	r.status.Store(&Status{
		Zoom:       r.zoom.Level(),
		MaxZoom:    r.zoom.Max(),
		ZoomStatus: r.zoom.Status(),
		Tracking:   r.track,
		Stabilize:  r.stabilize,
		Protocol:   r.streams.Protocol(),
		Streams:    r.streams.Snapshot(),
		FPS:        r.fps,
		Frames:     r.frames,
		UpdatedAt:  r.now().UTC(),
	})
}

// Status returns the last published snapshot.
func (r *Runner) Status() Status {
	if s := r.status.Load(); s != nil {
		return *s
	}
	return Status{}
}
