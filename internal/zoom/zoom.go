// Package zoom keeps the digital zoom level and drives continuous zoom holds.
package zoom

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

const (
	MinZoom     = 1.0
	DefaultMax  = 16.0
	DefaultRate = 1.65
)

// Cropper is the capture side of the zoom: a fixed reference crop and a settable window.
type Cropper interface {
	ReferenceCrop() models.Rect
	SetCrop(rect models.Rect) error
}

type Notifier interface {
	Send(event string)
}

type Controller struct {
	cropper  Cropper
	notifier Notifier
	log      *logrus.Entry
	now      func() time.Time

	// level is the unrounded accumulator; current is what was applied.
	level    float64
	current  float64
	min      float64
	max      float64
	rate     float64
	status   models.ZoomStatus
	lastTick time.Time
}

func New(cropper Cropper, notifier Notifier, maxZoom, rate float64) *Controller {
	if maxZoom < MinZoom {
		maxZoom = DefaultMax
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Controller{
		cropper:  cropper,
		notifier: notifier,
		log:      logging.For("zoom"),
		now:      time.Now,
		level:    MinZoom,
		current:  MinZoom,
		min:      MinZoom,
		max:      maxZoom,
		rate:     rate,
		status:   models.ZoomStop,
	}
}

// Crop centers a 16:9 window of width ref.Width/factor inside the reference crop.
func Crop(ref models.Rect, factor float64) models.Rect {
	w := int(float64(ref.Width) / factor)
	h := int(float64(w) * 9 / 16)
	return models.Rect{
		X:      ref.X + (ref.Width-w)/2,
		Y:      ref.Y + (ref.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (c *Controller) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return c.min
	}
	return math.Min(math.Max(v, c.min), c.max)
}

// SetZoom clamps, applies the crop and reports the new level.
func (c *Controller) SetZoom(level float64) error {
	c.level = c.clamp(level)
	c.current = round2(c.level)

	rect := Crop(c.cropper.ReferenceCrop(), c.current)
	if err := c.cropper.SetCrop(rect); err != nil {
		return fmt.Errorf("failed to apply zoom %.2f: %w", c.current, err)
	}

	c.log.Debugf("zoom %.2f crop %+v", c.current, rect)
	if c.notifier != nil {
		c.notifier.Send(fmt.Sprintf("zoomLevel %.2f", c.current))
	}
	return nil
}

// Apply re-applies the current level, e.g. after the capture profile changed.
func (c *Controller) Apply() error {
	return c.SetZoom(c.level)
}

// SetStatus starts or ends a continuous hold. Stop forgets the tick reference.
func (c *Controller) SetStatus(status models.ZoomStatus) {
	c.status = status
	if status == models.ZoomStop {
		c.lastTick = time.Time{}
	}
}

// SetMax changes the ceiling and resets the zoom to the minimum.
func (c *Controller) SetMax(maxZoom float64) error {
	c.max = maxZoom
	c.SetStatus(models.ZoomStop)
	return c.SetZoom(c.min)
}

// Tick advances a continuous hold by rate*elapsed. The first tick after a
// status change only records the reference time. Hitting a bound ends the hold.
func (c *Controller) Tick() error {
	if c.status == models.ZoomStop {
		return nil
	}

	now := c.now()
	if c.lastTick.IsZero() {
		c.lastTick = now
		return nil
	}

	elapsedMs := float64(now.Sub(c.lastTick)) / float64(time.Millisecond)
	c.lastTick = now
	delta := c.rate * elapsedMs / 1000

	next := c.level
	if c.status == models.ZoomIn {
		next += delta
	} else {
		next -= delta
	}

	if next >= c.max || next <= c.min {
		next = c.clamp(next)
		c.SetStatus(models.ZoomStop)
	}
	if next == c.level {
		return nil
	}
	return c.SetZoom(next)
}

func (c *Controller) Level() float64            { return c.current }
func (c *Controller) Min() float64              { return c.min }
func (c *Controller) Max() float64              { return c.max }
func (c *Controller) Status() models.ZoomStatus { return c.status }

// Zooming reports whether a continuous hold is active.
func (c *Controller) Zooming() bool {
	return c.status != models.ZoomStop
}
