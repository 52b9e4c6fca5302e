package runner

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/EchoMAV/PiStreamer/internal/camera"
	"github.com/EchoMAV/PiStreamer/internal/config"
	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/stream"
	"github.com/EchoMAV/PiStreamer/internal/transport"
	"github.com/EchoMAV/PiStreamer/internal/zoom"
)

const (
	fpsWindow      = 20
	catalogTimeout = 2 * time.Second
)

var ErrMediaUnavailable = errors.New("media storage unavailable")

type Tracker interface {
	Init(frame *image.RGBA, point image.Point) bool
	Update(frame *image.RGBA) (bool, *image.RGBA)
}

type Stabilizer interface {
	Apply(frame *image.RGBA) *image.RGBA
}

type Dispatcher interface {
	DispatchAll(cmds []models.Command) []error
}

type MediaCatalog interface {
	AddMedia(ctx context.Context, m *models.Media) error
}

type Deps struct {
	Config     config.Stream
	Camera     camera.Device
	Spawner    stream.Spawner
	Transport  transport.Transport
	Tracker    Tracker
	Stabilizer Stabilizer
	// Catalog is optional.
	Catalog MediaCatalog
}

// Runner owns the engine state and runs the frame loop. Everything except
// Status is called from the loop goroutine only.
type Runner struct {
	cfg        config.Stream
	camera     *camera.Session
	zoom       *zoom.Controller
	streams    *stream.Manager
	transport  transport.Transport
	dispatcher Dispatcher
	tracker    Tracker
	stabilizer Stabilizer
	catalog    MediaCatalog
	log        *logrus.Entry
	now        func() time.Time

	streaming camera.Profile
	still     camera.Profile

	track       models.TrackStatus
	poi         image.Point
	stabilize   bool
	gps         json.RawMessage
	misc        json.RawMessage
	labelFrames int
	mediaOK     *bool

	frames      uint64
	fps         float64
	windowStart time.Time

	status atomic.Pointer[Status]
}

// New builds the engine. The router is attached afterwards with SetRouter.
func New(deps Deps) *Runner {
	cfg := deps.Config
	session := camera.NewSession(deps.Camera)

	r := &Runner{
		cfg:        cfg,
		camera:     session,
		zoom:       zoom.New(session, deps.Transport, cfg.MaxZoom, cfg.ZoomRate),
		transport:  deps.Transport,
		tracker:    deps.Tracker,
		stabilizer: deps.Stabilizer,
		catalog:    deps.Catalog,
		log:        logging.For("runner"),
		now:        time.Now,
		streaming:  camera.Profile{Name: "streaming", Resolution: cfg.Resolution, Framerate: cfg.Framerate},
		still:      camera.Profile{Name: "still", Resolution: cfg.StillResolution, Framerate: cfg.Framerate},
		track:      models.TrackNone,
		stabilize:  cfg.Stabilize,
	}
	r.streams = stream.NewManager(
		deps.Spawner,
		stream.Options{
			Resolution:    cfg.Resolution,
			Framerate:     cfg.Framerate,
			Codec:         cfg.Codec,
			RecordBitrate: cfg.RecordBitrate,
		},
		cfg.Host(),
		cfg.BitrateKbps*1000,
		cfg.Protocol,
		cfg.DrainTimeout,
	)
	return r
}

func (r *Runner) SetRouter(d Dispatcher) {
	r.dispatcher = d
}

// Run configures the camera, starts the configured GCS stream and loops until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.dispatcher == nil {
		return errors.New("runner: router not attached")
	}

	if err := r.camera.Configure(r.streaming); err != nil {
		return err
	}
	if err := r.camera.Start(); err != nil {
		return err
	}
	defer r.shutdown()

	if r.streams.Host().IsSet() {
		if err := r.StartGCS(); err != nil {
			r.log.Errorf("failed to start %s stream: %v", r.streams.SelectedGCS(), err)
		}
	}
	if err := r.zoom.SetZoom(r.zoom.Min()); err != nil {
		r.log.Errorf("initial zoom: %v", err)
	}
	r.publishStatus()

	r.log.Info("frame loop started")
	r.windowStart = r.now()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("shutting down")
			return nil
		default:
			r.Step()
		}
	}
}

func (r *Runner) shutdown() {
	if err := r.StopRecording(); err != nil {
		r.log.Errorf("stop recording: %v", err)
	}
	r.streams.Close()
	if err := r.camera.Stop(); err != nil {
		r.log.Errorf("stop camera: %v", err)
	}
	r.publishStatus()
}

// Step runs one iteration of the frame loop.
func (r *Runner) Step() {
	r.camera.Acquire()
	frame, err := r.camera.CaptureFrame()
	r.camera.Release()
	if err != nil {
		if !errors.Is(err, camera.ErrEmptyFrame) {
			r.log.Warnf("capture failed: %v", err)
		}
		return
	}

	r.frames++
	if r.frames%uint64(r.cfg.CommandEvery) == 0 {
		r.processCommands()
	}

	frame = r.updateTracking(frame)

	if r.stabilize && r.stabilizer != nil {
		frame = r.stabilizer.Apply(frame)
	}

	if r.zoom.Zooming() {
		if err := r.zoom.Tick(); err != nil {
			r.log.Errorf("zoom tick: %v", err)
		}
		r.labelFrames = r.cfg.Framerate
	}

	r.fanOut(frame)
	if r.labelFrames > 0 {
		r.labelFrames--
	}
	r.measure()
}

func (r *Runner) processCommands() {
	cmds := r.transport.Poll()
	if len(cmds) > 0 {
		r.dispatcher.DispatchAll(cmds)
	}
	r.publishStatus()
}

func (r *Runner) updateTracking(frame *image.RGBA) *image.RGBA {
	if r.tracker == nil {
		return frame
	}

	switch r.track {
	case models.TrackInit:
		if r.tracker.Init(frame, r.poi) {
			r.track = models.TrackActive
			r.log.Infof("tracking started at %v", r.poi)
		} else {
			r.track = models.TrackStop
			r.log.Warnf("tracking init failed at %v", r.poi)
		}
	case models.TrackActive:
		ok, annotated := r.tracker.Update(frame)
		if !ok {
			r.track = models.TrackStop
			r.log.Info("tracking lost")
			return frame
		}
		return annotated
	}
	return frame
}

// fanOut writes the plain frame to the recording and an annotated copy to the GCS stream.
func (r *Runner) fanOut(frame *image.RGBA) {
	if r.streams.IsStreaming(stream.KindRecord) {
		if err := r.streams.Write(stream.KindRecord, frame.Pix); err != nil {
			r.log.Debugf("record write: %v", err)
		}
	}

	kind, ok := r.streams.ActiveGCS()
	if !ok {
		return
	}

	out := frame
	_, started, recording := r.streams.Recording()
	if r.labelFrames > 0 || recording {
		out = cloneRGBA(frame)
		if r.labelFrames > 0 {
			drawZoomLabel(out, r.zoom.Level())
		}
		if recording {
			drawRecIndicator(out, r.now().Sub(started))
		}
	}

	if err := r.streams.Write(kind, out.Pix); err != nil {
		r.log.Debugf("%s write: %v", kind, err)
	}
}

func (r *Runner) measure() {
	if r.frames%fpsWindow != 0 {
		return
	}
	now := r.now()
	if !r.windowStart.IsZero() {
		if elapsed := now.Sub(r.windowStart).Seconds(); elapsed > 0 {
			r.fps = fpsWindow / elapsed
			r.log.Debugf("fps %.1f", r.fps)
		}
	}
	r.windowStart = now
}

func (r *Runner) mediaAvailable() bool {
	if r.mediaOK == nil {
		ok := checkMediaDir(r.cfg.MediaDir)
		if !ok {
			r.log.Warnf("media directory %s is not writable, recording and photos disabled", r.cfg.MediaDir)
		}
		r.mediaOK = &ok
	}
	return *r.mediaOK
}

func checkMediaDir(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(dir, unix.W_OK) == nil
}

func (r *Runner) timestamp() string {
	return r.now().Format("2006-01-02_15-04-05")
}

func (r *Runner) catalogMedia(kind models.MediaKind, path string) {
	if r.catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	m := &models.Media{
		Kind:      kind,
		Path:      path,
		Status:    models.MediaPending,
		GPS:       r.gps,
		Misc:      r.misc,
		CreatedAt: r.now().UTC(),
	}
	if err := r.catalog.AddMedia(ctx, m); err != nil {
		r.log.Errorf("failed to catalog %s %s: %v", kind, path, err)
		return
	}
	r.log.Infof("catalogued %s %s as %s", kind, path, m.ID)
}
