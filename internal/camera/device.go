package camera

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/image/draw"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

// ProcessDevice captures raw RGBA frames from an ffmpeg child process and
// applies the zoom crop in software.
type ProcessDevice struct {
	Binary string
	Input  string
	Format string

	profile models.Resolution
	rate    int
	crop    models.Rect
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	raw     *image.RGBA
}

func NewProcessDevice(binary, input, format string) *ProcessDevice {
	return &ProcessDevice{Binary: binary, Input: input, Format: format}
}

func (d *ProcessDevice) Configure(p Profile) error {
	if p.Resolution.Width <= 0 || p.Resolution.Height <= 0 {
		return fmt.Errorf("invalid resolution %s", p.Resolution)
	}
	d.profile = p.Resolution
	d.rate = p.Framerate
	d.crop = d.ReferenceCrop()
	d.raw = image.NewRGBA(image.Rect(0, 0, p.Resolution.Width, p.Resolution.Height))
	return nil
}

func (d *ProcessDevice) args() []string {
	return []string{
		"-loglevel", "error",
		"-f", d.Format,
		"-framerate", strconv.Itoa(d.rate),
		"-video_size", d.profile.String(),
		"-i", d.Input,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", d.profile.String(),
		"-",
	}
}

func (d *ProcessDevice) Start() error {
	if d.raw == nil {
		return errors.New("camera not configured")
	}
	cmd := exec.Command(d.Binary, d.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	d.cmd = cmd
	d.stdout = stdout
	return nil
}

func (d *ProcessDevice) Stop() error {
	if d.cmd == nil {
		return nil
	}
	cmd := d.cmd
	d.cmd = nil
	d.stdout = nil

	if cmd.Process != nil {
		syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return err
		}
	}
	return nil
}

func (d *ProcessDevice) CaptureFrame() (*image.RGBA, error) {
	if d.stdout == nil {
		return nil, ErrEmptyFrame
	}
	return readFrame(d.stdout, d.raw, d.crop)
}

// ReferenceCrop is the full frame of the configured profile.
func (d *ProcessDevice) ReferenceCrop() models.Rect {
	return models.Rect{Width: d.profile.Width, Height: d.profile.Height}
}

func (d *ProcessDevice) SetCrop(rect models.Rect) error {
	bounds := image.Rect(0, 0, d.profile.Width, d.profile.Height)
	r := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).Intersect(bounds)
	if r.Empty() {
		return fmt.Errorf("crop %+v outside frame %s", rect, d.profile)
	}
	d.crop = models.Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
	return nil
}

// readFrame reads one raw frame into buf and scales the crop window back to full size.
func readFrame(r io.Reader, buf *image.RGBA, crop models.Rect) (*image.RGBA, error) {
	if _, err := io.ReadFull(r, buf.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEmptyFrame
		}
		return nil, err
	}

	bounds := buf.Bounds()
	out := image.NewRGBA(bounds)
	src := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height)
	if src == bounds {
		copy(out.Pix, buf.Pix)
		return out, nil
	}
	draw.ApproxBiLinear.Scale(out, bounds, buf, src, draw.Src, nil)
	return out, nil
}
