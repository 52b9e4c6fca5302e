package transport

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

// Pipe reads commands from a named FIFO and writes telemetry to another.
// The input FIFO is opened read-write so it never reports EOF when writers come and go.
type Pipe struct {
	input      *os.File
	outputPath string
	lines      chan string
	events     *eventQueue
	log        *logrus.Entry
}

func NewPipe(inputPath, outputPath string) (*Pipe, error) {
	for _, path := range []string{inputPath, outputPath} {
		if err := ensureFIFO(path); err != nil {
			return nil, err
		}
	}

	input, err := os.OpenFile(inputPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open command pipe %s: %w", inputPath, err)
	}

	p := &Pipe{
		input:      input,
		outputPath: outputPath,
		lines:      make(chan string, lineBuffer),
		log:        logging.For("pipe-transport"),
	}
	p.events = newEventQueue(telemetryBuffer, p.sendTelemetry, p.log)

	go scanLines(input, p.lines, p.log)
	p.log.Infof("reading commands from %s", inputPath)
	return p, nil
}

func ensureFIFO(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("%s exists and is not a named pipe", path)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	if err := unix.Mkfifo(path, 0o660); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("failed to create pipe %s: %w", path, err)
	}
	return nil
}

func (p *Pipe) Poll() []models.Command {
	return drainLines(p.lines)
}

func (p *Pipe) Send(event string) {
	p.events.push(event)
}

// sendTelemetry opens the output FIFO without blocking; with no reader attached
// the open fails with ENXIO and the event is dropped.
func (p *Pipe) sendTelemetry(event string) error {
	fd, err := unix.Open(p.outputPath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return nil
		}
		return err
	}
	out := os.NewFile(uintptr(fd), p.outputPath)
	defer out.Close()

	_, err = out.Write([]byte(event + "\n"))
	return err
}

func (p *Pipe) Close() error {
	p.events.close()
	return p.input.Close()
}
