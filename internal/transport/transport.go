// Package transport delivers control commands into the engine and telemetry out of it.
// Every adapter shares one tokenizer and one interface so the router never sees the wire.
package transport

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

const (
	lineBuffer      = 1024
	telemetryBuffer = 1000
	maxLineLength   = 64 * 1024
)

// Transport is polled once per scheduling tick.
type Transport interface {
	// Poll returns the commands received since the previous call. It never blocks.
	Poll() []models.Command
	// Send publishes a telemetry event, best effort.
	Send(event string)
	Close() error
}

var commandType = regexp.MustCompile(`^[a-z0-9_]+$`)

// ParseLine splits a line at the first whitespace into type and trimmed value.
// Blank lines and lines whose type is not a lowercase identifier are dropped.
func ParseLine(line string) (models.Command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Command{}, false
	}

	typ, value := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		typ, value = line[:i], line[i+1:]
	}
	if !commandType.MatchString(typ) {
		return models.Command{}, false
	}

	return models.Command{Type: models.CommandType(typ), Value: strings.TrimSpace(value)}, true
}

// ParseCommands tokenizes a newline separated payload.
func ParseCommands(payload string) []models.Command {
	var cmds []models.Command
	for _, line := range strings.Split(payload, "\n") {
		if cmd, ok := ParseLine(line); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// drainLines empties a line channel without blocking.
func drainLines(lines <-chan string) []models.Command {
	var cmds []models.Command
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return cmds
			}
			if cmd, ok := ParseLine(line); ok {
				cmds = append(cmds, cmd)
			}
		default:
			return cmds
		}
	}
}

// scanLines copies newline separated input into lines until r is exhausted.
// Lines longer than maxLineLength are dropped up to the next newline.
func scanLines(r io.Reader, lines chan<- string, log *logrus.Entry) {
	reader := bufio.NewReaderSize(r, maxLineLength)
	oversized := false
	for {
		chunk, err := reader.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if !oversized {
				log.Warnf("dropping command line longer than %d bytes", maxLineLength)
			}
			oversized = true
		case err == nil:
			if !oversized {
				lines <- strings.TrimRight(string(chunk), "\r\n")
			}
			oversized = false
		default:
			if len(chunk) > 0 && !oversized {
				lines <- string(chunk)
			}
			if !errors.Is(err, io.EOF) {
				log.Debugf("command reader stopped: %v", err)
			}
			return
		}
	}
}
