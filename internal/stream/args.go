package stream

import (
	"fmt"
	"strconv"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

// Options are the encoder settings that do not change at runtime.
type Options struct {
	Resolution    models.Resolution
	Framerate     int
	Codec         string
	RecordBitrate string
}

func (o Options) input() []string {
	return []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", o.Resolution.String(),
		"-r", strconv.Itoa(o.Framerate),
		"-i", "-",
	}
}

// RecordArgs writes an MPEG-TS file with a silent audio track.
func RecordArgs(o Options, path string) []string {
	args := o.input()
	return append(args,
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-shortest",
		"-c:v", o.Codec,
		"-b:v", o.RecordBitrate,
		"-c:a", "aac",
		"-f", "mpegts",
		path,
	)
}

func gcsArgs(o Options, bitrate int) []string {
	args := o.input()
	return append(args,
		"-c:v", o.Codec,
		"-bufsize", "64k",
		"-b:v", strconv.Itoa(bitrate),
		"-flags", "low_delay",
		"-fflags", "nobuffer",
		"-bf", "0",
		"-g", strconv.Itoa(o.Framerate),
	)
}

func RTPArgs(o Options, host models.Host, bitrate int) []string {
	return append(gcsArgs(o, bitrate), "-f", "rtp", fmt.Sprintf("rtp://%s", host))
}

func MPEGTSArgs(o Options, host models.Host, bitrate int) []string {
	return append(gcsArgs(o, bitrate), "-f", "mpegts", fmt.Sprintf("udp://%s", host))
}
