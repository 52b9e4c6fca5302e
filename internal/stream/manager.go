// Package stream runs one encoder-backed destination per kind: the local
// recording and the two mutually exclusive ground-station streams.
package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

type Kind string

const (
	KindRecord Kind = "record"
	KindRTP    Kind = "rtp"
	KindMPEGTS Kind = "mpegts"
)

var gcsKinds = []Kind{KindRTP, KindMPEGTS}

func (k Kind) IsGCS() bool {
	return lo.Contains(gcsKinds, k)
}

// KindFor maps a streaming protocol to its destination kind.
func KindFor(p models.Protocol) Kind {
	if p == models.ProtocolMPEGTS {
		return KindMPEGTS
	}
	return KindRTP
}

type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
)

var (
	ErrSpawn  = errors.New("encoder spawn failed")
	ErrWrite  = errors.New("encoder write failed")
	ErrNoHost = errors.New("no gcs host configured")
)

const defaultDrainTimeout = 3 * time.Second

type Destination struct {
	Kind      Kind
	State     State
	FileName  string
	StartedAt time.Time
	proc      Process
}

// Status is a read-only view of one destination.
type Status struct {
	Kind      Kind        `json:"kind"`
	State     State       `json:"state"`
	Host      models.Host `json:"host,omitempty"`
	Bitrate   int         `json:"bitrate,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
}

// Change describes a GCS reconfiguration. Nil fields are left alone.
type Change struct {
	Bitrate  *int
	Host     *models.Host
	IP       *string
	Port     *int
	Protocol *models.Protocol
}

type Manager struct {
	spawner      Spawner
	opts         Options
	drainTimeout time.Duration
	now          func() time.Time
	log          *logrus.Entry

	host     models.Host
	bitrate  int
	protocol models.Protocol
	dests    map[Kind]*Destination
}

// NewManager creates a manager with every destination idle. bitrate is in bits per second.
func NewManager(spawner Spawner, opts Options, host models.Host, bitrate int, protocol models.Protocol, drainTimeout time.Duration) *Manager {
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	m := &Manager{
		spawner:      spawner,
		opts:         opts,
		drainTimeout: drainTimeout,
		now:          time.Now,
		log:          logging.For("stream"),
		host:         host,
		bitrate:      bitrate,
		protocol:     protocol,
		dests:        make(map[Kind]*Destination),
	}
	for _, k := range []Kind{KindRecord, KindRTP, KindMPEGTS} {
		m.dests[k] = &Destination{Kind: k, State: StateIdle}
	}
	return m
}

func (m *Manager) args(kind Kind) ([]string, error) {
	switch kind {
	case KindRecord:
		return RecordArgs(m.opts, m.dests[KindRecord].FileName), nil
	case KindRTP, KindMPEGTS:
		if !m.host.IsSet() {
			return nil, ErrNoHost
		}
		if kind == KindRTP {
			return RTPArgs(m.opts, m.host, m.bitrate), nil
		}
		return MPEGTSArgs(m.opts, m.host, m.bitrate), nil
	}
	return nil, fmt.Errorf("unknown destination %q", kind)
}

// Start spawns the encoder for kind. Starting a GCS kind stops the other one first.
func (m *Manager) Start(kind Kind) error {
	dest, ok := m.dests[kind]
	if !ok {
		return fmt.Errorf("unknown destination %q", kind)
	}
	if dest.State == StateStreaming {
		return nil
	}

	if kind.IsGCS() {
		for _, other := range gcsKinds {
			if other != kind {
				m.Stop(other)
			}
		}
	}

	args, err := m.args(kind)
	if err != nil {
		return err
	}

	proc, err := m.spawner.Spawn(args)
	if err != nil {
		m.log.Errorf("failed to start %s encoder: %v", kind, err)
		return fmt.Errorf("%w: %s: %v", ErrSpawn, kind, err)
	}

	dest.proc = proc
	dest.State = StateStreaming
	dest.StartedAt = m.now()
	if kind.IsGCS() {
		m.log.Infof("%s stream started to %s at %d bps", kind, m.host, m.bitrate)
	} else {
		m.log.Infof("recording started to %s", dest.FileName)
	}
	return nil
}

// StartRecording sets the output file and starts the record destination.
func (m *Manager) StartRecording(path string) error {
	dest := m.dests[KindRecord]
	if dest.State == StateStreaming {
		return nil
	}
	dest.FileName = path
	return m.Start(KindRecord)
}

// Stop closes the encoder input, waits up to the drain timeout and then kills it.
func (m *Manager) Stop(kind Kind) {
	dest, ok := m.dests[kind]
	if !ok || dest.State == StateIdle {
		return
	}

	proc := dest.proc
	m.release(dest)

	if err := proc.CloseInput(); err != nil {
		m.log.Debugf("%s encoder input close: %v", kind, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			m.log.Debugf("%s encoder exited: %v", kind, err)
		}
	case <-time.After(m.drainTimeout):
		m.log.Warnf("%s encoder did not exit in %v, killing", kind, m.drainTimeout)
		if err := proc.Kill(); err != nil {
			m.log.Errorf("failed to kill %s encoder: %v", kind, err)
		}
		<-done
	}
	m.log.Infof("%s stopped", kind)
}

func (m *Manager) release(dest *Destination) {
	dest.State = StateIdle
	dest.proc = nil
	dest.StartedAt = time.Time{}
}

// Reconfigure applies a GCS change and restarts whichever GCS stream was running.
// A protocol change moves a running stream to the newly selected kind.
// Nothing is started when no GCS stream was running.
func (m *Manager) Reconfigure(change Change) error {
	active, wasActive := m.ActiveGCS()

	for _, kind := range gcsKinds {
		m.Stop(kind)
	}

	if change.Host != nil {
		m.host = *change.Host
	}
	if change.IP != nil {
		m.host.IP = *change.IP
	}
	if change.Port != nil {
		m.host.Port = *change.Port
	}
	if change.Bitrate != nil {
		m.bitrate = *change.Bitrate
	}
	if change.Protocol != nil {
		m.protocol = *change.Protocol
		active = KindFor(m.protocol)
	}

	if !wasActive {
		return nil
	}
	return m.Start(active)
}

// Write sends one frame to kind. A failed write stops the destination.
func (m *Manager) Write(kind Kind, frame []byte) error {
	dest, ok := m.dests[kind]
	if !ok || dest.State != StateStreaming {
		return nil
	}

	if _, err := dest.proc.Write(frame); err != nil {
		m.log.Errorf("%s write failed, stopping destination: %v", kind, err)
		proc := dest.proc
		m.release(dest)
		if err := proc.CloseInput(); err != nil {
			m.log.Debugf("%s encoder input close: %v", kind, err)
		}
		if err := proc.Kill(); err != nil {
			m.log.Debugf("%s encoder kill: %v", kind, err)
		}
		go proc.Wait()
		return fmt.Errorf("%w: %s: %v", ErrWrite, kind, err)
	}
	return nil
}

func (m *Manager) IsStreaming(kind Kind) bool {
	dest, ok := m.dests[kind]
	return ok && dest.State == StateStreaming
}

// ActiveGCS returns the GCS kind currently streaming, if any.
func (m *Manager) ActiveGCS() (Kind, bool) {
	return lo.Find(gcsKinds, m.IsStreaming)
}

// SelectedGCS is the kind the configured protocol maps to.
func (m *Manager) SelectedGCS() Kind {
	return KindFor(m.protocol)
}

func (m *Manager) Host() models.Host         { return m.host }
func (m *Manager) Bitrate() int              { return m.bitrate }
func (m *Manager) Protocol() models.Protocol { return m.protocol }

// Recording returns the record file name and start time while recording.
func (m *Manager) Recording() (string, time.Time, bool) {
	dest := m.dests[KindRecord]
	return dest.FileName, dest.StartedAt, dest.State == StateStreaming
}

func (m *Manager) Snapshot() []Status {
	return lo.Map([]Kind{KindRecord, KindRTP, KindMPEGTS}, func(k Kind, _ int) Status {
		dest := m.dests[k]
		st := Status{Kind: k, State: dest.State}
		if dest.State == StateStreaming {
			started := dest.StartedAt
			st.StartedAt = &started
		}
		if k.IsGCS() {
			st.Host = m.host
			st.Bitrate = m.bitrate
		} else {
			st.FileName = dest.FileName
		}
		return st
	})
}

// Close stops every destination.
func (m *Manager) Close() {
	for _, k := range []Kind{KindRecord, KindRTP, KindMPEGTS} {
		m.Stop(k)
	}
}
