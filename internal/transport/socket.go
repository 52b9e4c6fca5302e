package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

const dialTimeout = time.Second

// Socket accepts one command client at a time over TCP. A new connection replaces the old one.
// Telemetry goes to a separate TCP endpoint, dialed lazily and redialed after a failure.
type Socket struct {
	listener      net.Listener
	telemetryAddr string
	lines         chan string
	events        *eventQueue
	log           *logrus.Entry

	mu        sync.Mutex
	client    net.Conn
	telemetry net.Conn
	closed    bool
}

func NewSocket(listenAddr, telemetryAddr string) (*Socket, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	s := &Socket{
		listener:      listener,
		telemetryAddr: telemetryAddr,
		lines:         make(chan string, lineBuffer),
		log:           logging.For("socket-transport"),
	}
	s.events = newEventQueue(telemetryBuffer, s.sendTelemetry, s.log)

	go s.acceptLoop()
	s.log.Infof("listening for commands on %s", listener.Addr())
	return s, nil
}

// Addr is the bound command address.
func (s *Socket) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Socket) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnf("accept failed: %v", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		if s.client != nil {
			s.log.Infof("replacing command client %s", s.client.RemoteAddr())
			s.client.Close()
		}
		s.client = conn
		s.mu.Unlock()

		s.log.Infof("command client connected from %s", conn.RemoteAddr())
		go s.readClient(conn)
	}
}

func (s *Socket) readClient(conn net.Conn) {
	scanLines(conn, s.lines, s.log)

	s.mu.Lock()
	if s.client == conn {
		s.client = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Socket) Poll() []models.Command {
	return drainLines(s.lines)
}

func (s *Socket) Send(event string) {
	s.events.push(event)
}

func (s *Socket) sendTelemetry(event string) error {
	s.mu.Lock()
	conn := s.telemetry
	s.mu.Unlock()

	if conn == nil {
		var err error
		conn, err = net.DialTimeout("tcp", s.telemetryAddr, dialTimeout)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.telemetry = conn
		s.mu.Unlock()
	}

	conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if _, err := conn.Write([]byte(event + "\n")); err != nil {
		conn.Close()
		s.mu.Lock()
		s.telemetry = nil
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.client != nil {
		s.client.Close()
	}
	if s.telemetry != nil {
		s.telemetry.Close()
	}
	s.mu.Unlock()

	s.events.close()
	return s.listener.Close()
}
