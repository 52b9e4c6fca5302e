package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// eventQueue hands telemetry to a single sender goroutine and drops events when full.
type eventQueue struct {
	events chan string
	send   func(event string) error
	log    *logrus.Entry
	once   sync.Once
	done   chan struct{}
}

func newEventQueue(size int, send func(event string) error, log *logrus.Entry) *eventQueue {
	q := &eventQueue{
		events: make(chan string, size),
		send:   send,
		log:    log,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(event string) {
	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.events <- event:
	default:
		q.log.Debugf("telemetry queue full, dropping %q", event)
	}
}

func (q *eventQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case event := <-q.events:
			if err := q.send(event); err != nil {
				q.log.Debugf("telemetry %q dropped: %v", event, err)
			}
		}
	}
}

func (q *eventQueue) close() {
	q.once.Do(func() { close(q.done) })
}
