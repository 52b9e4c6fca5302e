package transport

import (
	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/kafka"
	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

type messageSource interface {
	Messages() <-chan kafka.Message
	Close() error
}

type eventSink interface {
	Publish(event string) bool
	Close() error
}

// PubSub reads commands from a Kafka topic and publishes telemetry to another.
// Messages are acknowledged as they are polled, so delivery is at most once.
type PubSub struct {
	source messageSource
	sink   eventSink
	log    *logrus.Entry
}

func NewPubSub(source *kafka.Consumer, sink *kafka.Producer) *PubSub {
	return newPubSub(source, sink)
}

func newPubSub(source messageSource, sink eventSink) *PubSub {
	return &PubSub{
		source: source,
		sink:   sink,
		log:    logging.For("pubsub-transport"),
	}
}

func (p *PubSub) Poll() []models.Command {
	var cmds []models.Command
	for {
		select {
		case msg, ok := <-p.source.Messages():
			if !ok {
				return cmds
			}
			msg.Ack()
			cmds = append(cmds, ParseCommands(string(msg.Value))...)
		default:
			return cmds
		}
	}
}

func (p *PubSub) Send(event string) {
	if !p.sink.Publish(event) {
		p.log.Debugf("telemetry queue full, dropping %q", event)
	}
}

func (p *PubSub) Close() error {
	sinkErr := p.sink.Close()
	if err := p.source.Close(); err != nil {
		return err
	}
	return sinkErr
}
