package main

import (
	"context"
	"fmt"

	"github.com/EchoMAV/PiStreamer/internal/config"
	"github.com/EchoMAV/PiStreamer/internal/kafka"
	"github.com/EchoMAV/PiStreamer/internal/transport"
)

// newTransport opens the command channel selected by command.protocol.
func newTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Command.Protocol {
	case config.CommandSocket:
		s, err := transport.NewSocket(cfg.Command.SocketListen, cfg.Command.SocketTelemetry)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.CommandPipe:
		p, err := transport.NewPipe(cfg.Command.PipeInput, cfg.Command.PipeOutput)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.CommandKafka:
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.CommandTopic)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TelemetryTopic)
		if err != nil {
			consumer.Close()
			return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		go consumer.StartListening(ctx)
		return transport.NewPubSub(consumer, producer), nil
	default:
		return nil, fmt.Errorf("unsupported command protocol %q", cfg.Command.Protocol)
	}
}
