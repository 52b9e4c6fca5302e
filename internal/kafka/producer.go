package kafka

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/EchoMAV/PiStreamer/internal/logging"
)

// Producer publishes telemetry lines without waiting for broker acks.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	wg       sync.WaitGroup
}

// NewProducer создаёт продюсер с настройками
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return newProducer(producer, topic), nil
}

func newProducer(producer sarama.AsyncProducer, topic string) *Producer {
	p := &Producer{
		producer: producer,
		topic:    topic,
	}

	log := logging.For("kafka-producer")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			log.Warnf("failed to publish telemetry: %v", err)
		}
	}()

	return p
}

// Publish enqueues one telemetry event. Returns false when the input queue is full.
func (p *Producer) Publish(event string) bool {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.StringEncoder(event),
	}

	select {
	case p.producer.Input() <- msg:
		return true
	default:
		return false
	}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.wg.Wait()
	return nil
}
