package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/EchoMAV/PiStreamer/internal/logging"
)

const messageBuffer = 256

// Consumer оборачивает Sarama ConsumerGroup
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	messages chan Message
	closed   chan struct{}
}

// Message содержит сообщение и сессию для подтверждения
type Message struct {
	Value   []byte
	Session sarama.ConsumerGroupSession
	Message *sarama.ConsumerMessage
}

// Ack marks the message consumed. Safe on messages without a session.
func (m Message) Ack() {
	if m.Session != nil && m.Message != nil {
		m.Session.MarkMessage(m.Message, "")
	}
}

// NewConsumer создаёт и возвращает новый Consumer
func NewConsumer(brokers []string, groupID, topic string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	// Stale commands from before a restart must not replay.
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return newConsumer(group, topic), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string) *Consumer {
	return &Consumer{
		group:    group,
		topic:    topic,
		messages: make(chan Message, messageBuffer),
		closed:   make(chan struct{}),
	}
}

// StartListening запускает асинхронное потребление сообщений
func (c *Consumer) StartListening(ctx context.Context) {
	log := logging.For("kafka-consumer")
	handler := &consumerGroupHandler{
		messages: c.messages,
		closed:   c.closed,
	}

	go func() {
		retryDelay := time.Second * 5
		for {
			select {
			case <-ctx.Done():
				log.Info("context cancelled, stopping")
				return
			case <-c.closed:
				return
			default:
				log.Debugf("starting consumption cycle on %s", c.topic)
				err := c.group.Consume(ctx, []string{c.topic}, handler)
				if err != nil {
					log.Warnf("consume error: %v, retrying in %v", err, retryDelay)
					select {
					case <-ctx.Done():
						return
					case <-c.closed:
						return
					case <-time.After(retryDelay):
					}
					continue
				}

				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
}

// Close останавливает потребитель и освобождает ресурсы
func (c *Consumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

// Messages возвращает канал для чтения сообщений
func (c *Consumer) Messages() <-chan Message {
	return c.messages
}

// consumerGroupHandler реализует интерфейс sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	messages chan<- Message
	closed   <-chan struct{}
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim hands each message to the command poller together with its
// session. The offset is marked only when PubSub.Poll drains it, so a command
// is committed once the frame loop has taken it (at-most-once on restart).
func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- Message{
				Value:   msg.Value,
				Session: sess,
				Message: msg,
			}:
			case <-sess.Context().Done():
				return nil
			case <-h.closed:
				return nil
			}
		case <-sess.Context().Done():
			return nil
		case <-h.closed:
			return nil
		}
	}
}
