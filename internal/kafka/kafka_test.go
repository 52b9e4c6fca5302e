package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaimForwardsMessages(t *testing.T) {
	out := make(chan Message, 4)
	handler := &consumerGroupHandler{messages: out, closed: make(chan struct{})}

	sess := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Value: []byte("zoom in")}
	claim.messages <- &sarama.ConsumerMessage{Value: []byte("zoom stop")}
	close(claim.messages)

	require.NoError(t, handler.ConsumeClaim(sess, claim))
	require.Len(t, out, 2)

	first := <-out
	assert.Equal(t, "zoom in", string(first.Value))
	assert.Empty(t, sess.marked)

	first.Ack()
	assert.Len(t, sess.marked, 1)
}

func TestConsumeClaimStopsWhenClosed(t *testing.T) {
	closed := make(chan struct{})
	handler := &consumerGroupHandler{messages: make(chan Message), closed: closed}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan error, 1)
	go func() {
		done <- handler.ConsumeClaim(&fakeSession{ctx: context.Background()}, claim)
	}()
	close(closed)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return after close")
	}
}

func TestMessageAckWithoutSession(t *testing.T) {
	assert.NotPanics(t, func() { Message{Value: []byte("x")}.Ack() })
}

func TestProducerPublish(t *testing.T) {
	mock := mocks.NewAsyncProducer(t, nil)
	mock.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		assert.Equal(t, "zoomLevel 2.50", string(val))
		return nil
	})

	p := newProducer(mock, "telemetry")
	assert.True(t, p.Publish("zoomLevel 2.50"))
	require.NoError(t, p.Close())
}
