package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	mu      sync.Mutex
	settled []string
}

func (a *ackRecorder) record(s string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, s)
	return nil
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	return a.record(fmt.Sprintf("%d:ack", tag))
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	return a.record(fmt.Sprintf("%d:nack requeue=%t", tag, requeue))
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.record(fmt.Sprintf("%d:reject requeue=%t", tag, requeue))
}

func (a *ackRecorder) results() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.settled...)
}

func TestConsumeDeliveriesSettlesByOutcome(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	acks := &ackRecorder{}

	outcomes := map[string]error{
		"ok":        nil,
		"flaky":     errors.New("provider timeout"),
		"retried":   errors.New("provider timeout"),
		"malformed": fmt.Errorf("decode job: %w", ErrPermanent),
	}
	deliveries := make(chan amqp.Delivery, 4)
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, MessageId: "ok"}
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, MessageId: "flaky"}
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, MessageId: "retried", Redelivered: true}
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 4, MessageId: "malformed"}
	close(deliveries)

	var handled []string
	err := consumeDeliveries(context.Background(), deliveries, func(_ context.Context, id string, _ []byte) error {
		handled = append(handled, id)
		return outcomes[id]
	}, log)

	require.Error(t, err)
	assert.Equal(t, []string{"ok", "flaky", "retried", "malformed"}, handled)
	assert.Equal(t, []string{
		"1:ack",
		"2:nack requeue=true",
		"3:nack requeue=false",
		"4:nack requeue=false",
	}, acks.results())
}

func TestConsumeDeliveriesStopsOnCancel(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := consumeDeliveries(ctx, make(chan amqp.Delivery), func(context.Context, string, []byte) error {
		t.Fatal("handler must not run")
		return nil
	}, log)
	assert.NoError(t, err)
}
