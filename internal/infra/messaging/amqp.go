package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPClient carries relay requests over RabbitMQ. Rejected messages are
// dead-lettered to <dlx>/<queue>.dlq.
type AMQPClient struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  config.AMQP
	mu   sync.Mutex
}

func NewAMQP(cfg config.AMQP) (*AMQPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url is required")
	}
	if cfg.Queue == "" {
		return nil, errors.New("amqp: queue is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPClient{conn: conn, ch: ch, cfg: cfg}, nil
}

func declareTopology(ch *amqp.Channel, cfg config.AMQP) error {
	var args amqp.Table
	if cfg.DLX != "" {
		dlq := cfg.Queue + ".dlq"
		if err := ch.ExchangeDeclare(cfg.DLX, "direct", true, false, false, false, nil); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(dlq, dlq, cfg.DLX, false, nil); err != nil {
			return err
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    cfg.DLX,
			"x-dead-letter-routing-key": dlq,
		}
	}
	_, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args)
	return err
}

func (c *AMQPClient) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *AMQPClient) PublishRequest(_ context.Context, messageID string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.Publish("", c.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

// ConsumeRequests delivers each message to handle. A failed message is requeued
// once; a permanent failure or a second failure dead-letters it.
func (c *AMQPClient) ConsumeRequests(ctx context.Context, handle RequestHandler, log *logrus.Logger) error {
	deliveries, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	log.Infof("amqp: consuming %s", c.cfg.Queue)
	return consumeDeliveries(ctx, deliveries, handle, log)
}

func consumeDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery, handle RequestHandler, log *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp: delivery channel closed")
			}
			if err := handle(ctx, d.MessageId, d.Body); err != nil {
				requeue := !d.Redelivered && !errors.Is(err, ErrPermanent)
				log.WithError(err).WithField("message_id", d.MessageId).WithField("requeue", requeue).Warn("amqp: handler failed")
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
