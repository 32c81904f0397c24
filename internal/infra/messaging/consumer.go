package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const dedupWindow = 2 * time.Minute

// Handler processes one delivered message. Returning an error redelivers it
// with backoff until max deliver is reached, then it goes to the DLQ.
type Handler func(ctx context.Context, msg *nats.Msg) error

// RequestHandler processes one relay request identified by its message id.
type RequestHandler func(ctx context.Context, messageID string, body []byte) error

// ErrPermanent marks a failure that must not be retried.
var ErrPermanent = errors.New("permanent failure")

type ConsumerSpec struct {
	Durable string
	Subject string
	Batch   int
}

// Consume runs a pull subscription until ctx is cancelled.
func (c *NATSClient) Consume(ctx context.Context, spec ConsumerSpec, handle Handler, log *logrus.Logger) error {
	if c == nil || c.js == nil {
		return errors.New("nats: jetstream not initialized")
	}
	if err := ensureConsumer(ctx, c.cfg, c.js, spec); err != nil {
		return err
	}
	sub, err := c.js.PullSubscribe(spec.Subject, spec.Durable, nats.Bind(c.cfg.Stream, spec.Durable))
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	batch := spec.Batch
	if batch <= 0 {
		batch = 50
	}
	log.Infof("consumer: listening on %s (durable=%s)", spec.Subject, spec.Durable)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(batch, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.WithError(err).Warn("consumer: fetch failed")
			continue
		}
		for _, msg := range msgs {
			if err := handle(ctx, msg); err != nil {
				log.WithError(err).WithField("subject", msg.Subject).Warn("consumer: handler failed")
				c.handleError(ctx, msg, err, log)
				continue
			}
			_ = msg.Ack()
		}
	}
}

// ConsumeRequests runs the relay request consumer on the request subject.
func (c *NATSClient) ConsumeRequests(ctx context.Context, durable string, handle RequestHandler, log *logrus.Logger) error {
	if c == nil {
		return errors.New("nats: client not configured")
	}
	spec := ConsumerSpec{Durable: durable, Subject: c.cfg.RequestSubject, Batch: 10}
	return c.Consume(ctx, spec, func(ctx context.Context, msg *nats.Msg) error {
		return handle(ctx, msg.Header.Get(nats.MsgIdHdr), msg.Data)
	}, log)
}

func ensureConsumer(ctx context.Context, cfg config.NATS, js nats.JetStreamContext, spec ConsumerSpec) error {
	if cfg.Stream == "" {
		return errors.New("nats stream is required")
	}
	if spec.Durable == "" || spec.Subject == "" {
		return errors.New("nats consumer durable and subject are required")
	}

	info, err := js.ConsumerInfo(cfg.Stream, spec.Durable, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrConsumerNotFound) {
		return err
	}

	backoff := cfg.ConsumerBackoff
	maxDeliver := cfg.ConsumerMaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = -1
	}

	if info != nil {
		if info.Config.MaxDeliver != maxDeliver || !sameBackoff(info.Config.BackOff, backoff) || info.Config.FilterSubject != spec.Subject {
			if err := js.DeleteConsumer(cfg.Stream, spec.Durable, nats.Context(ctx)); err != nil {
				return err
			}
			info = nil
		}
	}

	if info == nil {
		consumerCfg := &nats.ConsumerConfig{
			Durable:       spec.Durable,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       cfg.AckWait,
			MaxAckPending: cfg.MaxAckPending,
			MaxDeliver:    maxDeliver,
			FilterSubject: spec.Subject,
		}
		if len(backoff) > 0 {
			consumerCfg.BackOff = backoff
		}
		if _, err := js.AddConsumer(cfg.Stream, consumerCfg, nats.Context(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (c *NATSClient) handleError(ctx context.Context, msg *nats.Msg, cause error, log *logrus.Logger) {
	md, err := msg.Metadata()
	if err != nil {
		log.WithError(err).Warn("consumer: metadata missing")
		_ = msg.Nak()
		return
	}
	maxDeliver := c.cfg.ConsumerMaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = 10
	}
	if errors.Is(cause, ErrPermanent) || int(md.NumDelivered) >= maxDeliver {
		if c.cfg.DLQSubject != "" {
			if err := c.Publish(ctx, c.cfg.DLQSubject, msg.Data, fmt.Sprintf("dlq-%d", md.Sequence.Stream)); err != nil {
				log.WithError(err).Warn("consumer: dlq publish failed")
				_ = msg.Nak()
				return
			}
		} else {
			log.Warn("consumer: dlq subject not configured")
		}
		_ = msg.Ack()
		return
	}
	delay := BackoffForAttempt(c.cfg.ConsumerBackoff, md.NumDelivered)
	if delay > 0 {
		_ = msg.NakWithDelay(delay)
		return
	}
	_ = msg.Nak()
}

func BackoffForAttempt(backoff []time.Duration, delivered uint64) time.Duration {
	if len(backoff) == 0 {
		return 0
	}
	idx := int(delivered) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoff) {
		idx = len(backoff) - 1
	}
	return backoff[idx]
}

func sameBackoff(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
