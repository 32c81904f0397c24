// Package worker holds the background loops that run beside the HTTP server:
// the outbox publisher, the domain event consumer and storage reconciliation.
package worker

import (
	"context"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/sirupsen/logrus"
)

// EventPublisher is the subset of the NATS client the outbox needs.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, msgID string) error
	EventSubject(eventType string) string
}

type Outbox struct {
	repo      repository.OutboxRepository
	publisher EventPublisher
	cfg       config.Outbox
	log       *logrus.Logger
}

func NewOutbox(repo repository.OutboxRepository, publisher EventPublisher, cfg config.Outbox, log *logrus.Logger) *Outbox {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Outbox{repo: repo, publisher: publisher, cfg: cfg, log: log}
}

// Run publishes claimed batches until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	o.log.Infof("outbox-worker: started (batch=%d, interval=%s)", o.cfg.BatchSize, o.cfg.PollInterval)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := o.ProcessBatch(ctx); err != nil {
			o.log.WithError(err).Warn("outbox-worker: process failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch publishes one claimed batch and returns how many events were
// delivered. The event id is the JetStream dedup id.
func (o *Outbox) ProcessBatch(ctx context.Context) (int, error) {
	events, err := o.repo.Claim(ctx, o.cfg.BatchSize, o.cfg.LockTimeout, o.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, event := range events {
		subject := o.publisher.EventSubject(event.EventType)
		if err := o.publisher.Publish(ctx, subject, event.Payload, event.ID.String()); err != nil {
			o.log.WithError(err).WithField("event_id", event.ID).Warn("outbox-worker: publish failed")
			if err := o.repo.MarkFailed(ctx, event.ID, err.Error()); err != nil {
				o.log.WithError(err).Warn("outbox-worker: mark failed")
			}
			continue
		}
		if err := o.repo.MarkProcessed(ctx, event.ID); err != nil {
			o.log.WithError(err).Warn("outbox-worker: mark processed")
			continue
		}
		published++
	}
	return published, nil
}
