package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/infra/messaging"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Events records every domain event in the audit log and removes the stored
// object once its image row is deleted.
type Events struct {
	audit   repository.AuditLogRepository
	storage repository.ObjectStorage
	log     *logrus.Logger
}

func NewEvents(audit repository.AuditLogRepository, storage repository.ObjectStorage, log *logrus.Logger) *Events {
	return &Events{audit: audit, storage: storage, log: log}
}

// HandleMsg adapts Handle to the JetStream consumer.
func (e *Events) HandleMsg(ctx context.Context, msg *nats.Msg) error {
	return e.Handle(ctx, msg.Subject, msg.Data)
}

func (e *Events) Handle(ctx context.Context, subject string, data []byte) error {
	var event entity.ImageEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode event: %w: %w", messaging.ErrPermanent, err)
	}
	eventType := eventTypeOf(subject)

	// Storage goes first so a redelivery after a failed delete retries it; the
	// audit insert is the last step.
	if eventType == entity.EventImageDeleted && event.Key != "" {
		err := e.storage.Delete(ctx, event.Key)
		if err != nil && !errors.Is(err, repository.ErrObjectNotFound) {
			return fmt.Errorf("delete object %s: %w", event.Key, err)
		}
	}
	if err := e.audit.Create(ctx, entity.AuditLog{
		Subject:   subject,
		EventType: eventType,
		UserID:    event.UserID,
		Payload:   datatypes.JSON(data),
	}); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	e.log.WithField("event", eventType).WithField("image_id", event.ImageID).Info("consumer: event recorded")
	return nil
}

// eventTypeOf returns the last two subject tokens, e.g. image.deleted for
// imagegen.events.image.deleted.
func eventTypeOf(subject string) string {
	dots := 0
	for i := len(subject) - 1; i >= 0; i-- {
		if subject[i] == '.' {
			dots++
			if dots == 2 {
				return subject[i+1:]
			}
		}
	}
	return subject
}
