package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EventImageGenerated = "image.generated"
	EventImageDeleted   = "image.deleted"
)

type OutboxEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AggregateType string         `gorm:"not null"`
	AggregateID   string         `gorm:"not null"`
	EventType     string         `gorm:"not null"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `gorm:"not null"`
	LockedAt      *time.Time     `gorm:""`
	ProcessedAt   *time.Time     `gorm:""`
	Attempts      int            `gorm:"not null;default:0"`
	LastError     string         `gorm:""`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// ImageEvent is the payload of image.generated and image.deleted events.
type ImageEvent struct {
	ImageID       int64     `json:"imageId"`
	UserAccountID int64     `json:"userAccountId"`
	UserID        string    `json:"userId"`
	Key           string    `json:"key"`
	Prompt        string    `json:"prompt"`
	OccurredAt    time.Time `json:"occurredAt"`
}
