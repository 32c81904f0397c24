package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog is one domain event as received by the event consumer.
type AuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Subject   string         `gorm:"not null"`
	EventType string         `gorm:"not null"`
	UserID    string         `gorm:"index"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
