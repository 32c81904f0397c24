package persistence

import (
	"context"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
)

type AuditLogRepository struct {
	db *DB
}

var _ repository.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository(db *DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, log entity.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return r.db.Write(ctx).Exec(
		`INSERT INTO audit_logs (subject, event_type, user_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		log.Subject, log.EventType, log.UserID, log.Payload, log.CreatedAt,
	).Error
}
