package repository

import (
	"context"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/google/uuid"
)

type OutboxRepository interface {
	Append(ctx context.Context, event entity.OutboxEvent) error
	Claim(ctx context.Context, limit int, lockTimeout time.Duration, maxAttempts int) ([]entity.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, log entity.AuditLog) error
}
