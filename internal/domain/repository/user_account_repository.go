package repository

import (
	"context"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
)

type UserAccountRepository interface {
	// GetByUserID returns ErrAccountNotFound when no row exists.
	GetByUserID(ctx context.Context, userID string) (entity.UserAccount, error)
	// Create inserts the account, or returns the existing row when another
	// request created it first.
	Create(ctx context.Context, account entity.UserAccount) (entity.UserAccount, error)
	// DecrementTokens subtracts count only while the balance is positive and
	// reports whether a row changed.
	DecrementTokens(ctx context.Context, userID string, count int) (bool, error)
	SetNextRegeneration(ctx context.Context, userID string, next time.Time) error
	// Regenerate tops the balance up to count (never lowering it) and schedules next.
	Regenerate(ctx context.Context, userID string, count int, next time.Time) error
}
