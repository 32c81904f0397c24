package repository

import (
	"context"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
)

type IdempotencyRepository interface {
	// Get returns ok=false when the account never recorded the key.
	Get(ctx context.Context, userAccountID int64, key string) (entity.IdempotencyKey, bool, error)
	// Save records the key and returns the stored row, which belongs to an
	// earlier request when the key already existed. A stored row with another
	// hash yields ErrIdempotencyKeyConflict.
	Save(ctx context.Context, key entity.IdempotencyKey) (entity.IdempotencyKey, error)
	// Delete forgets a key whose request never reached the relay.
	Delete(ctx context.Context, userAccountID int64, key string) error
	// Prune removes keys recorded before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
