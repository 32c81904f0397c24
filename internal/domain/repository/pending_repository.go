package repository

import (
	"context"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
)

// PendingStore holds in-flight generation requests keyed by message id.
// Every write refreshes the entry's TTL.
type PendingStore interface {
	Put(ctx context.Context, messageID string, req entity.PendingRequest) error
	// Get returns ok=false for unknown or expired ids.
	Get(ctx context.Context, messageID string) (entity.PendingRequest, bool, error)
	// Claim atomically moves a waiting entry to processing. claimed is false
	// when the entry is missing or in any other state; prev is the state found.
	Claim(ctx context.Context, messageID string) (prev entity.PendingRequest, claimed bool, err error)
	// Resolve writes a terminal state and notifies watchers.
	Resolve(ctx context.Context, messageID string, req entity.PendingRequest) error
	Delete(ctx context.Context, messageID string) error
	// Watch streams the next terminal state written for messageID.
	Watch(ctx context.Context, messageID string) (<-chan entity.PendingRequest, func(), error)
}
