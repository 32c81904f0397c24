package service

import (
	"context"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
)

// Principal is the verified caller identity attached to a request.
type Principal struct {
	UserID      string
	DisplayName string
}

// TokenCount is either a finite balance or unlimited.
type TokenCount struct {
	Unlimited        bool
	Count            int
	NextRegeneration *time.Time
}

type AccountService interface {
	GetOrCreate(ctx context.Context, p Principal) (entity.UserAccount, error)
	DecrementTokenCount(ctx context.Context, userID string, count int) error
	CheckTokenRegeneration(ctx context.Context, userID string) (*time.Time, error)
	GetTokenCount(ctx context.Context, p Principal) (TokenCount, error)
}
