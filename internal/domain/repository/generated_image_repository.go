package repository

import (
	"context"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
)

type ImageQuery struct {
	UserAccountID int64
	Keywords      []string
	Limit         int
	Offset        int
}

type GeneratedImageRepository interface {
	// List returns at most q.Limit rows matching every keyword, newest first.
	List(ctx context.Context, q ImageQuery) ([]entity.GeneratedImage, error)
	// SaveBatch inserts all rows and the image.generated events in one transaction.
	SaveBatch(ctx context.Context, account entity.UserAccount, images []entity.NewGeneratedImage) ([]entity.GeneratedImage, error)
	// Delete removes the row only when it belongs to the account; ErrImageNotFound otherwise.
	Delete(ctx context.Context, account entity.UserAccount, id int64) (entity.GeneratedImage, error)
	Keys(ctx context.Context) ([]string, error)
}
