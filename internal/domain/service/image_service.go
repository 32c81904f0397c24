package service

import (
	"context"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
)

type ListImagesInput struct {
	Search string
	Limit  int
	Cursor string
}

type ImagePage struct {
	Images     []ImageView `json:"images"`
	NextCursor *int        `json:"nextCursor,omitempty"`
}

// ImageView is a stored image together with its public URL.
type ImageView struct {
	entity.GeneratedImage
	URL string `json:"url"`
}

type ImageService interface {
	List(ctx context.Context, p Principal, in ListImagesInput) (ImagePage, error)
	Delete(ctx context.Context, p Principal, id int64) (entity.GeneratedImage, error)
	// Generate runs the provider call and persistence inside the request.
	Generate(ctx context.Context, p Principal, prompt string) ([]ImageView, error)
	// Persist uploads provider images, records them and debits the owner.
	Persist(ctx context.Context, userID, prompt string, images []repository.Blob) ([]ImageView, error)
}
