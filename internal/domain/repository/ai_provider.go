package repository

import "context"

type AIProvider interface {
	// GenerateRaw calls the image model and returns its JSON response body.
	GenerateRaw(ctx context.Context, prompt, userID string) ([]byte, error)
	// DecodeImages extracts image bytes from a GenerateRaw response body.
	DecodeImages(ctx context.Context, body []byte) ([]Blob, error)
	// Moderate reports whether text is flagged.
	Moderate(ctx context.Context, text string) (bool, error)
	ImprovePrompt(ctx context.Context, prompt string) (string, error)
}
