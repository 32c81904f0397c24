package service

import (
	"context"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
)

type GenerateRequest struct {
	Prompt         string
	IdempotencyKey string
	RequestHash    string
}

type GenerationService interface {
	// Submit validates the request, records it as waiting and publishes it to the relay.
	Submit(ctx context.Context, p Principal, req GenerateRequest) (string, error)
	// Poll returns the urls once done. Waiting, processing and unknown ids are not found;
	// failed ids are gone.
	Poll(ctx context.Context, p Principal, messageID string) ([]string, error)
	// HandleCallback completes a relayed request with the provider response.
	HandleCallback(ctx context.Context, messageID string, status int, body []byte) error
	// Watch delivers the terminal state of a request owned by p.
	Watch(ctx context.Context, p Principal, messageID string) (entity.PendingRequest, error)
}

type PromptService interface {
	Improve(ctx context.Context, p Principal, prompt string) (string, error)
}
