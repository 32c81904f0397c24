package repository

import "context"

// RequestPublisher hands a generation job to the relay transport.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, messageID string, payload []byte) error
}
