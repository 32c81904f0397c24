package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/gin-gonic/gin"
)

const (
	IdempotencyKeyCtx  = "idempotency_key"
	IdempotencyHashCtx = "idempotency_hash"
)

// Idempotency records the client's Idempotency-Key and a hash of the body so
// the handler can recognise a retried request. Without a key the request is
// treated as new.
func Idempotency(onError func(*gin.Context, error)) gin.HandlerFunc {
	if onError == nil {
		onError = defaultOnError
	}
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			idempotencyKey = c.GetHeader("X-Idempotency-Key")
		}
		if idempotencyKey == "" {
			c.Set(IdempotencyKeyCtx, "")
			c.Set(IdempotencyHashCtx, "")
			c.Next()
			return
		}
		if len(idempotencyKey) > 255 {
			onError(c, apperr.Validation("idempotency key is too long"))
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			onError(c, apperr.Validation("invalid request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		sum := sha256.Sum256(body)
		c.Set(IdempotencyKeyCtx, idempotencyKey)
		c.Set(IdempotencyHashCtx, hex.EncodeToString(sum[:]))

		c.Next()
	}
}
