package middleware

import (
	"bytes"
	"io"
	nethttp "net/http"

	"github.com/daffahilmyf/go-imagegen/internal/infra/relay"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxCallbackBody = 32 << 20

// Signature verifies the relay signature over the raw body and restores the
// body for the handler.
func Signature(verifier *relay.Verifier, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			c.AbortWithStatusJSON(nethttp.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if err := verifier.Verify(c.GetHeader(relay.SignatureHeader), body); err != nil {
			log.WithError(err).WithField("ip", c.ClientIP()).Warn("callback signature rejected")
			c.AbortWithStatusJSON(nethttp.StatusUnauthorized, gin.H{"message": "invalid signature"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
