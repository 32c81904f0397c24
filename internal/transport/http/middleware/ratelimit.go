package middleware

import (
	"strconv"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/infra/metrics"
	"github.com/daffahilmyf/go-imagegen/internal/infra/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit admits a request only when the policy has capacity for the
// caller. It runs after Auth; anonymous callers are keyed by client IP.
// A limiter backend error lets the request through.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, m *metrics.Metrics, log *logrus.Logger, onError func(*gin.Context, error)) gin.HandlerFunc {
	if onError == nil {
		onError = defaultOnError
	}
	return func(c *gin.Context) {
		identity := PrincipalFrom(c).UserID
		if identity == "" {
			identity = "ip:" + c.ClientIP()
		}
		res, err := limiter.Limit(c.Request.Context(), identity)
		if err != nil {
			log.WithError(err).WithField("policy", policy.Name).Warn("ratelimit: backend unavailable")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Reset.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.UnixMilli(), 10))
		}
		if !res.Success {
			m.RateLimited(policy.Name)
			onError(c, apperr.RateLimited(policy.Message))
			c.Abort()
			return
		}
		c.Next()
	}
}
