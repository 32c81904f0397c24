package middleware

import (
	"strings"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

var defaultOnError = response.RespondErr

type TokenVerifier interface {
	Verify(token string) (service.Principal, error)
}

// Auth rejects requests without a valid bearer token. onError writes the
// rejection so relay routes and typed routes keep their own body shapes.
func Auth(verifier TokenVerifier, onError func(*gin.Context, error)) gin.HandlerFunc {
	if onError == nil {
		onError = defaultOnError
	}
	return func(c *gin.Context) {
		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			onError(c, apperr.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}
		p, err := verifier.Verify(token)
		if err != nil {
			_ = c.Error(err)
			onError(c, apperr.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the caller set by Auth.
func PrincipalFrom(c *gin.Context) service.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(service.Principal)
	return principal
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
