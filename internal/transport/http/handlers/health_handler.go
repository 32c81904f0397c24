package handlers

import (
	"crypto/subtle"
	nethttp "net/http"

	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

func (h *Handler) health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.RespondOK(c, nethttp.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	response.RespondOK(c, nethttp.StatusOK, gin.H{"status": "ok"})
}

// healthcheck is the token-protected database probe used by external monitors.
func (h *Handler) healthcheck(c *gin.Context) {
	token := c.GetHeader("Authorization")
	if h.healthToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.healthToken)) != 1 {
		c.JSON(nethttp.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}
	healthy := true
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("healthcheck: database unreachable")
		healthy = false
	}
	c.JSON(nethttp.StatusOK, gin.H{"isDatabaseHealthy": healthy})
}
