package handlers

import (
	nethttp "net/http"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/middleware"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

type tokenCountResponse struct {
	// TokenCount is a number, or "unlimited".
	TokenCount       any        `json:"tokenCount"`
	NextRegeneration *time.Time `json:"nextRegeneration"`
}

func (h *Handler) tokenCount(c *gin.Context) {
	count, err := h.accounts.GetTokenCount(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	out := tokenCountResponse{TokenCount: count.Count, NextRegeneration: count.NextRegeneration}
	if count.Unlimited {
		out.TokenCount = "unlimited"
	}
	response.RespondOK(c, nethttp.StatusOK, out)
}

type improvePromptRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

func (h *Handler) improvePrompt(c *gin.Context) {
	var req improvePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, apperr.Validation("prompt is required"))
		return
	}
	improved, err := h.prompts.Improve(c.Request.Context(), middleware.PrincipalFrom(c), req.Prompt)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, nethttp.StatusOK, gin.H{"prompt": improved})
}
