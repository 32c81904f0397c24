package handlers

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/daffahilmyf/go-imagegen/internal/infra/relay"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/middleware"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

const eventsWriteSlack = 5 * time.Second

type generateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type pollRequest struct {
	MessageID string `json:"messageId" binding:"required"`
}

func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondMessage(c, apperr.Validation("prompt is required"))
		return
	}
	messageID, err := h.generation.Submit(c.Request.Context(), middleware.PrincipalFrom(c), service.GenerateRequest{
		Prompt:         req.Prompt,
		IdempotencyKey: c.GetString(middleware.IdempotencyKeyCtx),
		RequestHash:    c.GetString(middleware.IdempotencyHashCtx),
	})
	if err != nil {
		response.RespondMessage(c, err)
		return
	}
	c.JSON(nethttp.StatusAccepted, gin.H{"messageId": messageID})
}

func (h *Handler) poll(c *gin.Context) {
	var req pollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondMessage(c, apperr.Validation("messageId is required"))
		return
	}
	urls, err := h.generation.Poll(c.Request.Context(), middleware.PrincipalFrom(c), req.MessageID)
	if err != nil {
		response.RespondMessage(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"urls": urls})
}

// callback runs behind the signature check; the body is the relay envelope.
func (h *Handler) callback(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondMessage(c, apperr.Validation("invalid request body"))
		return
	}
	env, body, err := relay.DecodeEnvelope(raw)
	if err != nil {
		response.RespondMessage(c, apperr.Validation(err.Error()))
		return
	}
	if err := h.generation.HandleCallback(c.Request.Context(), env.SourceMessageID, env.Status, body); err != nil {
		response.RespondMessage(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"status": "ok"})
}

// events pushes the terminal state as a single server-sent event. The watch
// may outlast server.write_timeout, so the connection gets its own deadline.
func (h *Handler) events(c *gin.Context) {
	deadline := time.Now().Add(h.watch + eventsWriteSlack)
	if err := nethttp.NewResponseController(c.Writer).SetWriteDeadline(deadline); err != nil && !errors.Is(err, nethttp.ErrNotSupported) {
		h.log.WithError(err).Warn("extend events write deadline failed")
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.watch)
	defer cancel()

	req, err := h.generation.Watch(ctx, middleware.PrincipalFrom(c), c.Param("messageId"))
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.Header("Cache-Control", "no-cache")
		c.SSEvent("timeout", gin.H{"message": "generation still running"})
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		response.RespondMessage(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	switch req.Status {
	case entity.PendingDone:
		c.SSEvent("done", gin.H{"urls": req.URLs})
	default:
		c.SSEvent("failed", gin.H{"message": req.Reason})
	}
}

func (h *Handler) file(c *gin.Context) {
	key := c.Param("key")
	reader, info, err := h.storage.Open(c.Request.Context(), key)
	if errors.Is(err, repository.ErrObjectNotFound) {
		response.RespondMessage(c, apperr.NotFound("file not found"))
		return
	}
	if err != nil {
		response.RespondMessage(c, apperr.Storage("open object", err))
		return
	}
	defer reader.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(nethttp.StatusOK, int64(info.Size), contentType, reader, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
		"ETag":          strconv.Quote(key),
	})
}
