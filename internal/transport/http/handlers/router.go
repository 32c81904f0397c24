package handlers

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"
)

type Router struct {
	handler *Handler
}

func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Middlewares are built by the caller so limiter backends and verifiers stay
// swappable. Relay variants answer with a bare {message} body.
type Middlewares struct {
	Auth         gin.HandlerFunc
	RelayAuth    gin.HandlerFunc
	DefaultLimit gin.HandlerFunc
	RelayLimit   gin.HandlerFunc
	PromptLimit  gin.HandlerFunc
	Idempotency  gin.HandlerFunc
	Signature    gin.HandlerFunc
	Metrics      nethttp.Handler
}

func (r *Router) RegisterRoutes(engine *gin.Engine, mw Middlewares) {
	h := r.handler
	engine.GET("/healthz", h.health)
	if mw.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(mw.Metrics))
	}

	api := engine.Group("/api")
	api.GET("/healthcheck", h.healthcheck)
	api.POST("/healthcheck", h.healthcheck)

	image := api.Group("/image")
	image.POST("/generate", mw.RelayAuth, mw.RelayLimit, mw.Idempotency, h.generate)
	image.POST("/poll", mw.RelayAuth, h.poll)
	image.GET("/events/:messageId", mw.RelayAuth, h.events)
	image.POST("/callback", mw.Signature, h.callback)
	image.GET("/file/:key", h.file)

	v1 := api.Group("/v1", mw.Auth)
	v1.GET("/images", h.listImages)
	v1.POST("/images/generate", mw.DefaultLimit, h.generateImages)
	v1.DELETE("/images/:id", mw.DefaultLimit, h.deleteImage)
	v1.POST("/prompts/improve", mw.PromptLimit, h.improvePrompt)
	v1.GET("/tokens", h.tokenCount)
}
