package handlers

import (
	nethttp "net/http"
	"strconv"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/middleware"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

type listImagesQuery struct {
	Search string `form:"search"`
	Limit  int    `form:"limit"`
	Cursor string `form:"cursor"`
}

func (h *Handler) listImages(c *gin.Context) {
	var q listImagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.RespondErr(c, apperr.Validation("invalid query"))
		return
	}
	page, err := h.images.List(c.Request.Context(), middleware.PrincipalFrom(c), service.ListImagesInput{
		Search: q.Search,
		Limit:  q.Limit,
		Cursor: q.Cursor,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, nethttp.StatusOK, page)
}

func (h *Handler) generateImages(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, apperr.Validation("prompt is required"))
		return
	}
	images, err := h.images.Generate(c.Request.Context(), middleware.PrincipalFrom(c), req.Prompt)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, nethttp.StatusCreated, gin.H{"images": images})
}

func (h *Handler) deleteImage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondErr(c, apperr.Validation("invalid id"))
		return
	}
	image, err := h.images.Delete(c.Request.Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, nethttp.StatusOK, image)
}
