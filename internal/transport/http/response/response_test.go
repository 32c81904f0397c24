package response

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{apperr.ErrUnauthorized, nethttp.StatusUnauthorized, "unauthorized"},
		{apperr.Validation("prompt is required"), nethttp.StatusBadRequest, "prompt is required"},
		{apperr.Quota("no tokens"), nethttp.StatusBadRequest, "no tokens"},
		{apperr.Moderation("flagged"), nethttp.StatusBadRequest, "flagged"},
		{apperr.RateLimited(""), nethttp.StatusTooManyRequests, "too many requests"},
		{apperr.NotFound(""), nethttp.StatusNotFound, "not found"},
		{apperr.Conflict("busy"), nethttp.StatusConflict, "busy"},
		{apperr.Gone("image generation failed"), nethttp.StatusGone, "image generation failed"},
		{apperr.Provider("create image", errors.New("secret upstream detail")), nethttp.StatusInternalServerError, "internal server error"},
		{apperr.Storage("put", errors.New("bucket")), nethttp.StatusInternalServerError, "internal server error"},
		{fmt.Errorf("wrapped: %w", errors.New("db down")), nethttp.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		status, message := StatusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.message, message, tc.err.Error())
	}
}

func TestRespondErrIncludesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Set(RequestIDKey, "req-1")

	RespondErr(c, apperr.NotFound("image not found"))

	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"image not found"},"meta":{"requestId":"req-1"}}`, rec.Body.String())
}

func TestRespondMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondMessage(c, apperr.Gone("image generation failed"))

	assert.Equal(t, nethttp.StatusGone, rec.Code)
	assert.JSONEq(t, `{"message":"image generation failed"}`, rec.Body.String())
}
