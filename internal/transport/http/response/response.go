package response

import (
	nethttp "net/http"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

type APIError struct {
	Message string `json:"message"`
}

type Meta struct {
	RequestID string `json:"requestId,omitempty"`
}

type APIResponse struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{
		Data: data,
		Meta: meta(c),
	})
}

func RespondError(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{
		Error: &APIError{Message: message},
		Meta:  meta(c),
	})
}

// RespondErr maps err to its status and writes the envelope. Details of
// internal, provider and storage failures stay in the logs.
func RespondErr(c *gin.Context, err error) {
	_ = c.Error(err)
	status, message := StatusFor(err)
	RespondError(c, status, message)
}

// RespondMessage writes the bare {message} body used by the relay routes.
func RespondMessage(c *gin.Context, err error) {
	_ = c.Error(err)
	status, message := StatusFor(err)
	c.JSON(status, APIError{Message: message})
}

func StatusFor(err error) (int, string) {
	kind := apperr.KindOf(err)
	message := apperr.MessageOf(err)
	var status int
	switch kind {
	case apperr.KindUnauthorized:
		status = nethttp.StatusUnauthorized
	case apperr.KindValidation, apperr.KindQuota, apperr.KindModeration:
		status = nethttp.StatusBadRequest
	case apperr.KindRateLimited:
		status = nethttp.StatusTooManyRequests
	case apperr.KindNotFound:
		status = nethttp.StatusNotFound
	case apperr.KindConflict:
		status = nethttp.StatusConflict
	case apperr.KindGone:
		status = nethttp.StatusGone
	case apperr.KindProvider, apperr.KindStorage, apperr.KindInternal:
		return nethttp.StatusInternalServerError, "internal server error"
	default:
		return nethttp.StatusInternalServerError, "internal server error"
	}
	if message == "" {
		message = defaultMessage(kind)
	}
	return status, message
}

func defaultMessage(kind apperr.Kind) string {
	switch kind {
	case apperr.KindRateLimited:
		return "too many requests"
	case apperr.KindNotFound:
		return "not found"
	case apperr.KindUnauthorized:
		return "unauthorized"
	default:
		return kind.String()
	}
}

func meta(c *gin.Context) *Meta {
	id := c.GetString(RequestIDKey)
	if id == "" {
		return nil
	}
	return &Meta{RequestID: id}
}
