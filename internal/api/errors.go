package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/users"
)

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindIntegrity:
		return http.StatusUnprocessableEntity
	case apperr.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error response. Storage and unclassified errors
// are logged and hidden from the client; external failures are passed through.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, users.ErrInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError && kind != apperr.KindExternal {
		h.log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error", "kind": kind.String()})
		return
	}
	body := gin.H{"error": err.Error(), "kind": kind.String()}
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.KindValidation.String()})
}
