package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgelink/relay/internal/fault"
)

// writeError renders a failure in the wire error shape peers understand,
// {"errcode": ..., "error": ...}, with the status the fault kind maps to.
// Unclassified errors become opaque 500s.
func writeError(c *gin.Context, err error) {
	var fe *fault.Error
	if errors.As(err, &fe) {
		c.AbortWithStatusJSON(fe.Kind.HTTPStatus(), gin.H{
			"errcode": fe.Code,
			"error":   fe.Message,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"errcode": fault.CodeForgeUnknownError,
		"error":   "internal error",
	})
}

// bindJSON decodes the request body into out, rendering the invalid-payload
// fault on malformed input. Returns false when the request was rejected.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, fault.InvalidPayload("malformed request body"))
		return false
	}
	return true
}
