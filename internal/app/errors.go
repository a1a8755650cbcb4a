package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/waterfall/internal/pkg"
)

// renderError sends the JSON envelope for a router-level error. An empty
// message is replaced by a short label for the status code.
func renderError(c *gin.Context, code int, message string) {
	if message == "" {
		message = defaultStatusText(code)
	}
	c.AbortWithStatusJSON(code, pkg.Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// defaultStatusText returns a short lower-case label for common error codes.
func defaultStatusText(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusRequestTimeout:
		return "request timeout"
	case http.StatusBadGateway:
		return "upstream unavailable"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return "error"
	}
}
