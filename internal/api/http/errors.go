package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firedesk/firedesk/internal/shared/types"
)

// respondError maps domain errors onto HTTP status codes. Process
// failures are 502 because the admin service itself is fine; it is the
// browser side that misbehaved.
func respondError(c *gin.Context, err error) {
	var verr *types.ValidationError
	var perr *types.ProcessError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, types.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
