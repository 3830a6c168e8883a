package utils

import (
	"github.com/gin-gonic/gin"

	"auction-settlement/internal/biddingerrors"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response. The kind field carries the
// error family (not_found, conflict, ...) so clients can branch without
// parsing the message.
func JSONError(c *gin.Context, status int, err error, message string) {
	if err == nil {
		err = biddingerrors.ErrInternal
	}
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"kind":    biddingerrors.Kind(err),
		"error":   err.Error(),
	})
}
