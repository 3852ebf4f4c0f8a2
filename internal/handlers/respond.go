// Package handlers implements the gin HTTP handlers for spec.md §6's
// external interface: agent registration and the deliberation operations.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deliberation/dsm-engine/internal/apierror"
)

// respondError maps a service-layer error to its HTTP status per the
// taxonomy in spec.md §7, falling back to 500 for anything unstructured.
func respondError(c *gin.Context, err error) {
	if apiErr, ok := apierror.As(err); ok {
		c.JSON(apiErr.HTTPStatus(), gin.H{"error": string(apiErr.Code), "message": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": string(apierror.Internal), "message": err.Error()})
}
