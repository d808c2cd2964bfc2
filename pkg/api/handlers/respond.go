package handlers

import (
	"net/http"

	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/models"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// respondError maps a service error to its stable code and HTTP status.
// Unrecognized errors become an opaque 500.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	if appErr, ok := services.AsAppError(err); ok {
		body := gin.H{
			"code":  appErr.Code,
			"error": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if appErr.Status >= http.StatusInternalServerError {
			logger.Error().Err(err).Msg("Request failed")
		}
		c.JSON(appErr.Status, body)
		return
	}

	logger.Error().Err(err).Msg("Unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// requireRole checks the caller's user type against the allowed roles,
// writing the 403 itself when the check fails
func requireRole(c *gin.Context, db *gorm.DB, roles ...string) bool {
	var user models.User
	if err := db.First(&user, middleware.UserID(c)).Error; err == nil {
		for _, role := range roles {
			if user.UserType == role {
				return true
			}
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	return false
}
