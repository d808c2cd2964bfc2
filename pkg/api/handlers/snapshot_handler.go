package handlers

import (
	"net/http"

	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SnapshotHandler handles valuation history requests
type SnapshotHandler struct {
	db        *gorm.DB
	snapshots *services.SnapshotService
	logger    zerolog.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(db *gorm.DB, snapshots *services.SnapshotService, logger zerolog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		db:        db,
		snapshots: snapshots,
		logger:    logger,
	}
}

// History returns the user's snapshot time series for a period
// (1D, 1W, 1M, 3M, 1Y, ALL; default ALL)
func (h *SnapshotHandler) History(c *gin.Context) {
	period := c.DefaultQuery("period", "ALL")

	snapshots, err := h.snapshots.History(middleware.UserID(c), period)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period":    period,
		"snapshots": snapshots,
	})
}

// Run triggers an on-demand snapshot batch over all funded portfolios
// (admin operation)
func (h *SnapshotHandler) Run(c *gin.Context) {
	if !requireRole(c, h.db, "admin") {
		return
	}

	result := h.snapshots.TakeAll()
	c.JSON(http.StatusOK, result)
}
