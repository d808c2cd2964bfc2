package handlers

import (
	"net/http"
	"strconv"

	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/models"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CohortHandler handles cohort membership and migration requests
type CohortHandler struct {
	db      *gorm.DB
	cohorts *services.CohortService
	logger  zerolog.Logger
}

// NewCohortHandler creates a new cohort handler
func NewCohortHandler(db *gorm.DB, cohorts *services.CohortService, logger zerolog.Logger) *CohortHandler {
	return &CohortHandler{
		db:      db,
		cohorts: cohorts,
		logger:  logger,
	}
}

// JoinRequest carries the cohort entry code
type JoinRequest struct {
	EntryCode string `json:"entry_code" binding:"required"`
}

// Join backs up the user's personal portfolio and enrolls them in the
// cohort with a fresh portfolio on the cohort's default budget
func (h *CohortHandler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request, entry_code is required"})
		return
	}

	portfolio, err := h.cohorts.Join(middleware.UserID(c), req.EntryCode)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Joined cohort",
		"portfolio": portfolio,
	})
}

// Leave removes the user from the cohort and restores their personal
// portfolio from its backup
func (h *CohortHandler) Leave(c *gin.Context) {
	cohortID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cohort id"})
		return
	}

	if err := h.cohorts.Leave(middleware.UserID(c), uint(cohortID)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left cohort, personal portfolio restored"})
}

// CreateCohortRequest represents a new cohort
type CreateCohortRequest struct {
	Name              string  `json:"name" binding:"required"`
	EntryCode         string  `json:"entry_code" binding:"required,min=4"`
	DefaultBudget     float64 `json:"default_budget" binding:"required,gt=0"`
	AllowCustomBudget bool    `json:"allow_custom_budget"`
}

// Create registers a new cohort (teacher/admin operation)
func (h *CohortHandler) Create(c *gin.Context) {
	if !requireRole(c, h.db, "teacher", "admin") {
		return
	}

	var req CreateCohortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var existing models.Cohort
	if err := h.db.Where("entry_code = ?", req.EntryCode).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Entry code already in use"})
		return
	}

	cohort := models.Cohort{
		Name:              req.Name,
		EntryCode:         req.EntryCode,
		DefaultBudget:     req.DefaultBudget,
		AllowCustomBudget: req.AllowCustomBudget,
	}
	if err := h.db.Create(&cohort).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to create cohort")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create cohort"})
		return
	}

	h.logger.Info().Str("name", cohort.Name).Msg("Cohort created")
	c.JSON(http.StatusCreated, cohort)
}

// OrphanedBackups lists active backups with no corresponding cohort
// portfolio, for administrative reconciliation
func (h *CohortHandler) OrphanedBackups(c *gin.Context) {
	if !requireRole(c, h.db, "admin") {
		return
	}

	backups, err := h.cohorts.FindOrphanedBackups()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orphaned": backups,
		"count":    len(backups),
	})
}
