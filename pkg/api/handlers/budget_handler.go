package handlers

import (
	"net/http"

	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BudgetHandler handles budget status and revision requests
type BudgetHandler struct {
	budgets *services.BudgetService
	logger  zerolog.Logger
}

// NewBudgetHandler creates a new budget handler
func NewBudgetHandler(budgets *services.BudgetService, logger zerolog.Logger) *BudgetHandler {
	return &BudgetHandler{
		budgets: budgets,
		logger:  logger,
	}
}

// UpdateBudgetRequest represents a budget revision
type UpdateBudgetRequest struct {
	NewBudget float64 `json:"new_budget" binding:"required,gt=0"`
	Reason    string  `json:"reason"`
}

// GetBudget returns the current budget, whether it is user-editable, and
// the revision audit trail
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	status, err := h.budgets.Status(middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// UpdateBudget revises the portfolio's nominal budget
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request, new_budget is required"})
		return
	}

	username, _ := c.Get("username")
	changedBy, _ := username.(string)

	portfolio, err := h.budgets.UpdateBudget(middleware.UserID(c), req.NewBudget, req.Reason, changedBy)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, portfolio)
}
