package handlers

import (
	"net/http"

	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PortfolioHandler handles portfolio read-model requests
type PortfolioHandler struct {
	portfolios *services.PortfolioService
	logger     zerolog.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(portfolios *services.PortfolioService, logger zerolog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolios: portfolios,
		logger:     logger,
	}
}

// GetPortfolio returns the authenticated user's active portfolio, marked
// to market with per-holding detail
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	view, err := h.portfolios.View(middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
