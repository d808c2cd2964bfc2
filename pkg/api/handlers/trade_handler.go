package handlers

import (
	"net/http"
	"strconv"

	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// TradeHandler handles buy/sell orders and trade history
type TradeHandler struct {
	trades *services.TradeService
	logger zerolog.Logger
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(trades *services.TradeService, logger zerolog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// OrderRequest represents a buy or sell order
type OrderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// Buy executes a market buy for the authenticated user
func (h *TradeHandler) Buy(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request, symbol and a positive quantity are required"})
		return
	}

	result, err := h.trades.Buy(middleware.UserID(c), req.Symbol, req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Sell executes a market sell for the authenticated user
func (h *TradeHandler) Sell(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request, symbol and a positive quantity are required"})
		return
	}

	result, err := h.trades.Sell(middleware.UserID(c), req.Symbol, req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// History returns the user's trades newest first with pagination metadata
func (h *TradeHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trades, total, err := h.trades.TradeHistory(middleware.UserID(c), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}
