package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// StockHandler handles stock reference data requests
type StockHandler struct {
	db     *gorm.DB
	quotes services.QuoteProvider
	logger zerolog.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(db *gorm.DB, quotes services.QuoteProvider, logger zerolog.Logger) *StockHandler {
	return &StockHandler{
		db:     db,
		quotes: quotes,
		logger: logger,
	}
}

// GetAllStocks returns all tradable stocks with their last cached quotes
func (h *StockHandler) GetAllStocks(c *gin.Context) {
	var stocks []models.Stock
	if err := h.db.Order("symbol ASC").Find(&stocks).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch stocks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stocks"})
		return
	}

	c.JSON(http.StatusOK, stocks)
}

// GetStock returns one stock with a live quote when the feed has one;
// the cached last price is served otherwise
func (h *StockHandler) GetStock(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	var stock models.Stock
	if err := h.db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
		} else {
			h.logger.Error().Err(err).Msg("Failed to fetch stock")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock"})
		}
		return
	}

	quotes, err := h.quotes.GetQuotes([]string{symbol})
	if err == nil {
		if quote, ok := quotes[symbol]; ok {
			stock.LastPrice = quote.LastPrice
			stock.PreviousClose = quote.PreviousClose
			stock.Volume = quote.Volume
		}
	}

	c.JSON(http.StatusOK, stock)
}
