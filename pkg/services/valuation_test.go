package services

import (
	"testing"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestTotalValueUsesQuotesWithCostFallback(t *testing.T) {
	holdings := []models.Holding{
		{Symbol: "A", Quantity: 10, AvgBuyPrice: 50},
		{Symbol: "B", Quantity: 4, AvgBuyPrice: 200},
	}
	quotes := map[string]Quote{
		"A": {LastPrice: 60},
		// B has no quote: valued at average cost
	}

	assert.InDelta(t, 10*60.0+4*200.0, HoldingsValue(holdings, quotes), 1e-9)
	assert.InDelta(t, 1000.0+10*60.0+4*200.0, TotalValue(1000, holdings, quotes), 1e-9)
}

func TestPriceOrFallbackIgnoresZeroQuotes(t *testing.T) {
	holding := models.Holding{Symbol: "A", Quantity: 1, AvgBuyPrice: 42}

	// A present-but-zero quote is treated as missing
	price := PriceOrFallback(holding, map[string]Quote{"A": {LastPrice: 0}})
	assert.InDelta(t, 42.0, price, 1e-9)
}

func TestGainLossPercentGuardsZeroBudget(t *testing.T) {
	assert.InDelta(t, 0.0, GainLossPercent(1234, 0), 1e-9)
	assert.InDelta(t, 10.0, GainLossPercent(11000, 10000), 1e-9)
	assert.InDelta(t, -5.0, GainLossPercent(9500, 10000), 1e-9)
}
