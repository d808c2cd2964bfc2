package services

import "github.com/artpro/papertrade/pkg/models"

// PriceOrFallback returns the price to value a holding at: the live quote
// when present, otherwise the holding's average cost. A missing quote is
// never an error on the read path.
func PriceOrFallback(holding models.Holding, quotes map[string]Quote) float64 {
	if quote, ok := quotes[holding.Symbol]; ok && quote.LastPrice > 0 {
		return quote.LastPrice
	}
	return holding.AvgBuyPrice
}

// HoldingsValue marks every holding to market using the quote map with
// average-cost fallback
func HoldingsValue(holdings []models.Holding, quotes map[string]Quote) float64 {
	var total float64
	for _, holding := range holdings {
		total += float64(holding.Quantity) * PriceOrFallback(holding, quotes)
	}
	return total
}

// TotalValue is the single source of truth for a portfolio's value:
// cash plus mark-to-market holdings. Always recomputed in full, never
// patched incrementally.
func TotalValue(cash float64, holdings []models.Holding, quotes map[string]Quote) float64 {
	return cash + HoldingsValue(holdings, quotes)
}

// GainLoss is the portfolio's absolute performance against its budget
func GainLoss(totalValue, budget float64) float64 {
	return totalValue - budget
}

// GainLossPercent is the relative performance; a zero budget yields 0
// rather than NaN or infinity
func GainLossPercent(totalValue, budget float64) float64 {
	if budget == 0 {
		return 0
	}
	return (totalValue - budget) / budget * 100
}
