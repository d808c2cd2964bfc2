package services

import (
	"errors"
	"testing"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBuyThenBuyThenSell(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, portfolio := seedUser(t, db, "alice", 10000)

	quotes := &fakeQuotes{prices: map[string]float64{"X": 100}}
	svc := newTestTradeService(t, db, quotes)

	// Buy 5 @ 100
	result, err := svc.Buy(user.ID, "X", 5)
	require.NoError(t, err)
	assert.Equal(t, "BUY", result.Trade.Side)
	assert.InDelta(t, 100.0, result.Trade.Price, 1e-9)
	assert.InDelta(t, 500.0, result.Trade.TotalAmount, 1e-9)
	assert.InDelta(t, 9500.0, result.CurrentCash, 1e-9)
	assert.InDelta(t, 10000.0, result.TotalValue, 1e-9)
	require.NotNil(t, result.Holding)
	assert.Equal(t, 5, result.Holding.Quantity)
	assert.InDelta(t, 100.0, result.Holding.AvgBuyPrice, 1e-9)

	// Buy 5 more @ 120: weighted average moves to 110
	quotes.SetPrice("X", 120)
	result, err = svc.Buy(user.ID, "X", 5)
	require.NoError(t, err)
	assert.InDelta(t, 8900.0, result.CurrentCash, 1e-9)
	require.NotNil(t, result.Holding)
	assert.Equal(t, 10, result.Holding.Quantity)
	assert.InDelta(t, 110.0, result.Holding.AvgBuyPrice, 1e-9)

	// Sell 4 @ 130: realized P&L against average cost, average unchanged
	quotes.SetPrice("X", 130)
	result, err = svc.Sell(user.ID, "X", 4)
	require.NoError(t, err)
	assert.InDelta(t, 520.0, result.Trade.TotalAmount, 1e-9)
	assert.InDelta(t, 440.0, result.CostBasis, 1e-9)
	assert.InDelta(t, 80.0, result.ProfitLoss, 1e-9)
	assert.InDelta(t, 9420.0, result.CurrentCash, 1e-9)
	require.NotNil(t, result.Holding)
	assert.Equal(t, 6, result.Holding.Quantity)
	assert.InDelta(t, 110.0, result.Holding.AvgBuyPrice, 1e-9)

	// Valuation identity: total value equals cash + marked holdings
	reloaded := loadPortfolio(t, db, portfolio.ID)
	assert.InDelta(t, reloaded.CurrentCash+6*130.0, reloaded.TotalValue, 1e-9)

	// Money conservation: cash delta equals the signed trade amounts
	var trades []models.Trade
	require.NoError(t, db.Where("portfolio_id = ?", portfolio.ID).Find(&trades).Error)
	var net float64
	for _, trade := range trades {
		if trade.Side == "BUY" {
			net -= trade.TotalAmount
		} else {
			net += trade.TotalAmount
		}
	}
	assert.InDelta(t, net, reloaded.CurrentCash-10000.0, 1e-9)
}

func TestBuyValidation(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, _ := seedUser(t, db, "alice", 10000)
	svc := newTestTradeService(t, db, &fakeQuotes{prices: map[string]float64{"X": 100}})

	_, err := svc.Buy(user.ID, "X", 0)
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, appErr.Code)

	_, err = svc.Buy(user.ID, "NOPE", 1)
	appErr, ok = AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, appErr.Code)
}

func TestBuyInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, portfolio := seedUser(t, db, "alice", 1000)
	svc := newTestTradeService(t, db, &fakeQuotes{prices: map[string]float64{"X": 300}})

	_, err := svc.Buy(user.ID, "X", 4)
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientFunds, appErr.Code)
	assert.InDelta(t, 200.0, appErr.Details["shortfall"].(float64), 1e-9)

	// Nothing persisted
	assert.EqualValues(t, 0, countTrades(t, db, portfolio.ID))
	assert.InDelta(t, 1000.0, loadPortfolio(t, db, portfolio.ID).CurrentCash, 1e-9)
}

func TestBuyPriceUnavailableFailsClosed(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, portfolio := seedUser(t, db, "alice", 10000)

	// Feed is up but has no quote for X
	svc := newTestTradeService(t, db, &fakeQuotes{prices: map[string]float64{}})

	_, err := svc.Buy(user.ID, "X", 3)
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodePriceUnavailable, appErr.Code)

	// No trade, holding or cash change persists
	assert.EqualValues(t, 0, countTrades(t, db, portfolio.ID))
	assert.Empty(t, loadHoldings(t, db, portfolio.ID))
	assert.InDelta(t, 10000.0, loadPortfolio(t, db, portfolio.ID).CurrentCash, 1e-9)

	// Feed entirely down behaves the same
	svc = newTestTradeService(t, db, &fakeQuotes{err: errors.New("feed down")})
	_, err = svc.Buy(user.ID, "X", 3)
	appErr, ok = AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodePriceUnavailable, appErr.Code)
}

func TestSellInsufficientShares(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, _ := seedUser(t, db, "alice", 10000)
	quotes := &fakeQuotes{prices: map[string]float64{"X": 100}}
	svc := newTestTradeService(t, db, quotes)

	// No position at all
	_, err := svc.Sell(user.ID, "X", 1)
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientShares, appErr.Code)
	assert.Equal(t, 0, appErr.Details["owned"].(int))

	// Position smaller than requested
	_, err = svc.Buy(user.ID, "X", 2)
	require.NoError(t, err)
	_, err = svc.Sell(user.ID, "X", 5)
	appErr, ok = AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientShares, appErr.Code)
	assert.Equal(t, 2, appErr.Details["owned"].(int))
	assert.Equal(t, 5, appErr.Details["requested"].(int))
}

func TestSellAllRemovesHolding(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, portfolio := seedUser(t, db, "alice", 10000)
	quotes := &fakeQuotes{prices: map[string]float64{"X": 100}}
	svc := newTestTradeService(t, db, quotes)

	_, err := svc.Buy(user.ID, "X", 5)
	require.NoError(t, err)

	result, err := svc.Sell(user.ID, "X", 5)
	require.NoError(t, err)
	assert.Nil(t, result.Holding)

	// The row is deleted, never kept at quantity zero
	assert.Empty(t, loadHoldings(t, db, portfolio.ID))
	assert.InDelta(t, 10000.0, loadPortfolio(t, db, portfolio.ID).CurrentCash, 1e-9)
}

func TestBuyCompensatesOnPortfolioWriteFailure(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, portfolio := seedUser(t, db, "alice", 10000)
	quotes := &fakeQuotes{prices: map[string]float64{"X": 100}}
	svc := newTestTradeService(t, db, quotes)

	// Seed an existing position so the undo path restores rather than deletes
	_, err := svc.Buy(user.ID, "X", 3)
	require.NoError(t, err)

	// Inject a write failure on the final portfolio update
	inject := true
	err = db.Callback().Update().Before("gorm:update").Register("test_fail_portfolio_update", func(tx *gorm.DB) {
		if inject && tx.Statement.Table == "portfolios" {
			tx.AddError(errors.New("injected write failure"))
		}
	})
	require.NoError(t, err)

	_, err = svc.Buy(user.ID, "X", 2)
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodePersistence, appErr.Code)

	inject = false

	// Compensation restored the pre-trade state exactly
	assert.EqualValues(t, 1, countTrades(t, db, portfolio.ID))
	holdings := loadHoldings(t, db, portfolio.ID)
	require.Len(t, holdings, 1)
	assert.Equal(t, 3, holdings[0].Quantity)
	assert.InDelta(t, 100.0, holdings[0].AvgBuyPrice, 1e-9)
	assert.InDelta(t, 9700.0, loadPortfolio(t, db, portfolio.ID).CurrentCash, 1e-9)
}

func TestBuyCompensationDeletesFreshHolding(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, portfolio := seedUser(t, db, "alice", 10000)
	quotes := &fakeQuotes{prices: map[string]float64{"X": 100}}
	svc := newTestTradeService(t, db, quotes)

	inject := true
	err := db.Callback().Update().Before("gorm:update").Register("test_fail_portfolio_update", func(tx *gorm.DB) {
		if inject && tx.Statement.Table == "portfolios" {
			tx.AddError(errors.New("injected write failure"))
		}
	})
	require.NoError(t, err)

	_, err = svc.Buy(user.ID, "X", 2)
	require.Error(t, err)
	inject = false

	// The holding created mid-sequence was deleted, not left at zero state
	assert.Empty(t, loadHoldings(t, db, portfolio.ID))
	assert.EqualValues(t, 0, countTrades(t, db, portfolio.ID))
	assert.InDelta(t, 10000.0, loadPortfolio(t, db, portfolio.ID).CurrentCash, 1e-9)
}

func TestTradeHistoryPagination(t *testing.T) {
	db := newTestDB(t)
	seedStock(t, db, "X", "X Corp")
	user, _ := seedUser(t, db, "alice", 100000)
	quotes := &fakeQuotes{prices: map[string]float64{"X": 10}}
	svc := newTestTradeService(t, db, quotes)

	for i := 0; i < 5; i++ {
		_, err := svc.Buy(user.ID, "X", 1)
		require.NoError(t, err)
	}

	trades, total, err := svc.TradeHistory(user.ID, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, trades, 2)

	trades, _, err = svc.TradeHistory(user.ID, 2, 4)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}
