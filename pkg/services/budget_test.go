package services

import (
	"testing"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestBudgetService(db *gorm.DB, quotes QuoteProvider) *BudgetService {
	return NewBudgetService(db, quotes, NewPortfolioLocks(), zerolog.Nop())
}

// seedDeployed puts 3000 to work: 30 shares of X at 100, cash 7000
func seedDeployed(t *testing.T, db *gorm.DB, portfolioID uint) {
	t.Helper()
	holding := models.Holding{PortfolioID: portfolioID, Symbol: "X", Quantity: 30, AvgBuyPrice: 100}
	require.NoError(t, db.Create(&holding).Error)
	require.NoError(t, db.Model(&models.Portfolio{}).Where("id = ?", portfolioID).
		Updates(map[string]interface{}{"current_cash": 7000.0, "total_value": 10000.0}).Error)
}

func TestUpdateBudgetPreservesInvestment(t *testing.T) {
	db := newTestDB(t)
	user, portfolio := seedUser(t, db, "alice", 10000)
	seedDeployed(t, db, portfolio.ID)

	svc := newTestBudgetService(db, &fakeQuotes{prices: map[string]float64{"X": 100}})
	updated, err := svc.UpdateBudget(user.ID, 20000, "more practice capital", "alice")
	require.NoError(t, err)

	assert.InDelta(t, 20000.0, updated.BudgetAmount, 1e-9)
	assert.InDelta(t, 17000.0, updated.CurrentCash, 1e-9) // 20000 - 3000 invested
	assert.InDelta(t, 20000.0, updated.TotalValue, 1e-9)  // cash + marked holdings

	// Audit trail
	var changes []models.BudgetChange
	require.NoError(t, db.Where("portfolio_id = ?", portfolio.ID).Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.InDelta(t, 10000.0, changes[0].OldBudget, 1e-9)
	assert.InDelta(t, 20000.0, changes[0].NewBudget, 1e-9)
	assert.Equal(t, "alice", changes[0].ChangedBy)
	assert.Equal(t, "more practice capital", changes[0].Reason)
}

func TestUpdateBudgetMarksHoldingsToMarket(t *testing.T) {
	db := newTestDB(t)
	user, portfolio := seedUser(t, db, "alice", 10000)
	seedDeployed(t, db, portfolio.ID)

	// The 30 shares mark to 110: total is recomputed from the market, not
	// patched from the stored value
	svc := newTestBudgetService(db, &fakeQuotes{prices: map[string]float64{"X": 110}})
	updated, err := svc.UpdateBudget(user.ID, 20000, "", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 17000.0+30*110.0, updated.TotalValue, 1e-9)

	// Feed down falls back to average cost
	svc = newTestBudgetService(db, &fakeQuotes{err: assert.AnError})
	updated, err = svc.UpdateBudget(user.ID, 25000, "", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 22000.0+30*100.0, updated.TotalValue, 1e-9)
}

func TestUpdateBudgetRange(t *testing.T) {
	db := newTestDB(t)
	user, _ := seedUser(t, db, "alice", 10000)
	svc := newTestBudgetService(db, &fakeQuotes{})

	for _, budget := range []float64{999, 10_000_001, 0, -5} {
		_, err := svc.UpdateBudget(user.ID, budget, "", "alice")
		appErr, ok := AsAppError(err)
		require.True(t, ok, "budget %v", budget)
		assert.Equal(t, CodeValidation, appErr.Code)
	}

	// Boundaries are inclusive
	_, err := svc.UpdateBudget(user.ID, 1000, "", "alice")
	require.NoError(t, err)
	_, err = svc.UpdateBudget(user.ID, 10_000_000, "", "alice")
	require.NoError(t, err)
}

func TestUpdateBudgetRejectsBelowInvestment(t *testing.T) {
	db := newTestDB(t)
	user, portfolio := seedUser(t, db, "alice", 10000)

	// 8000 deployed
	require.NoError(t, db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
		Update("current_cash", 2000.0).Error)

	svc := newTestBudgetService(db, &fakeQuotes{})
	_, err := svc.UpdateBudget(user.ID, 5000, "", "alice")
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, appErr.Code)
	assert.Contains(t, appErr.Message, "8000.00")
	assert.InDelta(t, 8000.0, appErr.Details["current_investment"].(float64), 1e-9)

	// Nothing changed
	assert.InDelta(t, 2000.0, loadPortfolio(t, db, portfolio.ID).CurrentCash, 1e-9)
}

func TestUpdateBudgetLocked(t *testing.T) {
	db := newTestDB(t)
	user, portfolio := seedUser(t, db, "alice", 10000)
	require.NoError(t, db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
		Update("custom_budget_enabled", false).Error)

	svc := newTestBudgetService(db, &fakeQuotes{})
	_, err := svc.UpdateBudget(user.ID, 20000, "", "alice")
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeBudgetLocked, appErr.Code)
}

func TestBudgetStatus(t *testing.T) {
	db := newTestDB(t)
	user, _ := seedUser(t, db, "alice", 10000)
	svc := newTestBudgetService(db, &fakeQuotes{})

	_, err := svc.UpdateBudget(user.ID, 15000, "ramp up", "alice")
	require.NoError(t, err)

	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 15000.0, status.BudgetAmount, 1e-9)
	assert.True(t, status.CustomBudgetEnabled)
	require.Len(t, status.History, 1)
	assert.InDelta(t, 15000.0, status.History[0].NewBudget, 1e-9)
}
