package services

import (
	"fmt"
	"time"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Budget limits for user-editable portfolios
const (
	MinBudget = 1_000
	MaxBudget = 10_000_000
)

// BudgetService revises a portfolio's nominal budget while preserving the
// cash/invested split, with an append-only audit trail
type BudgetService struct {
	db     *gorm.DB
	quotes QuoteProvider
	locks  *PortfolioLocks
	logger zerolog.Logger
}

// NewBudgetService creates a new budget service
func NewBudgetService(db *gorm.DB, quotes QuoteProvider, locks *PortfolioLocks, logger zerolog.Logger) *BudgetService {
	return &BudgetService{
		db:     db,
		quotes: quotes,
		locks:  locks,
		logger: logger,
	}
}

// BudgetStatus is the current budget plus whether the user may edit it
type BudgetStatus struct {
	BudgetAmount        float64               `json:"budget_amount"`
	CurrentCash         float64               `json:"current_cash"`
	CurrentInvestment   float64               `json:"current_investment"`
	CustomBudgetEnabled bool                  `json:"custom_budget_enabled"`
	History             []models.BudgetChange `json:"history"`
}

// UpdateBudget changes the portfolio's nominal budget. Deployed capital
// (budget - cash, not mark-to-market) is preserved: the new cash balance
// is newBudget - investment, and a revision that would drive cash negative
// is rejected with the exact invested amount.
func (s *BudgetService) UpdateBudget(userID uint, newBudget float64, reason, changedBy string) (*models.Portfolio, error) {
	if newBudget < MinBudget || newBudget > MaxBudget {
		return nil, ErrValidation(fmt.Sprintf("budget must be between %d and %d", MinBudget, MaxBudget))
	}

	portfolio, err := ActivePortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(portfolio.ID)
	defer unlock()

	// Reload under the lock; a concurrent trade may have moved cash
	if err := s.db.First(portfolio, portfolio.ID).Error; err != nil {
		return nil, ErrPersistence("reload portfolio", err)
	}

	if !portfolio.CustomBudgetEnabled {
		return nil, ErrBudgetLocked()
	}

	currentInvestment := portfolio.BudgetAmount - portfolio.CurrentCash
	newCash := newBudget - currentInvestment
	if newCash < 0 {
		appErr := ErrValidation(fmt.Sprintf("cannot reduce budget below current investment of %.2f", currentInvestment))
		appErr.Details = map[string]interface{}{"current_investment": currentInvestment}
		return nil, appErr
	}

	change := models.BudgetChange{
		PortfolioID: portfolio.ID,
		OldBudget:   portfolio.BudgetAmount,
		NewBudget:   newBudget,
		ChangedBy:   changedBy,
		Reason:      reason,
		ChangedAt:   time.Now(),
	}
	if err := s.db.Create(&change).Error; err != nil {
		return nil, ErrPersistence("record budget change", err)
	}

	// Holdings are untouched by a budget revision; the total is still
	// recomputed in full rather than patched from the stored value
	var holdings []models.Holding
	if err := s.db.Where("portfolio_id = ?", portfolio.ID).Find(&holdings).Error; err != nil {
		return nil, ErrPersistence("load holdings", err)
	}
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	quotes := map[string]Quote{}
	if len(symbols) > 0 {
		if fetched, err := s.quotes.GetQuotes(symbols); err == nil {
			quotes = fetched
		} else {
			s.logger.Warn().Err(err).Msg("Quote feed unavailable during budget revision, using cost fallback")
		}
	}

	portfolio.BudgetAmount = newBudget
	portfolio.CurrentCash = newCash
	portfolio.TotalValue = TotalValue(newCash, holdings, quotes)

	err = s.db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
		Updates(map[string]interface{}{
			"budget_amount": portfolio.BudgetAmount,
			"current_cash":  portfolio.CurrentCash,
			"total_value":   portfolio.TotalValue,
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		return nil, ErrPersistence("update budget", err)
	}

	s.logger.Info().
		Uint("portfolio_id", portfolio.ID).
		Float64("old_budget", change.OldBudget).
		Float64("new_budget", newBudget).
		Str("changed_by", changedBy).
		Msg("Budget updated")

	return portfolio, nil
}

// Status returns the current budget, whether it is user-editable, and the
// ordered audit list
func (s *BudgetService) Status(userID uint) (*BudgetStatus, error) {
	portfolio, err := ActivePortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}

	var history []models.BudgetChange
	if err := s.db.Where("portfolio_id = ?", portfolio.ID).Order("changed_at DESC").Find(&history).Error; err != nil {
		return nil, ErrPersistence("load budget history", err)
	}

	return &BudgetStatus{
		BudgetAmount:        portfolio.BudgetAmount,
		CurrentCash:         portfolio.CurrentCash,
		CurrentInvestment:   portfolio.BudgetAmount - portfolio.CurrentCash,
		CustomBudgetEnabled: portfolio.CustomBudgetEnabled,
		History:             history,
	}, nil
}
