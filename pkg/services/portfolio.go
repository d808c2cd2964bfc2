package services

import (
	"errors"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ActivePortfolio resolves the portfolio a user's trades apply to: the
// cohort portfolio while the user is an active cohort member, otherwise
// the personal portfolio.
func ActivePortfolio(db *gorm.DB, userID uint) (*models.Portfolio, error) {
	var member models.CohortMember
	err := db.Where("user_id = ? AND status = ?", userID, "active").First(&member).Error
	if err == nil {
		var portfolio models.Portfolio
		if err := db.Where("owner_id = ? AND cohort_id = ?", userID, member.CohortID).First(&portfolio).Error; err == nil {
			return &portfolio, nil
		}
	}
	return PersonalPortfolio(db, userID)
}

// PersonalPortfolio returns the user's personal (non-cohort) portfolio
func PersonalPortfolio(db *gorm.DB, userID uint) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := db.Where("owner_id = ? AND cohort_id IS NULL", userID).First(&portfolio).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound("portfolio not found")
	}
	if err != nil {
		return nil, ErrPersistence("load portfolio", err)
	}
	return &portfolio, nil
}

// CreatePersonalPortfolio creates the signup-time personal portfolio with
// the platform default budget
func CreatePersonalPortfolio(db *gorm.DB, userID uint, budget float64) (*models.Portfolio, error) {
	portfolio := models.Portfolio{
		OwnerID:             userID,
		BudgetAmount:        budget,
		CurrentCash:         budget,
		TotalValue:          budget,
		CustomBudgetEnabled: true,
	}
	if err := db.Create(&portfolio).Error; err != nil {
		return nil, ErrPersistence("create portfolio", err)
	}
	return &portfolio, nil
}

// HoldingView is one holding enriched with market data
type HoldingView struct {
	Symbol          string  `json:"symbol"`
	CompanyName     string  `json:"company_name"`
	Sector          string  `json:"sector"`
	Quantity        int     `json:"quantity"`
	AvgBuyPrice     float64 `json:"avg_buy_price"`
	CurrentPrice    float64 `json:"current_price"`
	CurrentValue    float64 `json:"current_value"`
	GainLoss        float64 `json:"gain_loss"`
	GainLossPercent float64 `json:"gain_loss_percent"`
}

// PortfolioView is the read model exposed to the UI and reporting
type PortfolioView struct {
	PortfolioID       uint          `json:"portfolio_id"`
	BudgetAmount      float64       `json:"budget_amount"`
	CurrentCash       float64       `json:"current_cash"`
	TotalValue        float64       `json:"total_value"`
	TotalInvested     float64       `json:"total_invested"`
	HoldingsValue     float64       `json:"holdings_value"`
	GainLoss          float64       `json:"gain_loss"`
	GainLossPercent   float64       `json:"gain_loss_percent"`
	HoldingsCount     int           `json:"holdings_count"`
	IsCohortPortfolio bool          `json:"is_cohort_portfolio"`
	Holdings          []HoldingView `json:"holdings"`
}

// PortfolioService builds portfolio read models
type PortfolioService struct {
	db     *gorm.DB
	quotes QuoteProvider
	logger zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(db *gorm.DB, quotes QuoteProvider, logger zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		db:     db,
		quotes: quotes,
		logger: logger,
	}
}

// View assembles the full read model for a user's active portfolio,
// marking holdings to market with average-cost fallback for symbols the
// feed cannot price right now
func (s *PortfolioService) View(userID uint) (*PortfolioView, error) {
	portfolio, err := ActivePortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}

	var holdings []models.Holding
	if err := s.db.Where("portfolio_id = ?", portfolio.ID).Order("symbol ASC").Find(&holdings).Error; err != nil {
		return nil, ErrPersistence("load holdings", err)
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}

	quotes, err := s.quotes.GetQuotes(symbols)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Quote feed unavailable, valuing holdings at cost")
		quotes = map[string]Quote{}
	}

	views := make([]HoldingView, 0, len(holdings))
	var holdingsValue float64
	for _, h := range holdings {
		price := PriceOrFallback(h, quotes)
		value := float64(h.Quantity) * price
		costBasis := float64(h.Quantity) * h.AvgBuyPrice
		holdingsValue += value

		view := HoldingView{
			Symbol:       h.Symbol,
			Quantity:     h.Quantity,
			AvgBuyPrice:  h.AvgBuyPrice,
			CurrentPrice: price,
			CurrentValue: value,
			GainLoss:     value - costBasis,
		}
		if costBasis > 0 {
			view.GainLossPercent = (value - costBasis) / costBasis * 100
		}

		var stock models.Stock
		if err := s.db.Where("symbol = ?", h.Symbol).First(&stock).Error; err == nil {
			view.CompanyName = stock.CompanyName
			view.Sector = stock.Sector
		}

		views = append(views, view)
	}

	totalValue := portfolio.CurrentCash + holdingsValue

	return &PortfolioView{
		PortfolioID:       portfolio.ID,
		BudgetAmount:      portfolio.BudgetAmount,
		CurrentCash:       portfolio.CurrentCash,
		TotalValue:        totalValue,
		TotalInvested:     portfolio.BudgetAmount - portfolio.CurrentCash,
		HoldingsValue:     holdingsValue,
		GainLoss:          GainLoss(totalValue, portfolio.BudgetAmount),
		GainLossPercent:   GainLossPercent(totalValue, portfolio.BudgetAmount),
		HoldingsCount:     len(holdings),
		IsCohortPortfolio: portfolio.IsCohortPortfolio,
		Holdings:          views,
	}, nil
}
