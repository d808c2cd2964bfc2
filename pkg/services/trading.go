package services

import (
	"errors"
	"fmt"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TradeService executes buy and sell orders against a user's simulated
// cash balance. Each order is a sequence of independent writes (trade,
// holding, portfolio) with no surrounding database transaction; partial
// failure is recovered by running the applied steps' undos in reverse.
type TradeService struct {
	db        *gorm.DB
	quotes    QuoteProvider
	snapshots *SnapshotService
	alerts    *AlertService
	locks     *PortfolioLocks
	logger    zerolog.Logger
}

// NewTradeService creates a new trade service
func NewTradeService(db *gorm.DB, quotes QuoteProvider, snapshots *SnapshotService, alerts *AlertService, locks *PortfolioLocks, logger zerolog.Logger) *TradeService {
	return &TradeService{
		db:        db,
		quotes:    quotes,
		snapshots: snapshots,
		alerts:    alerts,
		locks:     locks,
		logger:    logger,
	}
}

// TradeResult is the response payload for an executed order. Realized
// profit/loss on a sell is reported here, never stored on the trade row.
type TradeResult struct {
	Trade       models.Trade    `json:"trade"`
	Holding     *models.Holding `json:"holding,omitempty"`
	CurrentCash float64         `json:"current_cash"`
	TotalValue  float64         `json:"total_value"`
	CostBasis   float64         `json:"cost_basis,omitempty"`
	ProfitLoss  float64         `json:"profit_loss,omitempty"`
}

// Buy executes a market buy of quantity shares of symbol for the user's
// active portfolio
func (s *TradeService) Buy(userID uint, symbol string, quantity int) (*TradeResult, error) {
	if quantity <= 0 {
		return nil, ErrValidation("quantity must be positive")
	}

	var stock models.Stock
	if err := s.db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound(fmt.Sprintf("stock %s not found", symbol))
		}
		return nil, ErrPersistence("load stock", err)
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

	// Execution price fails closed: a buy never settles at a stale or
	// guessed price
	price, err := s.executionPrice(symbol)
	if err != nil {
		return nil, err
	}

	totalCost := price * float64(quantity)
	if totalCost > portfolio.CurrentCash {
		return nil, ErrInsufficientFunds(totalCost, portfolio.CurrentCash)
	}

	// Capture pre-trade state for the undo path
	var existing models.Holding
	hadHolding := true
	if err := s.db.Where("portfolio_id = ? AND symbol = ?", portfolio.ID, symbol).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersistence("load holding", err)
		}
		hadHolding = false
	}
	priorCash := portfolio.CurrentCash
	priorValue := portfolio.TotalValue

	trade := models.Trade{
		Reference:   uuid.NewString(),
		PortfolioID: portfolio.ID,
		Symbol:      symbol,
		Side:        "BUY",
		Quantity:    quantity,
		Price:       price,
		TotalAmount: totalCost,
	}

	var holding models.Holding

	steps := []step{
		{
			name: "append trade",
			apply: func() error {
				return s.db.Create(&trade).Error
			},
			undo: func() error {
				return s.db.Delete(&models.Trade{}, trade.ID).Error
			},
		},
		{
			name: "upsert holding",
			apply: func() error {
				if hadHolding {
					newQty := existing.Quantity + quantity
					newAvg := (existing.AvgBuyPrice*float64(existing.Quantity) + totalCost) / float64(newQty)
					holding = existing
					holding.Quantity = newQty
					holding.AvgBuyPrice = newAvg
					return s.db.Model(&models.Holding{}).Where("id = ?", existing.ID).
						Updates(map[string]interface{}{"quantity": newQty, "avg_buy_price": newAvg}).Error
				}
				holding = models.Holding{
					PortfolioID: portfolio.ID,
					Symbol:      symbol,
					Quantity:    quantity,
					AvgBuyPrice: price,
				}
				return s.db.Create(&holding).Error
			},
			undo: func() error {
				if hadHolding {
					return s.db.Model(&models.Holding{}).Where("id = ?", existing.ID).
						Updates(map[string]interface{}{"quantity": existing.Quantity, "avg_buy_price": existing.AvgBuyPrice}).Error
				}
				return s.db.Where("portfolio_id = ? AND symbol = ?", portfolio.ID, symbol).
					Delete(&models.Holding{}).Error
			},
		},
		{
			name: "update portfolio",
			apply: func() error {
				portfolio.CurrentCash = priorCash - totalCost
				portfolio.TotalValue = s.revalue(portfolio, symbol, price)
				return s.db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
					Updates(map[string]interface{}{"current_cash": portfolio.CurrentCash, "total_value": portfolio.TotalValue}).Error
			},
			undo: func() error {
				portfolio.CurrentCash = priorCash
				portfolio.TotalValue = priorValue
				return s.db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
					Updates(map[string]interface{}{"current_cash": priorCash, "total_value": priorValue}).Error
			},
		},
	}

	if err := s.run(portfolio.ID, "buy", steps); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("portfolio_id", portfolio.ID).
		Str("symbol", symbol).
		Int("quantity", quantity).
		Float64("price", price).
		Msg("Buy executed")

	s.snapshotAsync(userID)

	return &TradeResult{
		Trade:       trade,
		Holding:     &holding,
		CurrentCash: portfolio.CurrentCash,
		TotalValue:  portfolio.TotalValue,
	}, nil
}

// Sell executes a market sell of quantity shares of symbol. The holding's
// average cost is never recalculated on disposal; a holding sold down to
// zero is deleted outright.
func (s *TradeService) Sell(userID uint, symbol string, quantity int) (*TradeResult, error) {
	if quantity <= 0 {
		return nil, ErrValidation("quantity must be positive")
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

	var existing models.Holding
	if err := s.db.Where("portfolio_id = ? AND symbol = ?", portfolio.ID, symbol).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInsufficientShares(symbol, 0, quantity)
		}
		return nil, ErrPersistence("load holding", err)
	}
	if existing.Quantity < quantity {
		return nil, ErrInsufficientShares(symbol, existing.Quantity, quantity)
	}

	price, err := s.executionPrice(symbol)
	if err != nil {
		return nil, err
	}

	totalRevenue := price * float64(quantity)
	costBasis := existing.AvgBuyPrice * float64(quantity)
	profitLoss := totalRevenue - costBasis

	priorCash := portfolio.CurrentCash
	priorValue := portfolio.TotalValue
	remaining := existing.Quantity - quantity

	trade := models.Trade{
		Reference:   uuid.NewString(),
		PortfolioID: portfolio.ID,
		Symbol:      symbol,
		Side:        "SELL",
		Quantity:    quantity,
		Price:       price,
		TotalAmount: totalRevenue,
	}

	var holding *models.Holding

	steps := []step{
		{
			name: "append trade",
			apply: func() error {
				return s.db.Create(&trade).Error
			},
			undo: func() error {
				return s.db.Delete(&models.Trade{}, trade.ID).Error
			},
		},
		{
			name: "reduce holding",
			apply: func() error {
				if remaining == 0 {
					return s.db.Delete(&models.Holding{}, existing.ID).Error
				}
				updated := existing
				updated.Quantity = remaining
				holding = &updated
				return s.db.Model(&models.Holding{}).Where("id = ?", existing.ID).
					Update("quantity", remaining).Error
			},
			undo: func() error {
				if remaining == 0 {
					// Recreate the deleted row with its prior state; the
					// fresh ID is acceptable, position state is what matters
					restored := models.Holding{
						PortfolioID: portfolio.ID,
						Symbol:      symbol,
						Quantity:    existing.Quantity,
						AvgBuyPrice: existing.AvgBuyPrice,
					}
					return s.db.Where("portfolio_id = ? AND symbol = ?", portfolio.ID, symbol).
						FirstOrCreate(&restored).Error
				}
				return s.db.Model(&models.Holding{}).Where("id = ?", existing.ID).
					Update("quantity", existing.Quantity).Error
			},
		},
		{
			name: "update portfolio",
			apply: func() error {
				portfolio.CurrentCash = priorCash + totalRevenue
				portfolio.TotalValue = s.revalue(portfolio, symbol, price)
				return s.db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
					Updates(map[string]interface{}{"current_cash": portfolio.CurrentCash, "total_value": portfolio.TotalValue}).Error
			},
			undo: func() error {
				portfolio.CurrentCash = priorCash
				portfolio.TotalValue = priorValue
				return s.db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).
					Updates(map[string]interface{}{"current_cash": priorCash, "total_value": priorValue}).Error
			},
		},
	}

	if err := s.run(portfolio.ID, "sell", steps); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("portfolio_id", portfolio.ID).
		Str("symbol", symbol).
		Int("quantity", quantity).
		Float64("price", price).
		Float64("profit_loss", profitLoss).
		Msg("Sell executed")

	s.snapshotAsync(userID)

	return &TradeResult{
		Trade:       trade,
		Holding:     holding,
		CurrentCash: portfolio.CurrentCash,
		TotalValue:  portfolio.TotalValue,
		CostBasis:   costBasis,
		ProfitLoss:  profitLoss,
	}, nil
}

// TradeHistory returns the portfolio's trades newest first with the total
// count for pagination
func (s *TradeService) TradeHistory(userID uint, limit, offset int) ([]models.Trade, int64, error) {
	portfolio, err := ActivePortfolio(s.db, userID)
	if err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.Model(&models.Trade{}).Where("portfolio_id = ?", portfolio.ID).Count(&total).Error; err != nil {
		return nil, 0, ErrPersistence("count trades", err)
	}

	var trades []models.Trade
	err = s.db.Where("portfolio_id = ?", portfolio.ID).
		Order("executed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&trades).Error
	if err != nil {
		return nil, 0, ErrPersistence("load trades", err)
	}

	return trades, total, nil
}

// executionPrice fetches the live price that settles a trade. Unlike the
// read path there is no fallback here: no live quote, no trade.
func (s *TradeService) executionPrice(symbol string) (float64, error) {
	quotes, err := s.quotes.GetQuotes([]string{symbol})
	if err != nil {
		return 0, ErrPriceUnavailable(symbol, err)
	}
	quote, ok := quotes[symbol]
	if !ok || quote.LastPrice <= 0 {
		return 0, ErrPriceUnavailable(symbol, nil)
	}
	return quote.LastPrice, nil
}

// revalue recomputes the portfolio's total value over all current
// holdings, using the already-fetched execution price for the traded
// symbol and best-effort quotes with cost fallback for the rest
func (s *TradeService) revalue(portfolio *models.Portfolio, tradedSymbol string, executionPrice float64) float64 {
	var holdings []models.Holding
	if err := s.db.Where("portfolio_id = ?", portfolio.ID).Find(&holdings).Error; err != nil {
		s.logger.Warn().Err(err).Uint("portfolio_id", portfolio.ID).Msg("Failed to load holdings for revaluation")
		return portfolio.CurrentCash
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if h.Symbol != tradedSymbol {
			symbols = append(symbols, h.Symbol)
		}
	}

	quotes := map[string]Quote{}
	if len(symbols) > 0 {
		fetched, err := s.quotes.GetQuotes(symbols)
		if err == nil {
			quotes = fetched
		} else {
			s.logger.Warn().Err(err).Msg("Quote feed unavailable during revaluation, using cost fallback")
		}
	}
	quotes[tradedSymbol] = Quote{LastPrice: executionPrice}

	return TotalValue(portfolio.CurrentCash, holdings, quotes)
}

// run executes a compensated step sequence. A failed undo is a critical
// inconsistency: it is logged, a reconciliation alert is raised, and the
// original error still surfaces to the caller.
func (s *TradeService) run(portfolioID uint, operation string, steps []step) error {
	applyErr, compErr := runSteps(s.logger, steps)
	if applyErr == nil {
		return nil
	}

	if compErr != nil {
		s.logger.Error().
			Err(compErr).
			Uint("portfolio_id", portfolioID).
			Str("operation", operation).
			Msg("CRITICAL: compensation failed, manual reconciliation required")
		if alertErr := s.alerts.SendReconciliationAlert(portfolioID, operation, compErr.Error()); alertErr != nil {
			s.logger.Error().Err(alertErr).Msg("Failed to send reconciliation alert")
		}
	}

	if _, ok := AsAppError(applyErr); ok {
		return applyErr
	}
	return ErrPersistence(operation, applyErr)
}

// snapshotAsync records a post-trade snapshot without blocking or failing
// the trade response
func (s *TradeService) snapshotAsync(userID uint) {
	go func() {
		if err := s.snapshots.Take(userID); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Msg("Post-trade snapshot failed")
		}
	}()
}
