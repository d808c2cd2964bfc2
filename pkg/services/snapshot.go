package services

import (
	"errors"
	"time"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SnapshotService persists point-in-time valuation records for historical
// charting. One row per user per trading day; re-running on the same day
// updates the existing row.
type SnapshotService struct {
	db     *gorm.DB
	quotes QuoteProvider
	logger zerolog.Logger
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(db *gorm.DB, quotes QuoteProvider, logger zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		db:     db,
		quotes: quotes,
		logger: logger,
	}
}

// BatchResult reports a TakeAll run
type BatchResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Take computes the current valuation of the user's active portfolio and
// persists today's snapshot row
func (s *SnapshotService) Take(userID uint) error {
	portfolio, err := ActivePortfolio(s.db, userID)
	if err != nil {
		return err
	}

	var holdings []models.Holding
	if err := s.db.Where("portfolio_id = ?", portfolio.ID).Find(&holdings).Error; err != nil {
		return ErrPersistence("load holdings", err)
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}

	quotes, err := s.quotes.GetQuotes(symbols)
	if err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("Quote feed unavailable for snapshot, using cost fallback")
		quotes = map[string]Quote{}
	}

	holdingsValue := HoldingsValue(holdings, quotes)
	totalValue := portfolio.CurrentCash + holdingsValue
	today := time.Now().Format("2006-01-02")

	snapshot := models.PortfolioSnapshot{
		UserID:          userID,
		PortfolioID:     portfolio.ID,
		Date:            today,
		TotalValue:      totalValue,
		HoldingsValue:   holdingsValue,
		Cash:            portfolio.CurrentCash,
		GainLoss:        GainLoss(totalValue, portfolio.BudgetAmount),
		GainLossPercent: GainLossPercent(totalValue, portfolio.BudgetAmount),
	}

	var existing models.PortfolioSnapshot
	err = s.db.Where("user_id = ? AND date = ?", userID, today).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(&snapshot).Error; err != nil {
			return ErrPersistence("create snapshot", err)
		}
		return nil
	}
	if err != nil {
		return ErrPersistence("load snapshot", err)
	}

	snapshot.ID = existing.ID
	snapshot.CreatedAt = existing.CreatedAt
	if err := s.db.Save(&snapshot).Error; err != nil {
		return ErrPersistence("update snapshot", err)
	}
	return nil
}

// TakeAll snapshots every funded portfolio owner independently; one user's
// failure never aborts the batch
func (s *SnapshotService) TakeAll() BatchResult {
	var ownerIDs []uint
	err := s.db.Model(&models.Portfolio{}).
		Where("total_value > 0").
		Distinct("owner_id").
		Pluck("owner_id", &ownerIDs).Error
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list portfolios for snapshot batch")
		return BatchResult{}
	}

	var result BatchResult
	for _, ownerID := range ownerIDs {
		if err := s.Take(ownerID); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", ownerID).Msg("Snapshot failed")
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	s.logger.Info().Int("succeeded", result.Succeeded).Int("failed", result.Failed).Msg("Snapshot batch complete")
	return result
}

// snapshotPeriods maps the API period filters to a lookback window
var snapshotPeriods = map[string]time.Duration{
	"1D": 24 * time.Hour,
	"1W": 7 * 24 * time.Hour,
	"1M": 30 * 24 * time.Hour,
	"3M": 90 * 24 * time.Hour,
	"1Y": 365 * 24 * time.Hour,
}

// History returns the user's snapshot time series for a period
// (1D, 1W, 1M, 3M, 1Y or ALL), oldest first
func (s *SnapshotService) History(userID uint, period string) ([]models.PortfolioSnapshot, error) {
	query := s.db.Where("user_id = ?", userID)

	if period != "" && period != "ALL" {
		window, ok := snapshotPeriods[period]
		if !ok {
			return nil, ErrValidation("invalid period, expected one of 1D, 1W, 1M, 3M, 1Y, ALL")
		}
		since := time.Now().Add(-window).Format("2006-01-02")
		query = query.Where("date >= ?", since)
	}

	var snapshots []models.PortfolioSnapshot
	if err := query.Order("date ASC").Find(&snapshots).Error; err != nil {
		return nil, ErrPersistence("load snapshots", err)
	}
	return snapshots, nil
}
