package services

import (
	"sync"
	"testing"

	"github.com/artpro/papertrade/pkg/config"
	"github.com/artpro/papertrade/pkg/database"
	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeQuotes is a QuoteProvider backed by a fixed price map. Symbols not
// in the map are omitted from results; err makes every call fail. The
// mutex keeps it safe against the async post-trade snapshot.
type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (f *fakeQuotes) GetQuotes(symbols []string) (map[string]Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	quotes := make(map[string]Quote)
	for _, symbol := range symbols {
		if price, ok := f.prices[symbol]; ok {
			quotes[symbol] = Quote{LastPrice: price}
		}
	}
	return quotes, nil
}

func (f *fakeQuotes) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every session on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestTradeService(t *testing.T, db *gorm.DB, quotes QuoteProvider) *TradeService {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{}
	alerts := NewAlertService(cfg, log)
	snapshots := NewSnapshotService(db, quotes, log)
	return NewTradeService(db, quotes, snapshots, alerts, NewPortfolioLocks(), log)
}

// seedUser creates a user with a funded personal portfolio
func seedUser(t *testing.T, db *gorm.DB, username string, budget float64) (models.User, models.Portfolio) {
	t.Helper()
	user := models.User{Username: username, Password: "x", UserType: "student"}
	require.NoError(t, db.Create(&user).Error)

	portfolio := models.Portfolio{
		OwnerID:             user.ID,
		BudgetAmount:        budget,
		CurrentCash:         budget,
		TotalValue:          budget,
		CustomBudgetEnabled: true,
	}
	require.NoError(t, db.Create(&portfolio).Error)
	return user, portfolio
}

func seedStock(t *testing.T, db *gorm.DB, symbol, name string) models.Stock {
	t.Helper()
	stock := models.Stock{Symbol: symbol, CompanyName: name, Sector: "Test"}
	require.NoError(t, db.Create(&stock).Error)
	return stock
}

func loadPortfolio(t *testing.T, db *gorm.DB, id uint) models.Portfolio {
	t.Helper()
	var portfolio models.Portfolio
	require.NoError(t, db.First(&portfolio, id).Error)
	return portfolio
}

func loadHoldings(t *testing.T, db *gorm.DB, portfolioID uint) []models.Holding {
	t.Helper()
	var holdings []models.Holding
	require.NoError(t, db.Where("portfolio_id = ?", portfolioID).Order("symbol ASC").Find(&holdings).Error)
	return holdings
}

func countTrades(t *testing.T, db *gorm.DB, portfolioID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Trade{}).Where("portfolio_id = ?", portfolioID).Count(&count).Error)
	return count
}
