package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpro/papertrade/pkg/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection and runs migrations
// Supports both PostgreSQL (via DATABASE_URL) and SQLite (via dbPath for local dev)
func InitDB(dbPath string) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	// Check if DATABASE_URL is set (PostgreSQL for production)
	databaseURL := os.Getenv("DATABASE_URL")

	if databaseURL != "" {
		// Handle hosted Postgres format: postgres:// -> postgresql://
		if strings.HasPrefix(databaseURL, "postgres://") {
			databaseURL = strings.Replace(databaseURL, "postgres://", "postgresql://", 1)
		}

		db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
	} else {
		// Use SQLite for local development
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs auto migrations for all ledger models
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Stock{},
		&models.Portfolio{},
		&models.Holding{},
		&models.Trade{},
		&models.BudgetChange{},
		&models.Cohort{},
		&models.CohortMember{},
		&models.PortfolioBackup{},
		&models.PortfolioSnapshot{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InitializeAdminUser creates the admin user if it doesn't exist
func InitializeAdminUser(db *gorm.DB, username, password string) error {
	var user models.User
	result := db.Where("username = ?", username).First(&user)

	if result.Error == gorm.ErrRecordNotFound {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		user = models.User{
			Username: username,
			Password: string(hashedPassword),
			UserType: "admin",
		}

		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	}

	return nil
}

// SeedStocks inserts reference data for tradable symbols if none exist.
// Prices are filled in by the market data service on first quote.
func SeedStocks(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Stock{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count stocks: %w", err)
	}
	if count > 0 {
		return nil
	}

	stocks := []models.Stock{
		{Symbol: "AAPL", CompanyName: "Apple Inc.", Sector: "Technology"},
		{Symbol: "MSFT", CompanyName: "Microsoft Corporation", Sector: "Technology"},
		{Symbol: "GOOGL", CompanyName: "Alphabet Inc.", Sector: "Communication Services"},
		{Symbol: "AMZN", CompanyName: "Amazon.com Inc.", Sector: "Consumer Discretionary"},
		{Symbol: "TSLA", CompanyName: "Tesla Inc.", Sector: "Consumer Discretionary"},
		{Symbol: "JPM", CompanyName: "JPMorgan Chase & Co.", Sector: "Financials"},
		{Symbol: "JNJ", CompanyName: "Johnson & Johnson", Sector: "Health Care"},
		{Symbol: "V", CompanyName: "Visa Inc.", Sector: "Financials"},
		{Symbol: "PG", CompanyName: "Procter & Gamble Co.", Sector: "Consumer Staples"},
		{Symbol: "XOM", CompanyName: "Exxon Mobil Corporation", Sector: "Energy"},
	}

	if err := db.Create(&stocks).Error; err != nil {
		return fmt.Errorf("failed to seed stocks: %w", err)
	}
	return nil
}
