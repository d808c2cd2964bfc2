package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a platform user who owns portfolios
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Username  string    `gorm:"unique;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"` // Password hash, never expose in JSON
	UserType  string    `json:"user_type"`         // student/teacher/admin
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stock represents reference data for a tradable symbol, plus the last
// quote seen from the market data feed (used as a pricing fallback tier)
type Stock struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	Symbol        string    `gorm:"unique;not null;index" json:"symbol"`
	CompanyName   string    `gorm:"not null" json:"company_name"`
	Sector        string    `json:"sector"`
	LastPrice     float64   `json:"last_price"`
	PreviousClose float64   `json:"previous_close"`
	Volume        int64     `json:"volume"`
	LastUpdated   time.Time `json:"last_updated"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Portfolio holds a user's simulated cash and derived total value.
// A user has one personal portfolio (CohortID null) and at most one
// portfolio per cohort they are an active member of.
type Portfolio struct {
	ID                  uint      `gorm:"primarykey" json:"id"`
	OwnerID             uint      `gorm:"not null;index" json:"owner_id"`
	BudgetAmount        float64   `json:"budget_amount"` // Nominal starting capital
	CurrentCash         float64   `json:"current_cash"`
	TotalValue          float64   `json:"total_value"` // Cash + mark-to-market holdings, recomputed on every write
	CohortID            *uint     `gorm:"index" json:"cohort_id,omitempty"`
	IsCohortPortfolio   bool      `json:"is_cohort_portfolio"`
	CustomBudgetEnabled bool      `json:"custom_budget_enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Holding is one position: (portfolio, symbol) with quantity > 0.
// A holding that reaches zero quantity is deleted, never kept at zero.
type Holding struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	PortfolioID uint      `gorm:"not null;index" json:"portfolio_id"`
	Symbol      string    `gorm:"not null;index" json:"symbol"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	AvgBuyPrice float64   `gorm:"not null" json:"avg_buy_price"` // Weighted average cost, re-weighted on buys only
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Trade is an immutable, append-only record of one executed order
type Trade struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Reference   string    `gorm:"uniqueIndex" json:"reference"`
	PortfolioID uint      `gorm:"not null;index" json:"portfolio_id"`
	Symbol      string    `gorm:"not null;index" json:"symbol"`
	Side        string    `gorm:"not null" json:"side"` // BUY or SELL
	Quantity    int       `gorm:"not null" json:"quantity"`
	Price       float64   `gorm:"not null" json:"price"` // Execution price from the quote feed
	TotalAmount float64   `gorm:"not null" json:"total_amount"`
	ExecutedAt  time.Time `gorm:"index" json:"executed_at"`
}

// BudgetChange is an immutable audit record of one budget revision
type BudgetChange struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	PortfolioID uint      `gorm:"not null;index" json:"portfolio_id"`
	OldBudget   float64   `json:"old_budget"`
	NewBudget   float64   `json:"new_budget"`
	ChangedBy   string    `json:"changed_by"`
	Reason      string    `json:"reason"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Cohort is a group context (e.g. a classroom) with its own budget policy
type Cohort struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	Name              string    `gorm:"not null" json:"name"`
	EntryCode         string    `gorm:"unique;not null" json:"entry_code"`
	DefaultBudget     float64   `json:"default_budget"`
	AllowCustomBudget bool      `json:"allow_custom_budget"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CohortMember tracks membership; removed members keep their row so a
// rejoin can reactivate it without taking a second backup
type CohortMember struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	CohortID  uint       `gorm:"not null;index" json:"cohort_id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	Status    string     `gorm:"not null" json:"status"` // active or removed
	JoinedAt  time.Time  `json:"joined_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// PortfolioBackup captures a personal portfolio at cohort-join time.
// BackupData is a JSON serialized BackupPayload; it is the sole recovery
// path when the user leaves the cohort.
type PortfolioBackup struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	CohortID   uint       `gorm:"not null;index" json:"cohort_id"`
	BackupData string     `gorm:"type:text" json:"backup_data"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`
}

// BackupPayload is the serialized form stored in PortfolioBackup.BackupData
type BackupPayload struct {
	PortfolioID  uint            `json:"portfolio_id"`
	BudgetAmount float64         `json:"budget_amount"`
	CurrentCash  float64         `json:"current_cash"`
	TotalValue   float64         `json:"total_value"`
	Holdings     []BackupHolding `json:"holdings"`
	Trades       []Trade         `json:"trades"` // Last 100, newest first
}

// BackupHolding is one holding inside a backup payload
type BackupHolding struct {
	Symbol      string  `json:"symbol"`
	Quantity    int     `json:"quantity"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
}

// PortfolioSnapshot is a point-in-time valuation record, one per user per
// trading day; a same-day re-run updates the existing row
type PortfolioSnapshot struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	UserID          uint      `gorm:"not null;index:idx_snapshot_user_date,unique" json:"user_id"`
	PortfolioID     uint      `gorm:"not null;index" json:"portfolio_id"`
	Date            string    `gorm:"not null;index:idx_snapshot_user_date,unique" json:"date"` // YYYY-MM-DD
	TotalValue      float64   `json:"total_value"`
	HoldingsValue   float64   `json:"holdings_value"`
	Cash            float64   `json:"cash"`
	GainLoss        float64   `json:"gain_loss"`
	GainLossPercent float64   `json:"gain_loss_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

// BeforeCreate hook for Trade to stamp the execution time
func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = time.Now()
	}
	return nil
}
