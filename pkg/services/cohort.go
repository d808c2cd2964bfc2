package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// backupTradeLimit caps how many recent trades a backup carries
const backupTradeLimit = 100

// CohortService moves a user between their personal portfolio and a
// cohort-scoped one. Joining backs up the personal position set and issues
// a fresh portfolio on the cohort's budget; leaving disposes of the cohort
// portfolio and restores the backup as a pure undo.
type CohortService struct {
	db     *gorm.DB
	alerts *AlertService
	locks  *PortfolioLocks
	logger zerolog.Logger
}

// NewCohortService creates a new cohort service
func NewCohortService(db *gorm.DB, alerts *AlertService, locks *PortfolioLocks, logger zerolog.Logger) *CohortService {
	return &CohortService{
		db:     db,
		alerts: alerts,
		locks:  locks,
		logger: logger,
	}
}

// Join enrolls the user in the cohort identified by entryCode and returns
// the fresh cohort portfolio
func (s *CohortService) Join(userID uint, entryCode string) (*models.Portfolio, error) {
	var cohort models.Cohort
	if err := s.db.Where("entry_code = ?", entryCode).First(&cohort).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("no cohort with that entry code")
		}
		return nil, ErrPersistence("load cohort", err)
	}

	var member models.CohortMember
	memberErr := s.db.Where("cohort_id = ? AND user_id = ?", cohort.ID, userID).First(&member).Error
	if memberErr == nil && member.Status == "active" {
		return nil, ErrValidation("already an active member of this cohort")
	}
	rejoin := memberErr == nil

	personal, err := PersonalPortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(personal.ID)
	defer unlock()

	// Reload under the lock so the backup captures settled state
	if err := s.db.First(personal, personal.ID).Error; err != nil {
		return nil, ErrPersistence("reload portfolio", err)
	}

	// One active backup per (user, cohort): a rejoin after a completed
	// leave takes a fresh backup, but a duplicate active backup is never
	// created
	var backup *models.PortfolioBackup
	var activeBackup models.PortfolioBackup
	hasActiveBackup := s.db.Where("user_id = ? AND cohort_id = ? AND is_active = ?", userID, cohort.ID, true).
		First(&activeBackup).Error == nil

	if !hasActiveBackup {
		payload, err := s.buildBackupPayload(personal)
		if err != nil {
			return nil, err
		}
		backup = &models.PortfolioBackup{
			UserID:     userID,
			CohortID:   cohort.ID,
			BackupData: payload,
			IsActive:   true,
		}
	}

	cohortPortfolio := models.Portfolio{
		OwnerID:             userID,
		BudgetAmount:        cohort.DefaultBudget,
		CurrentCash:         cohort.DefaultBudget,
		TotalValue:          cohort.DefaultBudget,
		CohortID:            &cohort.ID,
		IsCohortPortfolio:   true,
		CustomBudgetEnabled: cohort.AllowCustomBudget,
	}

	priorMember := member

	steps := []step{
		{
			name: "capture backup",
			apply: func() error {
				if backup == nil {
					return nil
				}
				return s.db.Create(backup).Error
			},
			undo: func() error {
				if backup == nil || backup.ID == 0 {
					return nil
				}
				return s.db.Delete(&models.PortfolioBackup{}, backup.ID).Error
			},
		},
		{
			name: "create cohort portfolio",
			apply: func() error {
				return s.db.Create(&cohortPortfolio).Error
			},
			undo: func() error {
				if cohortPortfolio.ID == 0 {
					return nil
				}
				return s.db.Delete(&models.Portfolio{}, cohortPortfolio.ID).Error
			},
		},
		{
			name: "record membership",
			apply: func() error {
				if rejoin {
					return s.db.Model(&models.CohortMember{}).Where("id = ?", member.ID).
						Updates(map[string]interface{}{"status": "active", "joined_at": time.Now(), "removed_at": nil}).Error
				}
				member = models.CohortMember{
					CohortID: cohort.ID,
					UserID:   userID,
					Status:   "active",
					JoinedAt: time.Now(),
				}
				return s.db.Create(&member).Error
			},
			undo: func() error {
				if rejoin {
					return s.db.Model(&models.CohortMember{}).Where("id = ?", member.ID).
						Updates(map[string]interface{}{"status": priorMember.Status, "removed_at": priorMember.RemovedAt}).Error
				}
				if member.ID == 0 {
					return nil
				}
				return s.db.Delete(&models.CohortMember{}, member.ID).Error
			},
		},
	}

	applyErr, compErr := runSteps(s.logger, steps)
	if applyErr != nil {
		if compErr != nil {
			s.logger.Error().
				Err(compErr).
				Uint("user_id", userID).
				Uint("cohort_id", cohort.ID).
				Msg("CRITICAL: cohort join compensation failed, manual reconciliation required")
			if alertErr := s.alerts.SendReconciliationAlert(personal.ID, "cohort join", compErr.Error()); alertErr != nil {
				s.logger.Error().Err(alertErr).Msg("Failed to send reconciliation alert")
			}
		}
		if _, ok := AsAppError(applyErr); ok {
			return nil, applyErr
		}
		return nil, ErrPersistence("cohort join", applyErr)
	}

	s.logger.Info().
		Uint("user_id", userID).
		Uint("cohort_id", cohort.ID).
		Bool("rejoin", rejoin).
		Msg("User joined cohort")

	return &cohortPortfolio, nil
}

// Leave removes the user from the cohort, disposes of the cohort
// portfolio and restores the personal portfolio from its backup. Restore
// is a pure undo of the join: cash, total value and every holding's
// quantity and average cost come back exactly as backed up.
func (s *CohortService) Leave(userID, cohortID uint) error {
	var member models.CohortMember
	if err := s.db.Where("cohort_id = ? AND user_id = ? AND status = ?", cohortID, userID, "active").First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound("not an active member of this cohort")
		}
		return ErrPersistence("load membership", err)
	}

	personal, err := PersonalPortfolio(s.db, userID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(personal.ID)
	defer unlock()

	// Cohort portfolios are disposable, never archived. The cohort lock is
	// taken second (personal first, always the same order) so an in-flight
	// trade settles before the portfolio is deleted out from under it.
	var cohortPortfolio models.Portfolio
	if err := s.db.Where("owner_id = ? AND cohort_id = ?", userID, cohortID).First(&cohortPortfolio).Error; err == nil {
		unlockCohort := s.locks.Lock(cohortPortfolio.ID)
		defer unlockCohort()
		if err := s.db.Where("portfolio_id = ?", cohortPortfolio.ID).Delete(&models.Holding{}).Error; err != nil {
			return ErrPersistence("delete cohort holdings", err)
		}
		if err := s.db.Delete(&models.Portfolio{}, cohortPortfolio.ID).Error; err != nil {
			return ErrPersistence("delete cohort portfolio", err)
		}
	}

	var backup models.PortfolioBackup
	backupErr := s.db.Where("user_id = ? AND cohort_id = ? AND is_active = ?", userID, cohortID, true).
		First(&backup).Error
	if backupErr == nil {
		if err := s.restoreFromBackup(personal, &backup); err != nil {
			return err
		}
	} else if !errors.Is(backupErr, gorm.ErrRecordNotFound) {
		return ErrPersistence("load backup", backupErr)
	}

	now := time.Now()
	err = s.db.Model(&models.CohortMember{}).Where("id = ?", member.ID).
		Updates(map[string]interface{}{"status": "removed", "removed_at": now}).Error
	if err != nil {
		return ErrPersistence("update membership", err)
	}

	s.logger.Info().
		Uint("user_id", userID).
		Uint("cohort_id", cohortID).
		Msg("User left cohort")

	return nil
}

// FindOrphanedBackups lists active backups whose cohort portfolio was
// never created (a join that failed between backup and portfolio
// creation). They are surfaced for administrative reconciliation, never
// deleted automatically.
func (s *CohortService) FindOrphanedBackups() ([]models.PortfolioBackup, error) {
	var backups []models.PortfolioBackup
	err := s.db.Where("is_active = ?", true).Find(&backups).Error
	if err != nil {
		return nil, ErrPersistence("load backups", err)
	}

	var orphaned []models.PortfolioBackup
	for _, backup := range backups {
		var count int64
		s.db.Model(&models.Portfolio{}).
			Where("owner_id = ? AND cohort_id = ?", backup.UserID, backup.CohortID).
			Count(&count)
		if count == 0 {
			orphaned = append(orphaned, backup)
		}
	}
	return orphaned, nil
}

// buildBackupPayload serializes the personal portfolio's full state:
// cash, total value, every holding, and the last trades. The holdings
// list must be complete; it is the only path back.
func (s *CohortService) buildBackupPayload(personal *models.Portfolio) (string, error) {
	var holdings []models.Holding
	if err := s.db.Where("portfolio_id = ?", personal.ID).Find(&holdings).Error; err != nil {
		return "", ErrPersistence("load holdings for backup", err)
	}

	var trades []models.Trade
	if err := s.db.Where("portfolio_id = ?", personal.ID).
		Order("executed_at DESC").
		Limit(backupTradeLimit).
		Find(&trades).Error; err != nil {
		return "", ErrPersistence("load trades for backup", err)
	}

	payload := models.BackupPayload{
		PortfolioID:  personal.ID,
		BudgetAmount: personal.BudgetAmount,
		CurrentCash:  personal.CurrentCash,
		TotalValue:   personal.TotalValue,
		Trades:       trades,
	}
	for _, h := range holdings {
		payload.Holdings = append(payload.Holdings, models.BackupHolding{
			Symbol:      h.Symbol,
			Quantity:    h.Quantity,
			AvgBuyPrice: h.AvgBuyPrice,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", ErrPersistence("serialize backup", err)
	}
	return string(data), nil
}

// restoreFromBackup applies the backup payload to the personal portfolio
// and consumes the backup
func (s *CohortService) restoreFromBackup(personal *models.Portfolio, backup *models.PortfolioBackup) error {
	var payload models.BackupPayload
	if err := json.Unmarshal([]byte(backup.BackupData), &payload); err != nil {
		return ErrPersistence("decode backup", fmt.Errorf("backup %d: %w", backup.ID, err))
	}

	err := s.db.Model(&models.Portfolio{}).Where("id = ?", personal.ID).
		Updates(map[string]interface{}{
			"current_cash": payload.CurrentCash,
			"total_value":  payload.TotalValue,
		}).Error
	if err != nil {
		return ErrPersistence("restore portfolio", err)
	}

	if err := s.db.Where("portfolio_id = ?", personal.ID).Delete(&models.Holding{}).Error; err != nil {
		return ErrPersistence("clear holdings", err)
	}

	if len(payload.Holdings) > 0 {
		restored := make([]models.Holding, 0, len(payload.Holdings))
		for _, h := range payload.Holdings {
			restored = append(restored, models.Holding{
				PortfolioID: personal.ID,
				Symbol:      h.Symbol,
				Quantity:    h.Quantity,
				AvgBuyPrice: h.AvgBuyPrice,
			})
		}
		if err := s.db.Create(&restored).Error; err != nil {
			return ErrPersistence("restore holdings", err)
		}
	}

	now := time.Now()
	err = s.db.Model(&models.PortfolioBackup{}).Where("id = ?", backup.ID).
		Updates(map[string]interface{}{"is_active": false, "restored_at": now}).Error
	if err != nil {
		return ErrPersistence("consume backup", err)
	}

	return nil
}
