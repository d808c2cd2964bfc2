package scheduler

import (
	"time"

	"github.com/artpro/papertrade/pkg/config"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// InitScheduler starts the daily snapshot job. The batch runs once per day
// after market close; each user's snapshot is independent, so one failure
// never aborts the run.
func InitScheduler(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)

	marketData := services.NewMarketDataService(cfg, db, logger)
	snapshotService := services.NewSnapshotService(db, marketData, logger)

	s.Every(1).Day().At(cfg.SnapshotTime).Do(func() {
		logger.Info().Msg("Running daily portfolio snapshot batch")
		result := snapshotService.TakeAll()
		logger.Info().
			Int("succeeded", result.Succeeded).
			Int("failed", result.Failed).
			Msg("Daily snapshot batch finished")
	})

	s.StartAsync()
	logger.Info().Str("at", cfg.SnapshotTime).Msg("Scheduler initialized and started")
	return s
}
