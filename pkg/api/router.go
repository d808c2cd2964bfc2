package api

import (
	"github.com/artpro/papertrade/pkg/api/handlers"
	"github.com/artpro/papertrade/pkg/config"
	"github.com/artpro/papertrade/pkg/middleware"
	"github.com/artpro/papertrade/pkg/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SetupRouter sets up the Gin router with all routes and middleware
func SetupRouter(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS configuration
	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// Allow localhost for development
			if origin == "http://localhost:3000" || origin == "http://localhost:3001" {
				return true
			}
			// Allow configured frontend URL
			if origin == cfg.FrontendURL {
				return true
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	router.Use(cors.New(corsConfig))

	// Shared services
	locks := services.NewPortfolioLocks()
	marketData := services.NewMarketDataService(cfg, db, logger)
	alertService := services.NewAlertService(cfg, logger)
	snapshotService := services.NewSnapshotService(db, marketData, logger)
	tradeService := services.NewTradeService(db, marketData, snapshotService, alertService, locks, logger)
	budgetService := services.NewBudgetService(db, marketData, locks, logger)
	cohortService := services.NewCohortService(db, alertService, locks, logger)
	portfolioService := services.NewPortfolioService(db, marketData, logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg, logger)
	stockHandler := handlers.NewStockHandler(db, marketData, logger)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, logger)
	tradeHandler := handlers.NewTradeHandler(tradeService, logger)
	budgetHandler := handlers.NewBudgetHandler(budgetService, logger)
	cohortHandler := handlers.NewCohortHandler(db, cohortService, logger)
	snapshotHandler := handlers.NewSnapshotHandler(db, snapshotService, logger)

	// Public routes
	public := router.Group("/api")
	{
		public.POST("/login", authHandler.Login)
		public.POST("/register", authHandler.Register)
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
	}

	// Protected routes
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		// Auth routes
		protected.POST("/logout", authHandler.Logout)
		protected.POST("/change-password", authHandler.ChangePassword)
		protected.GET("/me", authHandler.GetCurrentUser)

		// Stock reference data
		protected.GET("/stocks", stockHandler.GetAllStocks)
		protected.GET("/stocks/:symbol", stockHandler.GetStock)

		// Portfolio read model
		protected.GET("/portfolio", portfolioHandler.GetPortfolio)

		// Trading
		protected.POST("/trades/buy", tradeHandler.Buy)
		protected.POST("/trades/sell", tradeHandler.Sell)
		protected.GET("/trades", tradeHandler.History)

		// Budget
		protected.GET("/budget", budgetHandler.GetBudget)
		protected.PUT("/budget", budgetHandler.UpdateBudget)

		// Cohorts
		protected.POST("/cohorts", cohortHandler.Create)
		protected.POST("/cohorts/join", cohortHandler.Join)
		protected.POST("/cohorts/:id/leave", cohortHandler.Leave)
		protected.GET("/cohorts/orphaned-backups", cohortHandler.OrphanedBackups)

		// Valuation history
		protected.GET("/snapshots", snapshotHandler.History)
		protected.POST("/snapshots/run", snapshotHandler.Run)
	}

	return router
}
