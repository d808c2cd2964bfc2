package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	AppEnv             string
	Port               string
	FrontendURL        string
	AdminUsername      string
	AdminPassword      string
	JWTSecret          string
	TokenTTL           time.Duration
	DatabasePath       string
	AlphaVantageAPIKey string
	SendGridAPIKey     string
	AlertEmailFrom     string
	AlertEmailTo       string
	EnableScheduler    bool
	SnapshotTime       string
	DefaultBudget      float64
}

// Load reads configuration from environment variables
func Load() *Config {
	enableScheduler := os.Getenv("ENABLE_SCHEDULER") == "true"

	tokenTTLHours, err := strconv.Atoi(getEnv("TOKEN_TTL_HOURS", "24"))
	if err != nil || tokenTTLHours <= 0 {
		tokenTTLHours = 24
	}

	return &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "artpro"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "defaultPasswordLaterProvided"),
		JWTSecret:          getEnv("JWT_SECRET", "change-this-secret-in-production"),
		TokenTTL:           time.Duration(tokenTTLHours) * time.Hour,
		DatabasePath:       getEnv("DATABASE_PATH", "./data/papertrade.db"),
		AlphaVantageAPIKey: os.Getenv("ALPHA_VANTAGE_API_KEY"),
		SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
		AlertEmailFrom:     os.Getenv("ALERT_EMAIL_FROM"),
		AlertEmailTo:       os.Getenv("ALERT_EMAIL_TO"),
		EnableScheduler:    enableScheduler,
		SnapshotTime:       getEnv("SNAPSHOT_TIME", "22:30"),
		DefaultBudget:      10000,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
