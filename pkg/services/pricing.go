package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/artpro/papertrade/pkg/config"
	"github.com/artpro/papertrade/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Quote is one symbol's current market data
type Quote struct {
	LastPrice     float64 `json:"last_price"`
	PreviousClose float64 `json:"previous_close"`
	Volume        int64   `json:"volume"`
}

// QuoteProvider fetches current quotes for a set of symbols. Symbols with
// no available quote are omitted from the result, never zero-valued.
type QuoteProvider interface {
	GetQuotes(symbols []string) (map[string]Quote, error)
}

// AlphaVantageQuote represents Alpha Vantage real-time quote data
type AlphaVantageQuote struct {
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// MarketDataService fetches quotes from Alpha Vantage and caches the last
// seen price on the Stock reference row so the read path has a fallback
// when the feed is down
type MarketDataService struct {
	cfg    *config.Config
	db     *gorm.DB
	client *http.Client
	logger zerolog.Logger
}

// NewMarketDataService creates a new market data service. The client
// timeout bounds every price fetch so a hung feed fails closed instead of
// hanging a trade.
func NewMarketDataService(cfg *config.Config, db *gorm.DB, logger zerolog.Logger) *MarketDataService {
	return &MarketDataService{
		cfg: cfg,
		db:  db,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// GetQuotes fetches quotes for the given symbols. Partial failure is
// expected: symbols that error or come back empty are simply absent from
// the result map.
func (s *MarketDataService) GetQuotes(symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))

	for _, symbol := range symbols {
		quote, err := s.fetchQuote(symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch quote")
			continue
		}
		quotes[symbol] = *quote
		s.cacheQuote(symbol, *quote)
	}

	return quotes, nil
}

// fetchQuote fetches a single symbol's quote from Alpha Vantage
func (s *MarketDataService) fetchQuote(symbol string) (*Quote, error) {
	if s.cfg.AlphaVantageAPIKey == "" {
		return nil, fmt.Errorf("Alpha Vantage API key not configured")
	}

	url := fmt.Sprintf("https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		symbol, s.cfg.AlphaVantageAPIKey)

	resp, err := s.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	var raw AlphaVantageQuote
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}

	// Empty symbol means no data (unknown ticker or rate limit)
	if raw.GlobalQuote.Symbol == "" {
		return nil, fmt.Errorf("no data returned for symbol %s", symbol)
	}

	price := parseFloat(raw.GlobalQuote.Price)
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %q for symbol %s", raw.GlobalQuote.Price, symbol)
	}

	return &Quote{
		LastPrice:     price,
		PreviousClose: parseFloat(raw.GlobalQuote.PreviousClose),
		Volume:        int64(parseFloat(raw.GlobalQuote.Volume)),
	}, nil
}

// cacheQuote writes the last seen quote onto the Stock reference row
func (s *MarketDataService) cacheQuote(symbol string, quote Quote) {
	err := s.db.Model(&models.Stock{}).
		Where("symbol = ?", symbol).
		Updates(map[string]interface{}{
			"last_price":     quote.LastPrice,
			"previous_close": quote.PreviousClose,
			"volume":         quote.Volume,
			"last_updated":   time.Now(),
		}).Error
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
	}
}

// parseFloat safely parses a string to float64, returning 0 on error
func parseFloat(s string) float64 {
	if s == "" || s == "None" || s == "-" {
		return 0
	}
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}
