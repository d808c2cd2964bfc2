package services

import (
	"fmt"
	"time"

	"github.com/artpro/papertrade/pkg/config"
	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// AlertService emails operations when the ledger needs manual attention,
// e.g. a compensation sequence that itself failed mid-trade
type AlertService struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(cfg *config.Config, logger zerolog.Logger) *AlertService {
	return &AlertService{
		cfg:    cfg,
		logger: logger,
	}
}

// SendReconciliationAlert notifies operations that a portfolio may be in
// an inconsistent state requiring manual reconciliation. The caller has
// already logged the condition; email delivery is best effort.
func (s *AlertService) SendReconciliationAlert(portfolioID uint, operation, detail string) error {
	if s.cfg.SendGridAPIKey == "" {
		s.logger.Warn().Msg("SendGrid API key not configured, skipping reconciliation email")
		return nil
	}

	from := mail.NewEmail("PaperTrade Ledger Alerts", s.cfg.AlertEmailFrom)
	to := mail.NewEmail("Operations", s.cfg.AlertEmailTo)

	subject := fmt.Sprintf("Reconciliation required: portfolio %d (%s)", portfolioID, operation)

	now := time.Now().Format("2006-01-02 15:04:05")
	plainTextContent := fmt.Sprintf(
		"Manual reconciliation required.\n\nPortfolio: %d\nOperation: %s\nDetail: %s\n\nGenerated at: %s",
		portfolioID, operation, detail, now,
	)

	htmlContent := fmt.Sprintf(`
		<html>
		<body>
			<h2>Manual reconciliation required</h2>
			<p><strong>Portfolio:</strong> %d</p>
			<p><strong>Operation:</strong> %s</p>
			<p><strong>Detail:</strong> %s</p>
			<p><strong>Time:</strong> %s</p>
		</body>
		</html>
	`, portfolioID, operation, detail, now)

	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	client := sendgrid.NewSendClient(s.cfg.SendGridAPIKey)

	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 300 {
		return fmt.Errorf("email service returned status %d", response.StatusCode)
	}

	s.logger.Info().Uint("portfolio_id", portfolioID).Str("operation", operation).Msg("Reconciliation alert sent")
	return nil
}
