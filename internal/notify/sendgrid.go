package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// leadAlertCategory tags alerts in the SendGrid activity feed.
const leadAlertCategory = "lead-alert"

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends lead alerts via the SendGrid v3 API.
type SendGridSender struct {
	client    sendgridClient
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendgridClient, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// SendLeadAlert sends one message with every recipient in a single
// personalization.
func (s *SendGridSender) SendLeadAlert(ctx context.Context, recipients []string, alert LeadAlert) error {
	if s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	message, err := s.buildMessage(recipients, alert)
	if err != nil {
		return err
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "lead_id", alert.LeadID)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "lead_id", alert.LeadID)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("lead alert sent via sendgrid", "recipients", len(recipients), "lead_id", alert.LeadID, "status", response.StatusCode)
	return nil
}

func (s *SendGridSender) buildMessage(recipients []string, alert LeadAlert) (*mail.SGMailV3, error) {
	html, err := alert.HTML()
	if err != nil {
		return nil, err
	}

	p := mail.NewPersonalization()
	for _, to := range recipients {
		p.AddTos(mail.NewEmail("", to))
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = alert.Subject()
	m.AddPersonalizations(p)
	m.AddContent(
		mail.NewContent("text/plain", alert.Text()),
		mail.NewContent("text/html", html),
	)
	m.AddCategories(leadAlertCategory)
	if alert.LeadID != "" {
		m.SetCustomArg("lead_id", alert.LeadID)
	}
	if replyTo := alert.ReplyTo(); replyTo != "" {
		m.SetReplyTo(mail.NewEmail(alert.Name, replyTo))
	}
	return m, nil
}

var _ AlertSender = (*SendGridSender)(nil)
