package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// Service alerts the sales team when a consultation turns into a lead.
type Service struct {
	sender     AlertSender
	recipients []string
	logger     *logging.Logger
}

// NewService creates a notification service. A nil sender or an empty
// recipient list disables alerts.
func NewService(sender AlertSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	clean := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return &Service{
		sender:     sender,
		recipients: clean,
		logger:     logger,
	}
}

// Enabled reports whether alerts will actually be sent.
func (s *Service) Enabled() bool {
	return s != nil && s.sender != nil && len(s.recipients) > 0
}

// NotifyNewLead sends one alert addressed to every recipient.
func (s *Service) NotifyNewLead(ctx context.Context, lead *leads.Lead) error {
	if !s.Enabled() {
		s.logger.Debug("notify: lead alerts not configured, skipping")
		return nil
	}
	if lead == nil {
		return errors.New("notify: lead is nil")
	}

	if err := s.sender.SendLeadAlert(ctx, s.recipients, NewLeadAlert(lead)); err != nil {
		s.logger.Error("notify: failed to send lead alert", "error", err, "lead_id", lead.ID)
		return fmt.Errorf("notify: send lead alert: %w", err)
	}
	return nil
}
