package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/consult-funnel/internal/archive"
	appconfig "github.com/wolfman30/consult-funnel/internal/config"
	"github.com/wolfman30/consult-funnel/internal/notify"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// BuildAlertSender picks SES, SendGrid or the logging stub. With
// EMAIL_PROVIDER=auto, SES wins when a sender address and AWS config exist.
func BuildAlertSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.AlertSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubAlertSender(logger)
	}

	useSES := awsCfg != nil && cfg.SESFromEmail != "" && (cfg.EmailProvider == "ses" || cfg.EmailProvider == "auto" || cfg.EmailProvider == "")
	useSendGrid := cfg.SendGridAPIKey != "" && (cfg.EmailProvider == "sendgrid" || cfg.EmailProvider == "auto" || cfg.EmailProvider == "")

	switch {
	case useSES:
		logger.Info("lead alerts via ses", "from", cfg.SESFromEmail)
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	case useSendGrid:
		logger.Info("lead alerts via sendgrid", "from", cfg.SendGridFromEmail)
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	default:
		logger.Warn("no email provider configured; lead alerts are logged only")
		return notify.NewStubAlertSender(logger)
	}
}

// BuildNotifier returns the lead alert service, or nil without recipients.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *notify.Service {
	if cfg == nil || len(cfg.LeadAlertRecipients) == 0 {
		return nil
	}
	svc := notify.NewService(BuildAlertSender(cfg, awsCfg, logger), cfg.LeadAlertRecipients, logger)
	if !svc.Enabled() {
		return nil
	}
	return svc
}

// BuildArchiver returns the S3 transcript archiver, or nil without a bucket.
func BuildArchiver(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *archive.Archiver {
	if cfg == nil || cfg.ArchiveBucket == "" || awsCfg == nil {
		return nil
	}
	store := archive.NewStore(s3.NewFromConfig(*awsCfg), cfg.ArchiveBucket, logger)
	return archive.NewArchiver(store, logger)
}
