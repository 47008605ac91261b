package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/notify"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// BuildNotifier picks the staff email transport: SendGrid when an API key is set,
// SES when a sender address is set, and a logging stub otherwise.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*notify.Service, string) {
	if logger == nil {
		logger = logging.Default()
	}
	var sender notify.EmailSender
	provider := "stub"

	switch {
	case strings.TrimSpace(cfg.SendGridAPIKey) != "":
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		provider = "sendgrid"
	case strings.TrimSpace(cfg.SESFromEmail) != "" && awsCfg != nil:
		sender = notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		provider = "ses"
	default:
		sender = notify.NewStubEmailSender(logger)
	}

	if strings.TrimSpace(cfg.StaffNotifyEmail) == "" {
		logger.Warn("STAFF_NOTIFY_EMAIL not set; staff notifications disabled")
	}
	logger.Info("staff notifications configured", "provider", provider)
	return notify.NewService(sender, cfg.StaffNotifyEmail, logger), provider
}
