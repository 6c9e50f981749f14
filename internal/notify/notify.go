// Package notify delivers outgoing email through SES and SMS through SNS.
package notify

import (
	"context"
	stderrors "errors"
	"time"

	awsclient "vanu-marketplace/internal/common/aws"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/metrics"
	"vanu-marketplace/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// ErrChannelDisabled is returned when a channel is switched off in config.
var ErrChannelDisabled = stderrors.New("notification channel disabled")

type EmailService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type SMSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
	BuildSMSInput(phone, message string) *sns.PublishInput
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	Signature    string
	Timeout      time.Duration
}

type Sender struct {
	cfg    Config
	email  EmailService
	sms    SMSService
	logger logger.Logger
}

// NewSender builds a sender; email or sms may be nil when the channel is disabled.
func NewSender(cfg Config, email EmailService, sms SMSService, log logger.Logger) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Signature == "" {
		cfg.Signature = "The Vanu Organic Team"
	}
	return &Sender{
		cfg:    cfg,
		email:  email,
		sms:    sms,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

func (s *Sender) Signature() string { return s.cfg.Signature }

// SendEmail sends msg with a text body and, when set, an HTML alternative.
func (s *Sender) SendEmail(ctx context.Context, msg models.EmailMessage) error {
	if !s.cfg.EmailEnabled || s.email == nil {
		metrics.NotificationsSent.WithLabelValues(models.ChannelEmail, models.NotificationStatusDisabled).Inc()
		return ErrChannelDisabled
	}
	if msg.To == "" {
		return errors.NewValidationError("email recipient is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	input := awsclient.BuildEmailInput(s.cfg.FromEmail, msg.To, msg.Subject, msg.Text, msg.HTML)
	if _, err := s.email.SendEmail(ctx, input); err != nil {
		metrics.NotificationsSent.WithLabelValues(models.ChannelEmail, models.NotificationStatusFailed).Inc()
		return errors.NewNotificationSendFailedError(models.ChannelEmail, err)
	}

	metrics.NotificationsSent.WithLabelValues(models.ChannelEmail, models.NotificationStatusSent).Inc()
	s.logger.Debug("email sent", map[string]interface{}{"to": msg.To, "subject": msg.Subject})
	return nil
}

// SendSMS sends a transactional text message.
func (s *Sender) SendSMS(ctx context.Context, phone, message string) error {
	if !s.cfg.SMSEnabled || s.sms == nil {
		metrics.NotificationsSent.WithLabelValues(models.ChannelSMS, models.NotificationStatusDisabled).Inc()
		return ErrChannelDisabled
	}
	if phone == "" {
		return errors.NewValidationError("sms recipient is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if _, err := s.sms.Publish(ctx, s.sms.BuildSMSInput(phone, message)); err != nil {
		metrics.NotificationsSent.WithLabelValues(models.ChannelSMS, models.NotificationStatusFailed).Inc()
		return errors.NewNotificationSendFailedError(models.ChannelSMS, err)
	}

	metrics.NotificationsSent.WithLabelValues(models.ChannelSMS, models.NotificationStatusSent).Inc()
	s.logger.Debug("sms sent", map[string]interface{}{"phone": phone})
	return nil
}
