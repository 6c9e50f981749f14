package sendapplicationnotification

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"vanu-marketplace/internal/common/camunda"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/notify"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "send-application-notification"

type Notifier interface {
	SendEmail(ctx context.Context, msg models.EmailMessage) error
	SendSMS(ctx context.Context, phone, message string) error
	Signature() string
}

type Handler struct {
	config       *Config
	notifier     Notifier
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		notifier:     notifier,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		verr := errors.NewValidationError(fmt.Sprintf("parse job variables: %v", err))
		h.errorHandler.HandleJobError(ctx, client, job, verr)
		return verr
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}
	return camunda.CompleteJob(ctx, client, job, output)
}

// Execute sends the application confirmation by email and SMS. Delivery
// problems are reported in Output.Status; only bad input is an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID == "" {
		return nil, errors.NewValidationError("applicationId is required")
	}

	out := &Output{
		NotificationID: uuid.New().String(),
		Status:         models.NotificationStatusDisabled,
		SentAt:         h.now().UTC().Format(time.RFC3339),
	}

	sent, failed := 0, 0
	record := func(channel string, err error) {
		switch {
		case err == nil:
			sent++
		case stderrors.Is(err, notify.ErrChannelDisabled):
		default:
			failed++
			h.logger.Error("notification send failed", map[string]interface{}{
				"channel":       channel,
				"applicationId": input.ApplicationID,
				"error":         err,
			})
		}
	}

	if input.Email != "" {
		msg := notify.ApplicationReceivedEmail(input.Email, input.Name, input.ApplicationID, h.notifier.Signature())
		record(models.ChannelEmail, h.notifier.SendEmail(ctx, msg))
	}
	if input.Mobile != "" {
		record(models.ChannelSMS, h.notifier.SendSMS(ctx, input.Mobile, notify.ApplicationReceivedSMS(input.ApplicationID)))
	}

	switch {
	case failed > 0:
		out.Status = models.NotificationStatusFailed
	case sent > 0:
		out.Status = models.NotificationStatusSent
	}

	h.logger.Info("application notification processed", map[string]interface{}{
		"applicationId":  input.ApplicationID,
		"collection":     input.Collection,
		"notificationId": out.NotificationID,
		"status":         out.Status,
	})
	return out, nil
}
