package activatestockist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vanu-marketplace/internal/common/camunda"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "activate-stockist"

type ProfileStore interface {
	Get(ctx context.Context, collection, id string, out interface{}) error
	Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error
	AppendAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{})
}

// Handler moves an approved stockist's profile to Active once the
// onboarding process reaches the activation task.
type Handler struct {
	config       *Config
	store        ProfileStore
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(config *Config, store ProfileStore, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		store:        store,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	uid := strings.TrimSpace(input.UserID)
	if uid == "" {
		return nil, errors.NewValidationError("userId is required")
	}

	var profile models.UserProfile
	if err := h.store.Get(ctx, models.CollectionUsers, uid, &profile); err != nil {
		return nil, err
	}

	activatedAt := h.now().UTC().Format(time.RFC3339)
	if profile.Status != models.UserStatusActive {
		if err := h.store.Merge(ctx, models.CollectionUsers, uid, map[string]interface{}{
			"status":      models.UserStatusActive,
			"activatedAt": activatedAt,
		}); err != nil {
			return nil, err
		}
		h.store.AppendAudit(ctx, "stockist_activated", "user", uid, map[string]interface{}{
			"previousStatus": profile.Status,
		})
		h.logger.Info("stockist activated", map[string]interface{}{"userId": uid, "previousStatus": profile.Status})
	} else {
		h.logger.Debug("stockist already active", map[string]interface{}{"userId": uid})
	}

	return &Output{UserID: uid, Status: models.UserStatusActive, ActivatedAt: activatedAt}, nil
}
