package submission

import (
	"context"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/models"

	"github.com/google/uuid"
)

// DocumentStore is the document persistence used for applications.
type DocumentStore interface {
	Set(ctx context.Context, collection, id string, data interface{}) error
	Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Get(ctx context.Context, collection, id string, out interface{}) error
	AppendAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{})
}

// DocumentRecorder writes application records to the document store.
type DocumentRecorder struct {
	store DocumentStore
	now   func() time.Time
	newID func() string
}

func NewRecorder(store DocumentStore) *DocumentRecorder {
	return &DocumentRecorder{store: store, now: time.Now, newID: uuid.NewString}
}

// Record writes one application to collection keyed by owner, or by a
// generated id when owner is empty. The password field is never written.
func (r *DocumentRecorder) Record(ctx context.Context, collection, owner string, data models.Application, assetURLs map[string]string, status string) (string, error) {
	id := owner
	if id == "" {
		id = r.newID()
	}

	record := make(models.Application, len(data)+len(assetURLs)+3)
	for k, v := range data {
		if k == models.FieldPassword {
			continue
		}
		record[k] = v
	}
	for field, u := range assetURLs {
		record[field] = u
	}
	if owner != "" {
		record[models.FieldUserID] = owner
	}
	record[models.FieldStatus] = status
	record[models.FieldSubmittedAt] = r.now().UTC().Format(time.RFC3339)

	if err := r.store.Set(ctx, collection, id, record); err != nil {
		return "", errors.NewPersistenceError(collection, err)
	}

	r.store.AppendAudit(ctx, "application_created", "application", id, map[string]interface{}{
		"collection": collection,
		"status":     status,
	})
	return id, nil
}

// Update merges fields into an existing application.
func (r *DocumentRecorder) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := r.store.Merge(ctx, collection, id, fields); err != nil {
		if errors.AsStandardError(err).Code == errors.ErrCodeNotFound {
			return err
		}
		return errors.NewPersistenceError(collection, err)
	}
	if status, ok := fields[models.FieldStatus]; ok {
		r.store.AppendAudit(ctx, "application_status_changed", "application", id, map[string]interface{}{
			"collection": collection,
			"status":     status,
		})
	}
	return nil
}

func (r *DocumentRecorder) Get(ctx context.Context, collection, id string) (models.Application, error) {
	var app models.Application
	if err := r.store.Get(ctx, collection, id, &app); err != nil {
		return nil, err
	}
	return app, nil
}
