// Package blobs uploads binary assets to object storage and returns their
// public download URLs.
package blobs

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/metrics"
)

// ObjectStore is the subset of the S3 client used for assets.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	ObjectURL(key string) string
}

type Uploader struct {
	objects ObjectStore
	logger  logger.Logger
}

func NewUploader(objects ObjectStore, log logger.Logger) *Uploader {
	return &Uploader{
		objects: objects,
		logger:  log.WithFields(map[string]interface{}{"component": "blob-uploader"}),
	}
}

// Upload stores data at path and returns its download URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, objectPath string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+objectPath), "/")
	start := time.Now()

	if err := u.objects.PutObject(ctx, key, data, http.DetectContentType(data)); err != nil {
		metrics.AssetUploads.WithLabelValues(metrics.OutcomeFailure).Inc()
		return "", errors.NewUploadError(key, err)
	}
	metrics.AssetUploads.WithLabelValues(metrics.OutcomeSuccess).Inc()

	u.logger.Debug("asset uploaded", map[string]interface{}{
		"path":     key,
		"bytes":    len(data),
		"duration": time.Since(start).String(),
	})
	return u.objects.ObjectURL(key), nil
}

// Remove deletes the object at path.
func (u *Uploader) Remove(ctx context.Context, objectPath string) error {
	key := strings.TrimPrefix(path.Clean("/"+objectPath), "/")
	if err := u.objects.DeleteObject(ctx, key); err != nil {
		return errors.NewUploadError(key, err)
	}
	return nil
}
