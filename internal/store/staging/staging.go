// Package staging keeps kisan-card attachments between the draft
// submission and payment confirmation.
package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "staging:kisan-card:"

type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func key(applicationID string) string {
	return keyPrefix + applicationID
}

// Put stores files for applicationID, replacing anything staged before.
func (s *Store) Put(ctx context.Context, applicationID string, files []models.Attachment) error {
	fields := make(map[string]interface{}, len(files))
	for _, f := range files {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode attachment %s: %w", f.Name, err)
		}
		fields[f.Name] = raw
	}

	k := key(applicationID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(fields) > 0 {
			pipe.HSet(ctx, k, fields)
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.NewPersistenceError("staging", err)
	}
	return nil
}

// Get returns the staged files keyed by attachment name.
func (s *Store) Get(ctx context.Context, applicationID string) (map[string]models.Attachment, error) {
	raw, err := s.rdb.HGetAll(ctx, key(applicationID)).Result()
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("staging get", err)
	}
	if len(raw) == 0 {
		return nil, errors.NewNotFoundError("staged files", applicationID)
	}

	files := make(map[string]models.Attachment, len(raw))
	for name, v := range raw {
		var a models.Attachment
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, errors.NewQueryExecutionFailedError("staging decode "+name, err)
		}
		files[name] = a
	}
	return files, nil
}

func (s *Store) Delete(ctx context.Context, applicationID string) error {
	if err := s.rdb.Del(ctx, key(applicationID)).Err(); err != nil {
		return errors.NewPersistenceError("staging", err)
	}
	return nil
}
