// Package feed is the change feed behind live collection views. Writers
// publish a Change on a per-collection Redis channel; subscribers re-run
// their query and receive a fresh snapshot.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/metrics"
	"vanu-marketplace/internal/store/documents"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "vanu:changes"

// Querier runs snapshot queries for subscribers.
type Querier interface {
	Query(ctx context.Context, q documents.Query) ([]documents.Document, error)
}

type Feed struct {
	rdb    *redis.Client
	prefix string
	logger logger.Logger
}

func New(rdb *redis.Client, prefix string, log logger.Logger) *Feed {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Feed{
		rdb:    rdb,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "change-feed"}),
	}
}

func (f *Feed) channel(collection string) string {
	return f.prefix + ":" + collection
}

// Publish implements documents.Publisher.
func (f *Feed) Publish(ctx context.Context, change documents.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel(change.Collection), payload).Err(); err != nil {
		return fmt.Errorf("publish change on %s: %w", change.Collection, err)
	}
	return nil
}

// Subscribe delivers the current result of q to fn, then a new result after
// every change to q.Collection until Unsubscribe is called. fn runs on a
// single goroutine and must not call Unsubscribe itself.
func (f *Feed) Subscribe(ctx context.Context, src Querier, q documents.Query, fn func([]documents.Document)) (*Subscription, error) {
	ps := f.rdb.Subscribe(ctx, f.channel(q.Collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", q.Collection, err)
	}

	docs, err := src.Query(ctx, q)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	fn(docs)

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		pubsub: ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	metrics.RealtimeSubscribers.Inc()

	go func() {
		defer close(sub.done)
		msgs := ps.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				docs, err := src.Query(runCtx, q)
				if err != nil {
					if runCtx.Err() != nil {
						return
					}
					f.logger.Warn("snapshot refresh failed", map[string]interface{}{
						"collection": q.Collection,
						"error":      err,
					})
					continue
				}
				fn(docs)
			}
		}
	}()

	return sub, nil
}

// Subscription is a live query registration.
type Subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops delivery. No callback runs after it returns. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
		<-s.done
		metrics.RealtimeSubscribers.Dec()
	})
}

// Unsubscriber cancels a live query.
type Unsubscriber interface {
	Unsubscribe()
}

// Source binds the feed to the store its snapshots are read from.
type Source struct {
	feed    *Feed
	querier Querier
}

func (f *Feed) Source(q Querier) *Source {
	return &Source{feed: f, querier: q}
}

func (s *Source) Subscribe(ctx context.Context, q documents.Query, fn func([]documents.Document)) (Unsubscriber, error) {
	return s.feed.Subscribe(ctx, s.querier, q, fn)
}
