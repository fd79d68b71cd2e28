package curriculum

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pathgen/page/internal/platform/cache"
)

const topicsCacheKey = "page:topics:list"

// JSONCache is the subset of the cache client used to memoize topic lists.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedStore serves ListTopics from a cache and invalidates it on topic
// writes. Cache failures fall through to the underlying store.
type CachedStore struct {
	Store
	cache JSONCache
	ttl   time.Duration
}

// NewCachedStore wraps store with cache.
func NewCachedStore(store Store, c JSONCache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: store, cache: c, ttl: ttl}
}

func (s *CachedStore) ListTopics(ctx context.Context) ([]Topic, error) {
	var topics []Topic
	err := s.cache.GetJSON(ctx, topicsCacheKey, &topics)
	if err == nil {
		return topics, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("topic cache read failed", "error", err)
	}

	topics, err = s.Store.ListTopics(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, topicsCacheKey, topics, s.ttl); err != nil {
		slog.Warn("topic cache write failed", "error", err)
	}
	return topics, nil
}

func (s *CachedStore) PutTopic(ctx context.Context, t Topic) (Topic, error) {
	out, err := s.Store.PutTopic(ctx, t)
	if err != nil {
		return out, err
	}
	s.invalidate(ctx)
	return out, nil
}

func (s *CachedStore) DeleteTopic(ctx context.Context, id string) error {
	if err := s.Store.DeleteTopic(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, topicsCacheKey); err != nil {
		slog.Warn("topic cache invalidation failed", "error", err)
	}
}
