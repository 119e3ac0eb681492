package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
	"github.com/nmathey/finahack/pkg/logger"
)

// CacheKey holds the materialized asset list. There is exactly one.
const CacheKey = "finahack:cache:current"

// CacheStore is a Redis-backed sync.CacheStore
type CacheStore struct {
	client redis.Cmdable
	key    string
	logger *logger.Logger
}

var _ sync.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates a cache store on the default key
func NewCacheStore(client redis.Cmdable, log *logger.Logger) *CacheStore {
	return NewCacheStoreWithKey(client, CacheKey, log)
}

// NewCacheStoreWithKey creates a cache store on a custom key, used by tests
// sharing one Redis.
func NewCacheStoreWithKey(client redis.Cmdable, key string, log *logger.Logger) *CacheStore {
	return &CacheStore{
		client: client,
		key:    key,
		logger: log.WithField("component", "cache_store"),
	}
}

// Load returns the stored cache. A missing or unreadable value yields an
// empty cache so the next refresh rebuilds it.
func (s *CacheStore) Load(ctx context.Context) (*holdings.Cache, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug("cache miss", "key", s.key)
		return &holdings.Cache{}, nil
	}
	if err != nil {
		s.logger.Error("cache error", "operation", "load", "key", s.key, "error", err)
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	var cache holdings.Cache
	if err := json.Unmarshal(val, &cache); err != nil {
		s.logger.Warn("discarding unreadable cache", "key", s.key, "error", err)
		return &holdings.Cache{}, nil
	}

	s.logger.Debug("cache hit", "key", s.key, "assets", len(cache.Assets))
	return &cache, nil
}

// Save replaces the stored cache without expiry
func (s *CacheStore) Save(ctx context.Context, cache *holdings.Cache) error {
	if cache == nil {
		cache = &holdings.Cache{}
	}
	if cache.Assets == nil {
		cache.Assets = []holdings.NormalizedAsset{}
	}

	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		s.logger.Error("cache error", "operation", "save", "key", s.key, "error", err)
		return fmt.Errorf("failed to save cache: %w", err)
	}

	return nil
}

// Clear removes the stored cache
func (s *CacheStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
