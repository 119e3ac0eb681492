// Package memory holds in-process stores used when no Redis or PostgreSQL
// is configured. Their contents are lost on restart.
package memory

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
)

// CacheStore keeps the current asset list in memory
type CacheStore struct {
	mu    gosync.RWMutex
	cache holdings.Cache
}

var _ sync.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates an empty cache store
func NewCacheStore() *CacheStore {
	return &CacheStore{}
}

// Load returns a copy of the stored cache
func (s *CacheStore) Load(_ context.Context) (*holdings.Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &holdings.Cache{
		Assets:      append([]holdings.NormalizedAsset(nil), s.cache.Assets...),
		LastRefresh: s.cache.LastRefresh,
	}, nil
}

// Save replaces the stored cache with a copy of cache
func (s *CacheStore) Save(_ context.Context, cache *holdings.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cache == nil {
		s.cache = holdings.Cache{}
		return nil
	}
	s.cache = holdings.Cache{
		Assets:      append([]holdings.NormalizedAsset(nil), cache.Assets...),
		LastRefresh: cache.LastRefresh,
	}
	return nil
}

// HistoryStore keeps snapshots in memory
type HistoryStore struct {
	mu        gosync.RWMutex
	snapshots []history.Snapshot
}

var _ sync.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore creates an empty history store
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// List returns the snapshots oldest first
func (s *HistoryStore) List(_ context.Context) ([]history.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]history.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Append stores a snapshot, ignoring one already stored under the same ID
func (s *HistoryStore) Append(_ context.Context, snap history.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.snapshots {
		if existing.ID == snap.ID {
			return nil
		}
	}
	s.snapshots = history.Append(s.snapshots, snap)
	return nil
}

// DeleteBefore drops snapshots taken strictly before cutoff
func (s *HistoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if !snap.Timestamp.Before(cutoff) {
			kept = append(kept, snap)
		}
	}
	deleted := int64(len(s.snapshots) - len(kept))
	s.snapshots = kept
	return deleted, nil
}
