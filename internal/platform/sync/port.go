package sync

import (
	"context"
	"time"

	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
)

// HoldingsProvider fetches the current flattened holdings from the remote API
type HoldingsProvider interface {
	FetchAssets(ctx context.Context) ([]holdings.NormalizedAsset, error)
}

// CacheStore persists the single current asset list
type CacheStore interface {
	// Load returns the stored cache, or an empty cache when none exists
	Load(ctx context.Context) (*holdings.Cache, error)

	// Save replaces the stored cache as a whole
	Save(ctx context.Context, cache *holdings.Cache) error
}

// HistoryStore persists snapshots. It only appends and deletes, so
// concurrent writers cannot lose each other's snapshots.
type HistoryStore interface {
	// List returns every snapshot in chronological order
	List(ctx context.Context) ([]history.Snapshot, error)

	// Append stores a snapshot
	Append(ctx context.Context, s history.Snapshot) error

	// DeleteBefore removes snapshots taken before cutoff and returns how many
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
