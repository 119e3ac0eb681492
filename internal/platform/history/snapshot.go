// Package history keeps the time series of flattened asset snapshots and
// computes top movers between two points of it.
package history

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nmathey/finahack/internal/platform/holdings"
)

// DefaultRetention is how long snapshots are kept.
const DefaultRetention = 365 * 24 * time.Hour

// Snapshot is an immutable copy of the asset list at a point in time.
type Snapshot struct {
	ID        uuid.UUID                  `json:"id"`
	Timestamp time.Time                  `json:"timestamp"`
	Assets    []holdings.NormalizedAsset `json:"assets"`
}

// NewSnapshot captures assets at the given time.
func NewSnapshot(at time.Time, assets []holdings.NormalizedAsset) Snapshot {
	cp := make([]holdings.NormalizedAsset, len(assets))
	copy(cp, assets)
	return Snapshot{
		ID:        uuid.New(),
		Timestamp: at.UTC(),
		Assets:    cp,
	}
}

// Append returns history with s added at the end. history is not modified.
func Append(history []Snapshot, s Snapshot) []Snapshot {
	out := make([]Snapshot, 0, len(history)+1)
	out = append(out, history...)
	return append(out, s)
}

// Cutoff is the oldest timestamp retained at now.
func Cutoff(now time.Time, retention time.Duration) time.Time {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return now.Add(-retention)
}

// Prune drops every snapshot older than the retention window, preserving
// order. A snapshot exactly at the cutoff is kept.
func Prune(history []Snapshot, now time.Time, retention time.Duration) []Snapshot {
	cutoff := Cutoff(now, retention)
	out := make([]Snapshot, 0, len(history))
	for _, s := range history {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Record appends a snapshot of assets taken at now, then prunes.
func Record(history []Snapshot, assets []holdings.NormalizedAsset, now time.Time, retention time.Duration) ([]Snapshot, Snapshot) {
	s := NewSnapshot(now, assets)
	return Prune(Append(history, s), now, retention), s
}

// chronological returns a time-ordered copy; equal timestamps keep insertion order.
func chronological(history []Snapshot) []Snapshot {
	out := make([]Snapshot, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
