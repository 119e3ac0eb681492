package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
	"github.com/nmathey/finahack/pkg/logger"
)

// schema mirrors migrations/000001_create_snapshots.up.sql
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id       UUID PRIMARY KEY,
    taken_at TIMESTAMPTZ NOT NULL,
    assets   JSONB NOT NULL DEFAULT '[]'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots (taken_at);
`

// SnapshotRepository handles snapshot history persistence
type SnapshotRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

var _ sync.HistoryStore = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new PostgreSQL snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool, log *logger.Logger) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, logger: log.WithField("component", "snapshot_repo")}
}

// List returns every snapshot, oldest first. Snapshots whose assets cannot be
// decoded are logged and left out.
func (r *SnapshotRepository) List(ctx context.Context) ([]history.Snapshot, error) {
	query := `
		SELECT id, taken_at, assets
		FROM snapshots
		ORDER BY taken_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []history.Snapshot{}
	for rows.Next() {
		var (
			s   history.Snapshot
			raw []byte
		)
		if err := rows.Scan(&s.ID, &s.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal(raw, &s.Assets); err != nil {
			r.logger.Warn("skipping unreadable snapshot", "snapshot_id", s.ID, "error", err)
			continue
		}
		if s.Assets == nil {
			s.Assets = []holdings.NormalizedAsset{}
		}
		s.Timestamp = s.Timestamp.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// Append stores a snapshot. Appending the same snapshot twice is a no-op.
func (r *SnapshotRepository) Append(ctx context.Context, s history.Snapshot) error {
	assets := s.Assets
	if assets == nil {
		assets = []holdings.NormalizedAsset{}
	}
	data, err := json.Marshal(assets)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, taken_at, assets)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.Timestamp, data); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}

	return nil
}

// DeleteBefore removes snapshots taken strictly before cutoff
func (r *SnapshotRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
