package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awestray/backlay/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotCols = `key, market_id, sport, event, runner, back_price, lay_price, mid_price, volume, at`

// InsertBatch stores multiple price samples in a single batch.
func (s *SnapshotStore) InsertBatch(ctx context.Context, snaps []domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO market_snapshots (key, market_id, sport, event, runner, back_price, lay_price, mid_price, volume, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, snap := range snaps {
		batch.Queue(query,
			string(snap.Key), snap.MarketID, snap.Sport, snap.Event, snap.Runner,
			snap.BackPrice, snap.LayPrice, snap.MidPrice, snap.Volume, snap.At,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRange returns one outcome's samples inside [from, to) in time order.
func (s *SnapshotStore) ListRange(ctx context.Context, key domain.OutcomeKey, from, to time.Time) ([]domain.PriceSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotCols+` FROM market_snapshots WHERE key = $1 AND at >= $2 AND at < $3 ORDER BY at`,
		string(key), from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots for %s: %w", key, err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ListBefore returns all samples older than the given cutoff, oldest first.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PriceSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotCols+` FROM market_snapshots WHERE at < $1 ORDER BY at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// DeleteBefore removes samples older than the cutoff and reports how many.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_snapshots WHERE at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.PriceSnapshot, error) {
	var snaps []domain.PriceSnapshot
	for rows.Next() {
		var snap domain.PriceSnapshot
		var key string
		if err := rows.Scan(
			&key, &snap.MarketID, &snap.Sport, &snap.Event, &snap.Runner,
			&snap.BackPrice, &snap.LayPrice, &snap.MidPrice, &snap.Volume, &snap.At,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snap.Key = domain.OutcomeKey(key)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: snapshot rows: %w", err)
	}
	return snaps, nil
}
