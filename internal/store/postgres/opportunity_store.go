package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awestray/backlay/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppCols = `id, key, sport, event, runner,
	back_price, lay_price, open_margin, peak_margin, peak_back_price, peak_lay_price,
	opened_at, last_seen, closed_at`

// Insert stores a newly opened episode.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO arb_opportunities (
			id, key, sport, event, runner,
			back_price, lay_price, open_margin, peak_margin, peak_back_price, peak_lay_price,
			opened_at, last_seen, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, string(opp.Key), opp.Sport, opp.Event, opp.Runner,
		opp.BackPrice, opp.LayPrice, opp.OpenMargin, opp.PeakMargin, opp.PeakBackPrice, opp.PeakLayPrice,
		opp.OpenedAt, opp.LastSeen, opp.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// MarkClosed finalizes an episode with its peak readings and close time.
func (s *OpportunityStore) MarkClosed(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		UPDATE arb_opportunities SET
			peak_margin     = $2,
			peak_back_price = $3,
			peak_lay_price  = $4,
			last_seen       = $5,
			closed_at       = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		opp.ID, opp.PeakMargin, opp.PeakBackPrice, opp.PeakLayPrice, opp.LastSeen, opp.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: close opportunity %s: %w", opp.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recent episodes ordered by open time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+oppCols+` FROM arb_opportunities ORDER BY opened_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// Summarize aggregates episodes that opened inside [from, to) into a daily
// report. Still-open episodes count with their open-to-last-seen duration.
func (s *OpportunityStore) Summarize(ctx context.Context, from, to time.Time, topN int) (domain.DailySummary, error) {
	summary := domain.DailySummary{Day: from}

	var avgDurSec, maxDurSec float64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(peak_margin), 0),
		       COALESCE(MAX(peak_margin), 0),
		       COALESCE(MIN(peak_margin), 0),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (COALESCE(closed_at, last_seen) - opened_at))), 0),
		       COALESCE(MAX(EXTRACT(EPOCH FROM (COALESCE(closed_at, last_seen) - opened_at))), 0)
		FROM arb_opportunities
		WHERE opened_at >= $1 AND opened_at < $2`,
		from, to,
	).Scan(&summary.Total, &summary.AvgPeakMargin, &summary.MaxPeakMargin, &summary.MinPeakMargin,
		&avgDurSec, &maxDurSec)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("postgres: summarize opportunities: %w", err)
	}
	summary.AvgDuration = time.Duration(avgDurSec * float64(time.Second))
	summary.MaxDuration = time.Duration(maxDurSec * float64(time.Second))

	if summary.Total == 0 {
		return summary, nil
	}

	sportRows, err := s.pool.Query(ctx, `
		SELECT sport, COUNT(*), COALESCE(AVG(peak_margin), 0)
		FROM arb_opportunities
		WHERE opened_at >= $1 AND opened_at < $2
		GROUP BY sport ORDER BY COUNT(*) DESC, sport`,
		from, to)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("postgres: summarize by sport: %w", err)
	}
	defer sportRows.Close()
	for sportRows.Next() {
		var sc domain.SportCount
		if err := sportRows.Scan(&sc.Sport, &sc.Count, &sc.AvgPeakMargin); err != nil {
			return domain.DailySummary{}, fmt.Errorf("postgres: scan sport count: %w", err)
		}
		summary.BySport = append(summary.BySport, sc)
	}
	if err := sportRows.Err(); err != nil {
		return domain.DailySummary{}, fmt.Errorf("postgres: sport count rows: %w", err)
	}

	if topN > 0 {
		topRows, err := s.pool.Query(ctx,
			`SELECT `+oppCols+` FROM arb_opportunities
			 WHERE opened_at >= $1 AND opened_at < $2
			 ORDER BY peak_margin DESC LIMIT $3`,
			from, to, topN)
		if err != nil {
			return domain.DailySummary{}, fmt.Errorf("postgres: top opportunities: %w", err)
		}
		defer topRows.Close()
		summary.Top, err = collectOpportunities(topRows)
		if err != nil {
			return domain.DailySummary{}, err
		}
	}

	return summary, nil
}

// ListClosedBefore returns closed episodes older than the cutoff, oldest first.
func (s *OpportunityStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+oppCols+` FROM arb_opportunities WHERE closed_at IS NOT NULL AND closed_at < $1 ORDER BY opened_at`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed opportunities: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// CountOpen returns the number of episodes without a close time.
func (s *OpportunityStore) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM arb_opportunities WHERE closed_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open opportunities: %w", err)
	}
	return count, nil
}

func collectOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		var key string
		if err := rows.Scan(
			&opp.ID, &key, &opp.Sport, &opp.Event, &opp.Runner,
			&opp.BackPrice, &opp.LayPrice, &opp.OpenMargin, &opp.PeakMargin, &opp.PeakBackPrice, &opp.PeakLayPrice,
			&opp.OpenedAt, &opp.LastSeen, &opp.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opp.Key = domain.OutcomeKey(key)
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return opps, nil
}
