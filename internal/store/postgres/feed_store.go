package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awestray/backlay/internal/domain"
)

// FeedStore implements domain.FeedStore using PostgreSQL.
type FeedStore struct {
	pool *pgxpool.Pool
}

// NewFeedStore creates a new FeedStore backed by the given connection pool.
func NewFeedStore(pool *pgxpool.Pool) *FeedStore {
	return &FeedStore{pool: pool}
}

const feedCols = `key, sport, event, runner,
	market_id, selection_id, lay_price, lay_size, market_status, in_play, total_matched,
	back_price, back_game_id, back_game_type, back_full_time, back_market_type_id,
	back_odds_name, back_sports_type, back_bookie,
	start_time, updated_at`

const feedUpsert = `
	INSERT INTO market_feed (
		key, sport, event, runner,
		market_id, selection_id, lay_price, lay_size, market_status, in_play, total_matched,
		back_price, back_game_id, back_game_type, back_full_time, back_market_type_id,
		back_odds_name, back_sports_type, back_bookie,
		start_time, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16,
		$17, $18, $19,
		$20, $21
	)
	ON CONFLICT (key) DO UPDATE SET
		sport               = EXCLUDED.sport,
		event               = EXCLUDED.event,
		runner              = EXCLUDED.runner,
		market_id           = EXCLUDED.market_id,
		selection_id        = EXCLUDED.selection_id,
		lay_price           = EXCLUDED.lay_price,
		lay_size            = EXCLUDED.lay_size,
		market_status       = EXCLUDED.market_status,
		in_play             = EXCLUDED.in_play,
		total_matched       = EXCLUDED.total_matched,
		back_price          = EXCLUDED.back_price,
		back_game_id        = EXCLUDED.back_game_id,
		back_game_type      = EXCLUDED.back_game_type,
		back_full_time      = EXCLUDED.back_full_time,
		back_market_type_id = EXCLUDED.back_market_type_id,
		back_odds_name      = EXCLUDED.back_odds_name,
		back_sports_type    = EXCLUDED.back_sports_type,
		back_bookie         = EXCLUDED.back_bookie,
		start_time          = EXCLUDED.start_time,
		updated_at          = EXCLUDED.updated_at`

func feedArgs(p domain.PricedOutcome) []any {
	return []any{
		string(p.Key), p.Sport, p.Event, p.Runner,
		p.MarketID, p.SelectionID, p.LayPrice, p.LaySize, p.MarketStatus, p.InPlay, p.TotalMatched,
		p.BackPrice, p.Back.GameID, p.Back.GameType, p.Back.IsFullTime, p.Back.MarketTypeID,
		p.Back.OddsName, p.Back.SportsType, p.Back.Bookie,
		p.StartTime, p.UpdatedAt,
	}
}

func scanOutcome(row pgx.Row) (domain.PricedOutcome, error) {
	var p domain.PricedOutcome
	var key string
	err := row.Scan(
		&key, &p.Sport, &p.Event, &p.Runner,
		&p.MarketID, &p.SelectionID, &p.LayPrice, &p.LaySize, &p.MarketStatus, &p.InPlay, &p.TotalMatched,
		&p.BackPrice, &p.Back.GameID, &p.Back.GameType, &p.Back.IsFullTime, &p.Back.MarketTypeID,
		&p.Back.OddsName, &p.Back.SportsType, &p.Back.Bookie,
		&p.StartTime, &p.UpdatedAt,
	)
	if err != nil {
		return domain.PricedOutcome{}, err
	}
	p.Key = domain.OutcomeKey(key)
	return p, nil
}

// UpsertBatch inserts or updates multiple feed rows in a single batch.
func (s *FeedStore) UpsertBatch(ctx context.Context, rows []domain.PricedOutcome) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(feedUpsert, feedArgs(p)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert feed batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListActive returns every feed row whose market has not closed.
func (s *FeedStore) ListActive(ctx context.Context) ([]domain.PricedOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feedCols+` FROM market_feed WHERE market_status <> 'CLOSED' ORDER BY start_time`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active feed: %w", err)
	}
	defer rows.Close()

	var list []domain.PricedOutcome
	for rows.Next() {
		p, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan feed row: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active feed rows: %w", err)
	}
	return list, nil
}

// GetByKey retrieves a single feed row by outcome key.
func (s *FeedStore) GetByKey(ctx context.Context, key domain.OutcomeKey) (domain.PricedOutcome, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+feedCols+` FROM market_feed WHERE key = $1`, string(key))
	p, err := scanOutcome(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PricedOutcome{}, domain.ErrNotFound
		}
		return domain.PricedOutcome{}, fmt.Errorf("postgres: get feed row %s: %w", key, err)
	}
	return p, nil
}

// MarkMarketClosed flags all rows of a market as closed so scans skip them.
func (s *FeedStore) MarkMarketClosed(ctx context.Context, marketID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE market_feed SET market_status = 'CLOSED', updated_at = NOW() WHERE market_id = $1`,
		marketID)
	if err != nil {
		return fmt.Errorf("postgres: mark market %s closed: %w", marketID, err)
	}
	return nil
}

// HasInPlay reports whether any non-closed row is currently in-play.
func (s *FeedStore) HasInPlay(ctx context.Context) (bool, error) {
	var inPlay bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM market_feed WHERE in_play AND market_status <> 'CLOSED')`,
	).Scan(&inPlay)
	if err != nil {
		return false, fmt.Errorf("postgres: check in-play: %w", err)
	}
	return inPlay, nil
}

// Count returns the total number of feed rows.
func (s *FeedStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM market_feed").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count feed rows: %w", err)
	}
	return count, nil
}
