package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awestray/backlay/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const execCols = `id, key, sport, event, runner, status, reason,
	back_ref, lay_bet_id, back_price, back_stake, lay_price, lay_stake,
	margin, expected_profit, month_key, created_at`

// Insert stores the terminal outcome of one execution attempt.
func (s *ExecutionStore) Insert(ctx context.Context, rec domain.ExecutionRecord) error {
	const query = `
		INSERT INTO arb_executions (
			id, key, sport, event, runner, status, reason,
			back_ref, lay_bet_id, back_price, back_stake, lay_price, lay_stake,
			margin, expected_profit, month_key, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Key), rec.Sport, rec.Event, rec.Runner, string(rec.Status), rec.Reason,
		rec.BackRef, rec.LayBetID, rec.BackPrice, rec.BackStake, rec.LayPrice, rec.LayStake,
		rec.Margin, rec.ExpectedProfit, rec.MonthKey, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns a single execution record.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+execCols+` FROM arb_executions WHERE id = $1`, id)
	rec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recent execution attempts.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+execCols+` FROM arb_executions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// MonthlyChurn sums back stakes of executed attempts in the month bucket.
func (s *ExecutionStore) MonthlyChurn(ctx context.Context, monthKey string) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(back_stake), 0) FROM arb_executions WHERE month_key = $1 AND status = $2`,
		monthKey, string(domain.ExecStatusExecuted),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: monthly churn %s: %w", monthKey, err)
	}
	return sum, nil
}

// ListBefore returns execution records older than the cutoff, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+execCols+` FROM arb_executions WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var key, status string
	err := row.Scan(
		&rec.ID, &key, &rec.Sport, &rec.Event, &rec.Runner, &status, &rec.Reason,
		&rec.BackRef, &rec.LayBetID, &rec.BackPrice, &rec.BackStake, &rec.LayPrice, &rec.LayStake,
		&rec.Margin, &rec.ExpectedProfit, &rec.MonthKey, &rec.CreatedAt,
	)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Key = domain.OutcomeKey(key)
	rec.Status = domain.ExecStatus(status)
	return rec, nil
}

func collectExecutions(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var recs []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: execution rows: %w", err)
	}
	return recs, nil
}
