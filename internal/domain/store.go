package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FeedStore persists the latest cross-venue price rows, one per outcome.
type FeedStore interface {
	UpsertBatch(ctx context.Context, rows []PricedOutcome) error
	ListActive(ctx context.Context) ([]PricedOutcome, error)
	GetByKey(ctx context.Context, key OutcomeKey) (PricedOutcome, error)
	// MarkMarketClosed flags every row of a market that left the venue's
	// active list so scans stop considering it.
	MarkMarketClosed(ctx context.Context, marketID string) error
	// HasInPlay reports whether any active row is currently in-play, which
	// drives the ingest cadence.
	HasInPlay(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// SnapshotStore persists short-retention price history samples.
type SnapshotStore interface {
	InsertBatch(ctx context.Context, snaps []PriceSnapshot) error
	ListRange(ctx context.Context, key OutcomeKey, from, to time.Time) ([]PriceSnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]PriceSnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// OpportunityStore persists opportunity episodes.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	// MarkClosed finalizes an episode with its peak readings and close time.
	MarkClosed(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	// Summarize aggregates closed-or-open episodes that opened inside
	// [from, to) into a daily report.
	Summarize(ctx context.Context, from, to time.Time, topN int) (DailySummary, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	CountOpen(ctx context.Context) (int, error)
}

// ExecutionStore persists execution attempt outcomes.
type ExecutionStore interface {
	Insert(ctx context.Context, rec ExecutionRecord) error
	GetByID(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	// MonthlyChurn sums back stakes of executed attempts in the month bucket.
	MonthlyChurn(ctx context.Context, monthKey string) (float64, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
