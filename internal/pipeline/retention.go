package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// pruneInterval is the snapshot prune cadence. Cutoffs are truncated to the
// hour, so hourly runs cover disjoint slices of expiring history.
const pruneInterval = time.Hour

// Retention keeps the hot store small: aged price snapshots are pruned on a
// rolling window, and old opportunity and execution rows are shipped to cold
// storage on a cron schedule. Archived rows are not deleted from the primary
// store; verifying the archive before removal stays a manual step.
type Retention struct {
	snaps         domain.SnapshotStore
	archiver      domain.Archiver // nil disables cold-storage archival
	snapshotTTL   time.Duration
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewRetention creates the retention task. archiver may be nil when object
// storage is not configured; snapshots are then deleted without archival.
func NewRetention(
	snaps domain.SnapshotStore,
	archiver domain.Archiver,
	snapshotTTL time.Duration,
	retentionDays int,
	logger *slog.Logger,
) *Retention {
	if snapshotTTL <= 0 {
		snapshotTTL = 24 * time.Hour
	}
	return &Retention{
		snaps:         snaps,
		archiver:      archiver,
		snapshotTTL:   snapshotTTL,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "retention")),
		now:           time.Now,
	}
}

// Prune removes snapshots older than the retention window, archiving the
// expiring slice first when cold storage is configured. An archive failure
// leaves the rows in place for the next run.
func (r *Retention) Prune(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.snapshotTTL).Truncate(time.Hour)

	if r.archiver != nil {
		n, err := r.archiver.ArchiveSnapshots(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: archive snapshots: %w", err)
		}
		if n > 0 {
			r.logger.InfoContext(ctx, "snapshots archived",
				slog.Int64("count", n),
				slog.Time("cutoff", cutoff),
			)
		}
	}

	deleted, err := r.snaps.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: prune snapshots: %w", err)
	}
	if deleted > 0 {
		r.logger.InfoContext(ctx, "snapshots pruned",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

// RunPrune prunes once immediately and then hourly until the context ends.
// Failures are logged and the loop continues.
func (r *Retention) RunPrune(ctx context.Context) error {
	if err := r.Prune(ctx); err != nil {
		r.logger.ErrorContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "prune loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Prune(ctx); err != nil {
				r.logger.ErrorContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Archive ships opportunity and execution rows older than the retention
// cutoff to cold storage.
func (r *Retention) Archive(ctx context.Context) error {
	if r.archiver == nil {
		return nil
	}
	cutoff := r.now().UTC().AddDate(0, 0, -r.retentionDays)
	r.logger.InfoContext(ctx, "archive run starting",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	opps, err := r.archiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive opportunities: %w", err)
	}
	execs, err := r.archiver.ArchiveExecutions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive executions: %w", err)
	}

	r.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("opportunities", opps),
		slog.Int64("executions", execs),
	)
	return nil
}

// RunCron runs Archive on the given cron schedule until the context ends.
func (r *Retention) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.InfoContext(ctx, "archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, r.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "archive cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Archive(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
