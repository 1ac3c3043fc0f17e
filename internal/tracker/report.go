package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/notify"
)

// reportCheckInterval is how often the reporter re-checks the clock. Short
// enough that the post-midnight window cannot be stepped over.
const reportCheckInterval = 30 * time.Second

// Reporter sends the previous UTC day's opportunity summary once per day, in
// a bounded window after midnight. Missing the window skips the day; the
// report is never sent at a surprise hour.
type Reporter struct {
	opps     domain.OpportunityStore
	notifier *notify.Notifier
	window   time.Duration
	topN     int
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent time.Time
}

// NewReporter creates a Reporter. window bounds how long after UTC midnight
// the automatic report may still fire; topN caps the top-opportunities list.
func NewReporter(opps domain.OpportunityStore, notifier *notify.Notifier, window time.Duration, topN int, logger *slog.Logger) *Reporter {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if topN <= 0 {
		topN = 5
	}
	return &Reporter{
		opps:     opps,
		notifier: notifier,
		window:   window,
		topN:     topN,
		logger:   logger.With(slog.String("component", "reporter")),
		now:      time.Now,
	}
}

// Run checks the clock on a short ticker until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("daily reporter started", slog.Duration("window", r.window))
	defer r.logger.Info("daily reporter stopped")

	ticker := time.NewTicker(reportCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Maybe(ctx); err != nil {
				r.logger.WarnContext(ctx, "daily report check failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Maybe sends the previous day's report when three things line up: it has not
// been sent today, the clock is inside the post-midnight window, and the
// summary query succeeds. A failed query leaves the watermark untouched so
// the next tick retries; a failed send does not, so delivery problems can
// never turn into repeats.
func (r *Reporter) Maybe(ctx context.Context) error {
	now := r.now().UTC()
	midnight := now.Truncate(24 * time.Hour)

	r.mu.Lock()
	sentToday := !r.lastSent.Before(midnight)
	r.mu.Unlock()
	if sentToday {
		return nil
	}
	if now.Sub(midnight) >= r.window {
		return nil
	}

	day := midnight.Add(-24 * time.Hour)
	summary, err := r.opps.Summarize(ctx, day, midnight, r.topN)
	if err != nil {
		return fmt.Errorf("tracker: daily summary: %w", err)
	}

	r.mu.Lock()
	r.lastSent = now
	r.mu.Unlock()

	title, body := formatSummary(summary)
	r.logger.InfoContext(ctx, "daily report",
		slog.Time("day", day),
		slog.Int("total", summary.Total),
	)
	if err := r.notifier.Notify(ctx, notify.EventReport, title, body); err != nil {
		r.logger.ErrorContext(ctx, "daily report send failed",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Manual builds a report covering today so far. It bypasses the once-per-day
// watermark and does not advance it.
func (r *Reporter) Manual(ctx context.Context) (string, error) {
	now := r.now().UTC()
	midnight := now.Truncate(24 * time.Hour)

	summary, err := r.opps.Summarize(ctx, midnight, now, r.topN)
	if err != nil {
		return "", fmt.Errorf("tracker: manual summary: %w", err)
	}
	title, body := formatSummary(summary)
	return "<b>" + title + "</b>\n" + body, nil
}

// formatSummary renders a daily summary in the report layout.
func formatSummary(s domain.DailySummary) (title, body string) {
	title = fmt.Sprintf("📊 DAILY ARB REPORT — %s", s.Day.UTC().Format("02 Jan 2006"))
	if s.Empty() {
		return title, "No arbitrage opportunities detected."
	}

	var b strings.Builder
	b.WriteString("<b>Summary</b>\n")
	fmt.Fprintf(&b, "  Total arbs: %d\n", s.Total)
	fmt.Fprintf(&b, "  Margin: avg %.2f%% | best %.2f%% | worst %.2f%%\n",
		s.AvgPeakMargin*100, s.MaxPeakMargin*100, s.MinPeakMargin*100)
	fmt.Fprintf(&b, "  Duration: avg %s | longest %s\n\n",
		formatSeconds(s.AvgDuration), formatSeconds(s.MaxDuration))

	if len(s.BySport) > 0 {
		b.WriteString("<b>By Sport</b>\n")
		for _, sc := range s.BySport {
			fmt.Fprintf(&b, "  %s: %d arbs, avg %.2f%%\n", sc.Sport, sc.Count, sc.AvgPeakMargin*100)
		}
		b.WriteString("\n")
	}

	if len(s.Top) > 0 {
		b.WriteString("<b>Top Opportunities</b>\n")
		for _, opp := range s.Top {
			dur := "still open"
			if opp.ClosedAt != nil {
				dur = formatSeconds(opp.Duration())
			}
			fmt.Fprintf(&b, "  %s: %.3f back > %.3f lay (%.2f%%, %s)\n",
				opp.Runner, opp.BackPrice, opp.LayPrice, opp.PeakMargin*100, dur)
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func formatSeconds(d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0fs", d.Seconds())
}
