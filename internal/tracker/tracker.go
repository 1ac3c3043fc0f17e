// Package tracker maintains arbitrage opportunity episodes over the
// cross-venue price feed.
//
// Every scan reads the freshest feed rows, computes commission-adjusted net
// margins and keeps one episode per outcome: an episode opens when the margin
// first enters the tracked band, its peak only rises while it stays inside,
// and it closes when the outcome drops out of the band or out of the feed. A
// failed feed read skips the whole cycle so an outage is never mistaken for
// every opportunity closing at once. Episodes that open above the alert
// threshold notify the operator with a one-tap execute button backed by a
// short-lived pending entry.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/metrics"
	"github.com/awestray/backlay/internal/notify"
	"github.com/awestray/backlay/internal/odds"
)

// minViablePrice rejects placeholder quotes; feeds use 1.0 or 1.01 for "no
// price".
const minViablePrice = 1.01

// executeButtonLabel is the inline button text on opportunity alerts.
const executeButtonLabel = "⚡ EXECUTE ARB"

// Scan cycle outcomes recorded in metrics.
const (
	scanOK    = "ok"
	scanError = "error"
)

// Config holds the detection band and alerting knobs. Margins are fractions
// of 1, so 0.005 means 0.5%.
type Config struct {
	Commission  float64
	MinMargin   float64
	MaxMargin   float64
	AlertMargin float64
	// MinVolume is the minimum exchange matched volume for an alert. Thin
	// markets are still tracked, just not pushed at the operator.
	MinVolume     float64
	MaxQuoteAge   time.Duration
	ScanInterval  time.Duration
	AlertCooldown time.Duration
	// PendingTTL bounds how long an alerted opportunity stays triggerable.
	PendingTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Commission == 0 {
		c.Commission = 0.02
	}
	if c.MinMargin == 0 {
		c.MinMargin = 0.001
	}
	if c.MaxMargin == 0 {
		c.MaxMargin = 0.05
	}
	if c.AlertMargin == 0 {
		c.AlertMargin = 0.005
	}
	if c.MinVolume == 0 {
		c.MinVolume = 100
	}
	if c.MaxQuoteAge == 0 {
		c.MaxQuoteAge = 60 * time.Second
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = 15 * time.Second
	}
	if c.AlertCooldown == 0 {
		c.AlertCooldown = 10 * time.Minute
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = 60 * time.Second
	}
	return c
}

// candidate is one feed row whose margin landed inside the tracked band.
type candidate struct {
	row    domain.PricedOutcome
	margin float64
}

// alertJob carries everything needed to alert on a newly opened episode after
// the lifecycle lock is released.
type alertJob struct {
	id     string
	row    domain.PricedOutcome
	margin float64
}

// Tracker runs the scan loop and owns the open-episode state.
type Tracker struct {
	feed     domain.FeedStore
	opps     domain.OpportunityStore
	pending  domain.PendingCache
	cooldown domain.CooldownGate
	notifier *notify.Notifier
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	open map[domain.OutcomeKey]*domain.Opportunity
}

// New creates a Tracker with all required dependencies.
func New(
	feed domain.FeedStore,
	opps domain.OpportunityStore,
	pending domain.PendingCache,
	cooldown domain.CooldownGate,
	notifier *notify.Notifier,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		feed:     feed,
		opps:     opps,
		pending:  pending,
		cooldown: cooldown,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   logger.With(slog.String("component", "tracker")),
		now:      time.Now,
		open:     make(map[domain.OutcomeKey]*domain.Opportunity),
	}
}

// Run scans immediately and then on every tick until the context is
// cancelled. Cycle errors are logged and the loop keeps going.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("tracker started",
		slog.Float64("min_margin", t.cfg.MinMargin),
		slog.Float64("max_margin", t.cfg.MaxMargin),
		slog.Duration("interval", t.cfg.ScanInterval),
	)
	defer t.logger.Info("tracker stopped")

	ticker := time.NewTicker(t.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if err := t.RunOnce(ctx); err != nil {
			t.logger.WarnContext(ctx, "scan cycle failed, open episodes kept",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scan cycle: read the feed, fold in-band rows into
// episodes, close episodes whose outcome disappeared, and alert on notable
// new ones.
func (t *Tracker) RunOnce(ctx context.Context) error {
	started := t.now()

	rows, err := t.feed.ListActive(ctx)
	if err != nil {
		// Skip the cycle outright: closing episodes on a feed outage would
		// record a mass disappearance that never happened.
		t.metrics.RecordScan(scanError, t.now().Sub(started).Seconds())
		return fmt.Errorf("tracker: list feed: %w", err)
	}

	now := t.now()
	cands := t.scan(rows, now)

	var alerts []alertJob
	t.mu.Lock()
	seen := make(map[domain.OutcomeKey]bool, len(cands))
	for _, c := range cands {
		seen[c.row.Key] = true

		if ep, ok := t.open[c.row.Key]; ok {
			ep.ObserveMargin(c.margin, c.row.BackPrice, c.row.LayPrice, now)
			continue
		}

		ep := &domain.Opportunity{
			ID:            uuid.NewString(),
			Key:           c.row.Key,
			Sport:         c.row.Sport,
			Event:         c.row.Event,
			Runner:        c.row.Runner,
			BackPrice:     c.row.BackPrice,
			LayPrice:      c.row.LayPrice,
			OpenMargin:    c.margin,
			PeakMargin:    c.margin,
			PeakBackPrice: c.row.BackPrice,
			PeakLayPrice:  c.row.LayPrice,
			OpenedAt:      now,
			LastSeen:      now,
		}
		t.open[c.row.Key] = ep

		if err := t.opps.Insert(ctx, *ep); err != nil {
			// Tracking continues in memory; only history is missing the row.
			t.logger.ErrorContext(ctx, "opportunity insert failed",
				slog.String("id", ep.ID),
				slog.String("error", err.Error()),
			)
		}
		t.logger.InfoContext(ctx, "opportunity opened",
			slog.String("runner", ep.Runner),
			slog.String("event", ep.Event),
			slog.Float64("back", ep.BackPrice),
			slog.Float64("lay", ep.LayPrice),
			slog.Float64("margin_pct", c.margin*100),
			slog.Float64("volume", c.row.TotalMatched),
		)
		t.metrics.RecordOpportunityOpened(ep.Sport, c.margin)

		if c.margin >= t.cfg.AlertMargin && c.row.TotalMatched >= t.cfg.MinVolume {
			alerts = append(alerts, alertJob{id: ep.ID, row: c.row, margin: c.margin})
		}
	}

	for key, ep := range t.open {
		if seen[key] {
			continue
		}
		delete(t.open, key)
		ep.Close(now)
		if err := t.opps.MarkClosed(ctx, *ep); err != nil {
			t.logger.ErrorContext(ctx, "opportunity close failed",
				slog.String("id", ep.ID),
				slog.String("error", err.Error()),
			)
		}
		t.logger.InfoContext(ctx, "opportunity closed",
			slog.String("runner", ep.Runner),
			slog.Duration("duration", ep.Duration()),
			slog.Float64("peak_margin_pct", ep.PeakMargin*100),
		)
		t.metrics.RecordOpportunityClosed(ep.Duration().Seconds())
	}
	openCount := len(t.open)
	t.mu.Unlock()

	for _, job := range alerts {
		t.alert(ctx, job)
	}

	t.metrics.RecordScan(scanOK, t.now().Sub(started).Seconds())
	t.metrics.SetTracked(len(rows), openCount)
	return nil
}

// OpenCount returns the number of currently open episodes.
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// scan filters the feed rows down to in-band candidates, best margin first.
func (t *Tracker) scan(rows []domain.PricedOutcome, now time.Time) []candidate {
	var cands []candidate
	for _, row := range rows {
		if row.BackPrice <= minViablePrice || row.LayPrice <= minViablePrice {
			continue
		}
		// A row without a timestamp ages as infinitely stale.
		if row.Stale(now, t.cfg.MaxQuoteAge) {
			continue
		}
		margin := odds.NetMargin(row.BackPrice, row.LayPrice, t.cfg.Commission)
		if margin < t.cfg.MinMargin || margin > t.cfg.MaxMargin {
			continue
		}
		cands = append(cands, candidate{row: row, margin: margin})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].margin > cands[j].margin })
	return cands
}

// alert registers the execution context and pushes the opportunity at the
// operator. The cooldown gate keeps a flapping outcome from re-alerting every
// time it reopens.
func (t *Tracker) alert(ctx context.Context, job alertJob) {
	allowed, err := t.cooldown.Allow(ctx, job.row.Key.String(), t.cfg.AlertCooldown)
	if err != nil {
		// A cache blip must not mute the system.
		t.logger.WarnContext(ctx, "alert cooldown check failed",
			slog.String("key", job.row.Key.String()),
			slog.String("error", err.Error()),
		)
		allowed = true
	}
	if !allowed {
		return
	}

	ec := domain.ExecutionContext{
		ID:             job.id,
		Key:            job.row.Key,
		Sport:          job.row.Sport,
		Event:          job.row.Event,
		Runner:         job.row.Runner,
		MarketID:       job.row.MarketID,
		SelectionID:    job.row.SelectionID,
		Back:           job.row.Back,
		ObservedBack:   job.row.BackPrice,
		ObservedLay:    job.row.LayPrice,
		ObservedMargin: job.margin,
		CreatedAt:      t.now(),
	}

	withButton := true
	if err := t.pending.Put(ctx, ec, t.cfg.PendingTTL); err != nil {
		t.logger.WarnContext(ctx, "pending registration failed, alerting without button",
			slog.String("id", ec.ID),
			slog.String("error", err.Error()),
		)
		withButton = false
	}

	title, body := t.alertMessage(job.row, job.margin)
	t.metrics.RecordAlert(notify.EventOpportunity)

	if withButton {
		err = t.notifier.NotifyAction(ctx, notify.EventOpportunity, title, body,
			executeButtonLabel, notify.ExecCallbackData(ec.ID))
	} else {
		err = t.notifier.Notify(ctx, notify.EventOpportunity, title, body)
	}
	if err != nil {
		t.logger.WarnContext(ctx, "opportunity alert failed",
			slog.String("id", ec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// alertMessage renders the operator alert. Stakes are quoted per £100 backed
// so margins read the same regardless of the configured execution stake.
func (t *Tracker) alertMessage(row domain.PricedOutcome, margin float64) (title, body string) {
	bookie := row.Back.Bookie
	if bookie == "" {
		bookie = "Book"
	}
	layStake := odds.HedgeStake(100, row.BackPrice, row.LayPrice, t.cfg.Commission)

	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s\n\n", row.Event)
	fmt.Fprintf(&b, "📌 %s Back: <b>%.3f</b>\n", bookie, row.BackPrice)
	fmt.Fprintf(&b, "🔄 BF Lay: <b>%.3f</b>\n", row.LayPrice)
	fmt.Fprintf(&b, "📊 Margin: <b>%.2f%%</b> (£%.2f/£100)\n", margin*100, margin*100)
	fmt.Fprintf(&b, "💷 Lay £%.2f per £100 back\n", layStake)
	fmt.Fprintf(&b, "💰 BF Vol: %s\n", formatGBP(row.TotalMatched))
	fmt.Fprintf(&b, "⏰ %s", formatKickoff(row.StartTime))

	return fmt.Sprintf("💰 ARB: %s", row.Runner), b.String()
}

func formatKickoff(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	return t.UTC().Format("02 Jan 15:04")
}

// formatGBP renders a volume figure as "£12,450".
func formatGBP(v float64) string {
	s := strconv.FormatInt(int64(math.Round(v)), 10)
	if len(s) <= 3 {
		return "£" + s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return "£" + b.String()
}
