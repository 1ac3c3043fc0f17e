// Package executor runs the two-leg execution saga: one operator-approved
// opportunity, backed at the sportsbook and hedged on the exchange through a
// strictly ordered pipeline. A distributed lock keeps at most one attempt in
// flight; a second trigger fails fast without touching either venue. Every
// attempt that passes the busy gate ends in exactly one persisted record and
// one operator notification, in that order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/metrics"
	"github.com/awestray/backlay/internal/notify"
	"github.com/awestray/backlay/internal/odds"
)

// execLockKey serializes attempts across every trigger path and every process
// sharing the Redis instance.
const execLockKey = "execution"

// minViableBackPrice rejects placeholder quotes the back venue returns for
// outcomes it is not really pricing.
const minViableBackPrice = 1.01

// Config holds the saga tunables. Margins and buffers are fractions of 1.
type Config struct {
	// Enabled is the kill switch. When false every trigger records a dry run
	// and stops before the first venue call.
	Enabled bool

	BackStake  float64
	Commission float64

	// MinMargin plus SlippageBuffer is the floor the freshly revalidated
	// margin must clear before any money moves.
	MinMargin      float64
	SlippageBuffer float64

	// LiquidityBuffer keeps the hedge below the visible lay depth when the
	// back stake has to be scaled down to fit it.
	LiquidityBuffer float64

	VerifyTimeout  time.Duration
	VerifyInterval time.Duration
	LockTTL        time.Duration

	ChurnGoal float64
}

func (c Config) withDefaults() Config {
	if c.BackStake <= 0 {
		c.BackStake = 5
	}
	if c.Commission <= 0 {
		c.Commission = 0.02
	}
	if c.MinMargin <= 0 {
		c.MinMargin = 0.005
	}
	if c.SlippageBuffer <= 0 {
		c.SlippageBuffer = 0.005
	}
	if c.LiquidityBuffer <= 0 {
		c.LiquidityBuffer = 0.05
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 3 * time.Second
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = 500 * time.Millisecond
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.ChurnGoal <= 0 {
		c.ChurnGoal = 5000
	}
	return c
}

// Executor coordinates one execution attempt at a time across both venues.
type Executor struct {
	back     domain.BackVenue
	lay      domain.LayVenue
	execs    domain.ExecutionStore
	locks    domain.LockManager
	notifier *notify.Notifier
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger

	now func() time.Time
}

// New creates an Executor. Venue clients are only touched once an attempt
// holds the lock and has passed the kill switch.
func New(
	back domain.BackVenue,
	lay domain.LayVenue,
	execs domain.ExecutionStore,
	locks domain.LockManager,
	notifier *notify.Notifier,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		back:     back,
		lay:      lay,
		execs:    execs,
		locks:    locks,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   logger.With(slog.String("component", "executor")),
		now:      time.Now,
	}
}

// Execute runs one attempt for an operator-approved context and returns the
// terminal record. While another attempt holds the lock it notifies the
// operator, makes zero venue calls, writes no record and returns
// domain.ErrLockHeld; callers that reply in-channel themselves can treat that
// error as already handled.
func (e *Executor) Execute(ctx context.Context, ec domain.ExecutionContext) (domain.ExecutionRecord, error) {
	unlock, err := e.locks.Acquire(ctx, execLockKey, e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.WarnContext(ctx, "execution busy",
				slog.String("pending_id", ec.ID),
				slog.String("runner", ec.Runner),
			)
			e.notify(ctx, notify.EventExecution, "⚠️ Execution busy",
				"Another execution is in progress. Try again.")
			return domain.ExecutionRecord{}, domain.ErrLockHeld
		}
		return domain.ExecutionRecord{}, fmt.Errorf("executor: acquire lock: %w", err)
	}
	defer unlock()

	started := e.now()
	rec := e.run(ctx, ec)
	e.metrics.RecordExecution(string(rec.Status), e.now().Sub(started).Seconds())
	return rec, nil
}

// run walks the pipeline in strict order. It always returns a terminal
// record; every return path has already persisted it and told the operator.
func (e *Executor) run(ctx context.Context, ec domain.ExecutionContext) domain.ExecutionRecord {
	rec := domain.ExecutionRecord{
		ID:        uuid.NewString(),
		Key:       ec.Key,
		Sport:     ec.Sport,
		Event:     ec.Event,
		Runner:    ec.Runner,
		MonthKey:  domain.MonthKeyFor(e.now()),
		CreatedAt: e.now().UTC(),
	}

	log := e.logger.With(
		slog.String("execution_id", rec.ID),
		slog.String("runner", ec.Runner),
		slog.String("market_id", ec.MarketID),
	)

	// Kill switch. Observed prices are recorded so dry runs stay auditable.
	if !e.cfg.Enabled {
		rec.Status = domain.ExecStatusDryRun
		rec.Reason = "execution disabled"
		rec.BackPrice = ec.ObservedBack
		rec.LayPrice = ec.ObservedLay
		rec.Margin = ec.ObservedMargin
		log.InfoContext(ctx, "dry run, execution disabled",
			slog.Float64("back", ec.ObservedBack),
			slog.Float64("lay", ec.ObservedLay),
		)
		return e.finish(ctx, log, rec, "🔒 EXEC DISABLED (dry run)", fmt.Sprintf(
			"Would execute: <b>%s</b>\n%s\n\nBack @ %.3f\nLay @ %.3f\nStake: €%.2f",
			ec.Runner, ec.Event, ec.ObservedBack, ec.ObservedLay, e.cfg.BackStake))
	}

	log.InfoContext(ctx, "execution started",
		slog.Float64("observed_back", ec.ObservedBack),
		slog.Float64("observed_lay", ec.ObservedLay),
		slog.Float64("observed_margin", ec.ObservedMargin),
	)
	e.notify(ctx, notify.EventExecution, "⚡ Executing: "+ec.Runner,
		ec.Event+"\nRevalidating both venues...")

	// Lay revalidation. The observed lay price may be a minute old; nothing
	// proceeds on it.
	state, err := e.lay.RevalidateMarket(ctx, ec)
	if err != nil {
		reason := "lay market not found"
		if !errors.Is(err, domain.ErrMarketNotFound) {
			reason = fmt.Sprintf("lay revalidation failed: %v", err)
		}
		return e.abort(ctx, log, rec, domain.ExecStatusMarketGone, reason, fmt.Sprintf(
			"<b>%s</b>\nMarket %s: %s\nNo bets placed.", ec.Runner, ec.MarketID, reason))
	}

	if state.InPlay {
		return e.abort(ctx, log, rec, domain.ExecStatusInPlay, "market in-play", fmt.Sprintf(
			"<b>%s</b> went in-play before placement.\nNo bets placed.", ec.Runner))
	}
	if state.Status != "OPEN" {
		return e.abort(ctx, log, rec, domain.ExecStatusSuspended, "market status "+state.Status, fmt.Sprintf(
			"<b>%s</b>\nLay market status is %s, not OPEN.\nNo bets placed.", ec.Runner, state.Status))
	}
	if !state.RunnerActive {
		return e.abort(ctx, log, rec, domain.ExecStatusRunnerGone, "runner not active", fmt.Sprintf(
			"<b>%s</b> is no longer active on the lay market.\nNo bets placed.", ec.Runner))
	}
	if state.BestLayPrice <= 0 || state.BestLaySize <= 0 {
		return e.abort(ctx, log, rec, domain.ExecStatusNoLiquidity, "no lay liquidity", fmt.Sprintf(
			"<b>%s</b>\nNothing available to lay.\nNo bets placed.", ec.Runner))
	}

	log.InfoContext(ctx, "lay market revalidated",
		slog.Float64("lay_price", state.BestLayPrice),
		slog.Float64("lay_size", state.BestLaySize),
	)

	// Back placement info: the live price and the stake bounds the venue
	// will accept right now.
	info, err := e.back.RevalidatePrice(ctx, ec)
	if err != nil {
		return e.abort(ctx, log, rec, domain.ExecStatusQuoteFailed,
			fmt.Sprintf("back quote failed: %v", err), fmt.Sprintf(
				"<b>%s</b>\nBack venue quote failed: %v\nNo bets placed.", ec.Runner, err))
	}
	if info.Price <= minViableBackPrice {
		return e.abort(ctx, log, rec, domain.ExecStatusQuoteFailed,
			fmt.Sprintf("implausible back price %.3f", info.Price), fmt.Sprintf(
				"<b>%s</b>\nBack venue returned price %.3f.\nNo bets placed.", ec.Runner, info.Price))
	}

	log.InfoContext(ctx, "back placement info",
		slog.Float64("back_price", info.Price),
		slog.Float64("min_stake", info.MinStake),
		slog.Float64("max_stake", info.MaxStake),
	)

	// Margin re-check on the fresh prices only.
	margin := odds.NetMargin(info.Price, state.BestLayPrice, e.cfg.Commission)
	floor := e.cfg.MinMargin + e.cfg.SlippageBuffer

	rec.BackPrice = info.Price
	rec.LayPrice = state.BestLayPrice
	rec.Margin = margin

	if margin < floor {
		return e.abort(ctx, log, rec, domain.ExecStatusMarginGone,
			fmt.Sprintf("margin %.2f%% below floor %.2f%%", margin*100, floor*100), fmt.Sprintf(
				"<b>%s</b>\nMargin too thin: %.2f%% (need %.2f%%)\nBack %.3f, lay %.3f\nNo bets placed.",
				ec.Runner, margin*100, floor*100, info.Price, state.BestLayPrice))
	}

	// Stake sizing against the venue bounds and the visible lay depth.
	plan := odds.PlanStakes(e.cfg.BackStake, info.MinStake, info.MaxStake,
		info.Price, state.BestLayPrice, state.BestLaySize, e.cfg.Commission, e.cfg.LiquidityBuffer)
	expectedProfit := margin * plan.BackStake

	rec.BackStake = plan.BackStake
	rec.ExpectedProfit = expectedProfit

	if plan.Reduced {
		log.InfoContext(ctx, "back stake reduced to fit lay depth",
			slog.Float64("back_stake", plan.BackStake),
			slog.Float64("lay_available", state.BestLaySize),
		)
	}
	log.InfoContext(ctx, "stakes sized",
		slog.Float64("margin", margin),
		slog.Float64("back_stake", plan.BackStake),
		slog.Float64("lay_stake", plan.LayStake),
		slog.Float64("expected_profit", expectedProfit),
	)

	// Back leg. From here on an abort can leave real exposure behind.
	ref, err := e.back.PlaceBackBet(ctx, ec, info.Price, plan.BackStake)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPlacementRejected):
			return e.abort(ctx, log, rec, domain.ExecStatusBackRejected,
				fmt.Sprintf("back placement rejected: %v", err), fmt.Sprintf(
					"<b>%s</b>\nBack venue rejected the bet: %v\nNo exposure.", ec.Runner, err))
		case errors.Is(err, domain.ErrNoReference):
			return e.escalate(ctx, log, rec, domain.ExecStatusBackNoRef,
				"back bet accepted without reference", "🚨 CHECK MANUALLY", fmt.Sprintf(
					"Back bet for <b>%s</b> may have been accepted but no reference came back.\n"+
						"Check the back venue before doing anything else.\nIntended: €%.2f @ %.3f",
					ec.Runner, plan.BackStake, info.Price))
		default:
			return e.escalate(ctx, log, rec, domain.ExecStatusBackError,
				fmt.Sprintf("back placement error: %v", err), "🚨 CHECK MANUALLY", fmt.Sprintf(
					"Back bet call for <b>%s</b> failed mid-flight: %v\n"+
						"The bet may or may not exist. Check the back venue before retrying.\nIntended: €%.2f @ %.3f",
					ec.Runner, err, plan.BackStake, info.Price))
		}
	}
	rec.BackRef = ref
	log.InfoContext(ctx, "back bet placed",
		slog.String("back_ref", ref),
		slog.Float64("stake", plan.BackStake),
		slog.Float64("price", info.Price),
	)

	// Confirmation poll, then the hedge.
	conf, confirmed := e.awaitConfirmation(ctx, log, ref)
	if !confirmed {
		return e.escalate(ctx, log, rec, domain.ExecStatusConfirmTimeout,
			fmt.Sprintf("no terminal confirmation within %s", e.cfg.VerifyTimeout), "🚨 CHECK MANUALLY", fmt.Sprintf(
				"Back bet ref <b>%s</b> did not confirm within %s.\n"+
					"DO NOT place the lay until the back bet is confirmed.\n\n<b>%s</b> | %s",
				ref, e.cfg.VerifyTimeout, ec.Runner, ec.Event))
	}
	if conf.Status != domain.BetConfirmed {
		reason := "back bet " + string(conf.Status)
		if conf.Detail != "" {
			reason += ": " + conf.Detail
		}
		return e.abort(ctx, log, rec, domain.ExecStatusBackVoided, reason, fmt.Sprintf(
			"<b>%s</b>\nBack bet %s. No lay placed, no exposure remains.", ec.Runner, string(conf.Status)))
	}

	confirmedStake := conf.ConfirmedStake
	if confirmedStake <= 0 {
		confirmedStake = plan.BackStake
	}
	rec.BackStake = confirmedStake
	log.InfoContext(ctx, "back bet confirmed",
		slog.String("back_ref", ref),
		slog.Float64("confirmed_stake", confirmedStake),
	)

	// The hedge is sized from the confirmed stake, which can differ from the
	// requested one.
	layStake := odds.RoundStake(odds.HedgeStake(confirmedStake, info.Price, state.BestLayPrice, e.cfg.Commission))
	rec.LayStake = layStake

	layBetID, err := e.lay.PlaceLayBet(ctx, ec, state.BestLayPrice, layStake)
	if err != nil {
		return e.escalate(ctx, log, rec, domain.ExecStatusLayFailed,
			fmt.Sprintf("lay placement failed: %v", err), "🚨 HEDGE MANUALLY", fmt.Sprintf(
				"Back bet CONFIRMED (ref %s, €%.2f @ %.3f) but the lay failed: %v\n\n"+
					"<b>Lay %s manually on the exchange now.</b>\nMarket: %s\nLay price ~%.3f, stake ~€%.2f",
				ref, confirmedStake, info.Price, err, ec.Runner, ec.MarketID, state.BestLayPrice, layStake))
	}

	rec.Status = domain.ExecStatusExecuted
	rec.LayBetID = layBetID

	log.InfoContext(ctx, "execution complete",
		slog.String("back_ref", ref),
		slog.String("lay_bet_id", layBetID),
		slog.Float64("back_stake", confirmedStake),
		slog.Float64("lay_stake", layStake),
		slog.Float64("margin", margin),
		slog.Float64("expected_profit", expectedProfit),
	)

	if err := e.execs.Insert(ctx, rec); err != nil {
		log.ErrorContext(ctx, "execution record insert failed",
			slog.String("error", err.Error()),
		)
	}

	churnLine := ""
	if total, err := e.execs.MonthlyChurn(ctx, rec.MonthKey); err != nil {
		log.WarnContext(ctx, "monthly churn query failed",
			slog.String("error", err.Error()),
		)
	} else {
		e.metrics.SetMonthlyChurn(total)
		churnLine = fmt.Sprintf("\n\n📈 Monthly churn: €%.0f / €%.0f", total, e.cfg.ChurnGoal)
	}

	e.notify(ctx, notify.EventExecution, "✅ ARB EXECUTED", fmt.Sprintf(
		"<b>%s</b>\n%s\n\n📌 Back: €%.2f @ %.3f (ref %s)\n🔄 Lay: €%.2f @ %.3f (bet %s)\n\n"+
			"📊 Margin: %.2f%%\n💰 Expected profit: €%.2f%s",
		ec.Runner, ec.Event,
		confirmedStake, info.Price, ref,
		layStake, state.BestLayPrice, layBetID,
		margin*100, expectedProfit, churnLine))

	return rec
}

// awaitConfirmation polls the back venue until the bet reaches a terminal
// state or the verify window closes. Poll errors are logged and polling
// continues; only the window gives up.
func (e *Executor) awaitConfirmation(ctx context.Context, log *slog.Logger, ref string) (domain.BetConfirmation, bool) {
	pollCtx, cancel := context.WithTimeout(ctx, e.cfg.VerifyTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.VerifyInterval)
	defer ticker.Stop()

	for {
		conf, err := e.back.PollBetStatus(pollCtx, ref)
		switch {
		case err != nil:
			log.WarnContext(ctx, "confirmation poll failed",
				slog.String("back_ref", ref),
				slog.String("error", err.Error()),
			)
		case conf.Status != domain.BetPending:
			return conf, true
		}

		select {
		case <-pollCtx.Done():
			return domain.BetConfirmation{}, false
		case <-ticker.C:
		}
	}
}

// abort finalizes a definitive no-new-exposure outcome.
func (e *Executor) abort(ctx context.Context, log *slog.Logger, rec domain.ExecutionRecord, status domain.ExecStatus, reason, message string) domain.ExecutionRecord {
	rec.Status = status
	rec.Reason = reason
	log.WarnContext(ctx, "execution aborted",
		slog.String("status", string(status)),
		slog.String("reason", reason),
	)
	return e.finish(ctx, log, rec, "❌ Execution aborted", message)
}

// escalate finalizes an outcome that may leave unhedged exposure. The title
// is the urgent headline the operator acts on.
func (e *Executor) escalate(ctx context.Context, log *slog.Logger, rec domain.ExecutionRecord, status domain.ExecStatus, reason, title, message string) domain.ExecutionRecord {
	rec.Status = status
	rec.Reason = reason
	log.ErrorContext(ctx, "execution needs manual intervention",
		slog.String("status", string(status)),
		slog.String("reason", reason),
		slog.String("back_ref", rec.BackRef),
	)
	return e.finish(ctx, log, rec, title, message)
}

// finish persists the terminal record and then notifies the operator, in that
// order: the audit row must exist even if the notification channel is down.
// When persistence fails on an ambiguous outcome the notification becomes the
// only surviving record, so the message says exactly that.
func (e *Executor) finish(ctx context.Context, log *slog.Logger, rec domain.ExecutionRecord, title, message string) domain.ExecutionRecord {
	if err := e.execs.Insert(ctx, rec); err != nil {
		log.ErrorContext(ctx, "execution record insert failed",
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()),
		)
		if rec.Status.Ambiguous() {
			message = "🚨 Audit row NOT persisted. This message is the only record.\n\n" + message
		}
	}

	event := notify.EventExecution
	if rec.Status.Ambiguous() {
		event = notify.EventEscalation
	}
	e.notify(ctx, event, title, message)
	return rec
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.ErrorContext(ctx, "notification failed",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
}
