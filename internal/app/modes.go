package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/executor"
	"github.com/awestray/backlay/internal/notify"
	"github.com/awestray/backlay/internal/pipeline"
	"github.com/awestray/backlay/internal/platform/asianodds"
	"github.com/awestray/backlay/internal/platform/betfair"
	"github.com/awestray/backlay/internal/server"
	"github.com/awestray/backlay/internal/server/handler"
	"github.com/awestray/backlay/internal/server/ws"
	"github.com/awestray/backlay/internal/steam"
	"github.com/awestray/backlay/internal/tracker"
)

// TrackMode runs the live side: venue sessions, the cross-venue feed ingest,
// the opportunity tracker, the daily reporter, the operator bot, and the API
// server when enabled.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode")

	tasks, err := a.liveTasks(ctx, deps)
	if err != nil {
		return fmt.Errorf("track mode: %w", err)
	}
	return pipeline.NewOrchestrator(a.logger, tasks...).Run(ctx)
}

// ServeMode runs only the read-side API over data another process writes.
// Trigger endpoints that need a live pipeline answer 501.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("serve mode: server.enabled is false, nothing to run")
	}
	return pipeline.NewOrchestrator(a.logger, a.serverTasks(deps, nil, nil)...).Run(ctx)
}

// FullMode is track mode plus snapshot retention and cold-storage archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	tasks, err := a.liveTasks(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	// Retention runs even without object storage; snapshots are then pruned
	// without an archive pass.
	ret := pipeline.NewRetention(
		deps.SnapshotStore,
		deps.Archiver,
		a.cfg.Feed.SnapshotRetention.Duration,
		a.cfg.Archive.RetentionDays,
		a.logger,
	)
	tasks = append(tasks, pipeline.Task{Name: "retention", Run: ret.RunPrune})
	if a.cfg.Archive.Enabled {
		cron := a.cfg.Archive.Cron
		tasks = append(tasks, pipeline.Task{Name: "archive_cron", Run: func(ctx context.Context) error {
			return ret.RunCron(ctx, cron)
		}})
	}

	return pipeline.NewOrchestrator(a.logger, tasks...).Run(ctx)
}

// liveTasks assembles the goroutines track and full mode share. Venue logins
// happen here, before any task starts, so a bad credential fails the boot
// instead of surfacing as a half-running pipeline.
func (a *App) liveTasks(ctx context.Context, deps *Dependencies) ([]pipeline.Task, error) {
	if deps.Exchange == nil {
		return nil, fmt.Errorf("exchange client is not wired")
	}
	if err := deps.Exchange.Login(ctx); err != nil {
		return nil, fmt.Errorf("exchange login: %w", err)
	}
	if deps.Sportsbook != nil {
		if err := deps.Sportsbook.Login(ctx); err != nil {
			return nil, fmt.Errorf("sportsbook login: %w", err)
		}
	}

	var tasks []pipeline.Task

	tasks = append(tasks, pipeline.Task{Name: "exchange_keepalive", Run: func(ctx context.Context) error {
		return deps.Exchange.RunKeepAlive(ctx, a.cfg.Betfair.KeepAliveInterval.Duration)
	}})
	if deps.Sportsbook != nil {
		tasks = append(tasks, pipeline.Task{Name: "sportsbook_keepalive", Run: func(ctx context.Context) error {
			return deps.Sportsbook.RunKeepAlive(ctx, a.cfg.AsianOdds.KeepAliveInterval.Duration)
		}})
	} else {
		a.logger.Warn("sportsbook disabled; feed will carry exchange prices only")
	}

	var detector *steam.Detector
	if a.cfg.Steam.Enabled {
		detector = steam.NewDetector(steam.Config{
			Window:       a.cfg.Steam.Window.Duration,
			MinShift:     a.cfg.Steam.MinShift,
			Cooldown:     a.cfg.Steam.Cooldown.Duration,
			ReAlertDelta: a.cfg.Steam.ReAlertDelta,
			MinPrice:     a.cfg.Steam.MinPrice,
			MaxPrice:     a.cfg.Steam.MaxPrice,
		})
	}

	var sportsbook pipeline.SportsbookSource
	if deps.Sportsbook != nil {
		sportsbook = deps.Sportsbook
	}
	ing := pipeline.NewIngestor(
		deps.Exchange,
		sportsbook,
		deps.FeedStore,
		deps.SnapshotStore,
		detector,
		deps.Notifier,
		pipeline.IngestConfig{
			Sports:             a.cfg.Feed.Sports,
			MaxMarketsPerSport: a.cfg.Feed.MaxMarketsPerSport,
			PollInterval:       a.cfg.Feed.PollInterval.Duration,
			InPlayPollInterval: a.cfg.Feed.InPlayPollInterval.Duration,
			SnapshotInterval:   a.cfg.Feed.SnapshotInterval.Duration,
			OddsFormat:         a.cfg.AsianOdds.OddsFormat,
			Bookie:             a.cfg.AsianOdds.Bookie,
		},
		deps.Metrics,
		a.logger,
	)
	tasks = append(tasks, pipeline.Task{Name: "ingest", Run: ing.RunLoop})

	trk := tracker.New(
		deps.FeedStore,
		deps.OpportunityStore,
		deps.PendingCache,
		deps.CooldownGate,
		deps.Notifier,
		tracker.Config{
			Commission:    a.cfg.Tracker.Commission,
			MinMargin:     a.cfg.Tracker.MinMargin,
			MaxMargin:     a.cfg.Tracker.MaxMargin,
			AlertMargin:   a.cfg.Tracker.AlertMargin,
			MinVolume:     a.cfg.Tracker.MinVolume,
			MaxQuoteAge:   a.cfg.Tracker.MaxQuoteAge.Duration,
			ScanInterval:  a.cfg.Tracker.ScanInterval.Duration,
			AlertCooldown: a.cfg.Tracker.AlertCooldown.Duration,
			PendingTTL:    a.cfg.Tracker.PendingTTL.Duration,
		},
		deps.Metrics,
		a.logger,
	)
	tasks = append(tasks, pipeline.Task{Name: "tracker", Run: trk.Run})

	var reporter *tracker.Reporter
	if a.cfg.Report.Enabled {
		reporter = tracker.NewReporter(
			deps.OpportunityStore,
			deps.Notifier,
			a.cfg.Report.Window.Duration,
			a.cfg.Report.TopN,
			a.logger,
		)
		tasks = append(tasks, pipeline.Task{Name: "reporter", Run: reporter.Run})
	}

	exec := a.buildExecutor(deps)

	if deps.Telegram != nil {
		bot := notify.NewOperatorBot(
			deps.Telegram.Bot(),
			a.cfg.Notify.TelegramChatID,
			a.operatorHandlers(deps, exec, reporter),
			a.logger,
		)
		tasks = append(tasks, pipeline.Task{Name: "operator_bot", Run: bot.Run})
	} else {
		a.logger.Warn("telegram not configured; executions cannot be triggered")
	}

	if a.cfg.Server.Enabled {
		tasks = append(tasks, a.serverTasks(deps, ing, reporter)...)
	}

	return tasks, nil
}

// buildExecutor wires the two-leg saga. Without the sportsbook there is no
// back leg to place, so triggers are rejected instead of dry-running against
// a venue that cannot exist.
func (a *App) buildExecutor(deps *Dependencies) *executor.Executor {
	if deps.Sportsbook == nil || deps.Exchange == nil {
		return nil
	}
	back := asianodds.NewVenue(deps.Sportsbook, a.cfg.AsianOdds.OddsFormat)
	lay := betfair.NewVenue(deps.Exchange)
	return executor.New(
		back,
		lay,
		deps.ExecutionStore,
		deps.LockManager,
		deps.Notifier,
		executor.Config{
			Enabled:         a.cfg.Executor.Enabled,
			BackStake:       a.cfg.Executor.BackStake,
			Commission:      a.cfg.Tracker.Commission,
			MinMargin:       a.cfg.Executor.MinMargin,
			SlippageBuffer:  a.cfg.Executor.SlippageBuffer,
			LiquidityBuffer: a.cfg.Executor.LiquidityBuffer,
			VerifyTimeout:   a.cfg.Executor.VerifyTimeout.Duration,
			VerifyInterval:  a.cfg.Executor.VerifyInterval.Duration,
			LockTTL:         a.cfg.Executor.LockTTL.Duration,
			ChurnGoal:       a.cfg.Executor.ChurnGoal,
		},
		deps.Metrics,
		a.logger,
	)
}

// operatorHandlers binds the chat commands to the live components. exec and
// reporter may be nil; the bound commands then report themselves unavailable.
func (a *App) operatorHandlers(deps *Dependencies, exec *executor.Executor, reporter *tracker.Reporter) notify.OperatorHandlers {
	h := notify.OperatorHandlers{
		Execute: func(ctx context.Context, pendingID string) error {
			if exec == nil {
				return fmt.Errorf("execution is unavailable: sportsbook venue is not wired")
			}
			ec, err := deps.PendingCache.Take(ctx, pendingID)
			if err != nil {
				return err
			}
			_, err = exec.Execute(ctx, ec)
			if errors.Is(err, domain.ErrLockHeld) {
				// The executor already told the operator it is busy.
				return nil
			}
			return err
		},
		Status: func(ctx context.Context) (string, error) {
			return a.statusText(ctx, deps)
		},
	}
	if reporter != nil {
		h.Report = reporter.Manual
	}
	return h
}

// statusText renders the /status reply.
func (a *App) statusText(ctx context.Context, deps *Dependencies) (string, error) {
	rows, err := deps.FeedStore.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("feed count: %w", err)
	}
	inPlay, err := deps.FeedStore.HasInPlay(ctx)
	if err != nil {
		return "", fmt.Errorf("in-play check: %w", err)
	}
	open, err := deps.OpportunityStore.CountOpen(ctx)
	if err != nil {
		return "", fmt.Errorf("open count: %w", err)
	}
	month := domain.MonthKeyFor(time.Now())
	churn, err := deps.ExecutionStore.MonthlyChurn(ctx, month)
	if err != nil {
		return "", fmt.Errorf("monthly churn: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Status</b> mode=%s uptime=%s\n", a.cfg.Mode, time.Since(a.startedAt).Round(time.Second))
	fmt.Fprintf(&b, "Feed rows: %d", rows)
	if inPlay {
		b.WriteString(" (in-play)")
	}
	fmt.Fprintf(&b, "\nOpen opportunities: %d\n", open)
	fmt.Fprintf(&b, "Churn %s: %.2f / %.0f", month, churn, a.cfg.Executor.ChurnGoal)
	return b.String(), nil
}

// serverTasks builds the API server and WebSocket hub tasks. ing and reporter
// may be nil; the matching trigger endpoints then answer 501.
func (a *App) serverTasks(deps *Dependencies, ing *pipeline.Ingestor, reporter *tracker.Reporter) []pipeline.Task {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: a.startedAt,
	})

	var kicker handler.Kicker
	if ing != nil {
		kicker = ing
	}
	reportH := handler.NewReportHandler(deps.OpportunityStore, a.logger)
	if reporter != nil {
		reportH = reportH.WithReporter(reporter)
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, a.startedAt, deps.OpportunityStore, deps.FeedStore, a.logger),
		Feed:          handler.NewFeedHandler(deps.FeedStore, kicker, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore, a.logger),
		Executions:    handler.NewExecutionHandler(deps.ExecutionStore, a.logger),
		Report:        reportH,
		Snapshots:     handler.NewSnapshotHandler(deps.SnapshotStore, a.logger),
		Audit:         handler.NewAuditHandler(deps.AuditStore, a.logger),
		Archives:      handler.NewArchiveHandler(deps.BlobReader, a.logger),
		Alerts:        handler.NewAlertHandler(deps.SignalBus, a.logger),
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		handlers,
		hub,
		deps.RateLimiter,
		deps.Metrics.Registry(),
		a.logger,
	)

	return []pipeline.Task{
		{Name: "ws_hub", Run: hub.Run},
		{Name: "http_server", Run: func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case <-ctx.Done():
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutCtx); err != nil {
					return err
				}
				<-errCh
				return ctx.Err()
			case err := <-errCh:
				return err
			}
		}},
	}
}
