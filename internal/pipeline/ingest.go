// Package pipeline runs the background tasks that keep the system fed: the
// cross-venue market ingest, snapshot retention and cold-storage archival,
// and the orchestrator that supervises them alongside the tracker and
// reporter loops.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/metrics"
	"github.com/awestray/backlay/internal/notify"
	"github.com/awestray/backlay/internal/platform/asianodds"
	"github.com/awestray/backlay/internal/platform/betfair"
	"github.com/awestray/backlay/internal/steam"
)

// ExchangeSource is the slice of the exchange client the ingest uses.
type ExchangeSource interface {
	ListMarketCatalogue(ctx context.Context, filter betfair.MarketFilter, projection []string, sort string, maxResults int) ([]betfair.MarketCatalogue, error)
	ListMarketBook(ctx context.Context, marketIDs []string, projection betfair.PriceProjection) ([]betfair.MarketBook, error)
}

// SportsbookSource is the slice of the sportsbook-aggregator client the
// ingest uses.
type SportsbookSource interface {
	GetFeeds(ctx context.Context, sportsType, marketTypeID int, oddsFormat string, since int64) ([]asianodds.SportFeed, error)
}

// IngestConfig tunes the feed ingest. Zero fields fall back to defaults.
type IngestConfig struct {
	// Sports names the sports to poll; unknown names are dropped with a
	// warning at construction time.
	Sports []string

	// MaxMarketsPerSport caps one catalogue query.
	MaxMarketsPerSport int

	// PollInterval is the pre-match cadence; InPlayPollInterval takes over
	// while any tracked market is in-play.
	PollInterval       time.Duration
	InPlayPollInterval time.Duration

	// SnapshotInterval throttles price-history sampling.
	SnapshotInterval time.Duration

	// OddsFormat is passed through to the sportsbook feed API.
	OddsFormat string

	// Bookie restricts back quotes to one bookie code when set. Execution
	// can only place at bookies the account holds, so prices from others
	// are not actionable.
	Bookie string
}

func (c IngestConfig) withDefaults() IngestConfig {
	if len(c.Sports) == 0 {
		c.Sports = []string{"soccer"}
	}
	if c.MaxMarketsPerSport == 0 {
		c.MaxMarketsPerSport = 100
	}
	if c.PollInterval == 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.InPlayPollInterval == 0 {
		c.InPlayPollInterval = c.PollInterval
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = 45 * time.Second
	}
	if c.OddsFormat == "" {
		c.OddsFormat = asianodds.OddsFormatDecimal
	}
	return c
}

// sportBinding ties one configured sport name to the venue-specific IDs
// needed to poll it. sportsType zero means the aggregator does not carry the
// sport and only the exchange side is ingested.
type sportBinding struct {
	name        string
	eventTypeID string
	sportsType  int
}

var sportVenueIDs = map[string]sportBinding{
	"soccer":     {eventTypeID: "1", sportsType: asianodds.SportSoccer},
	"tennis":     {eventTypeID: "2"},
	"basketball": {eventTypeID: "7522", sportsType: asianodds.SportBasketball},
	"mma":        {eventTypeID: "26420387", sportsType: asianodds.SportMMA},
}

const (
	// bookBatchSize keeps listMarketBook requests under the API weight limit.
	bookBatchSize = 10

	// Catalogue window: reach back far enough to keep in-play matches and
	// ahead far enough to cover the aggregator's today and early markets.
	marketLookback  = 6 * time.Hour
	marketLookahead = 36 * time.Hour

	// backQuoteTTL bounds how long a sportsbook quote survives without a
	// refresh. One failed aggregator cycle does not blank the feed, but old
	// prices are never re-published under a fresh row timestamp.
	backQuoteTTL = 60 * time.Second
)

// backQuote is one match's parsed sportsbook prices, kept in memory between
// passes and joined onto exchange rows by normalized team names.
type backQuote struct {
	sport        string
	home, away   string // normalized
	gameID       int64
	marketTypeID int
	odds         map[string][]float64
	at           time.Time
}

// Ingestor polls both venues and maintains the market_feed table: best lay
// price per active runner from the exchange, best back price across bookies
// from the sportsbook aggregator, joined per outcome. It also feeds the steam
// detector and samples price history.
//
// Run and RunLoop are not safe for concurrent use with each other; RunLoop
// is the only production caller. Kick may be called from any goroutine.
type Ingestor struct {
	exchange   ExchangeSource
	sportsbook SportsbookSource
	feeds      domain.FeedStore
	snaps      domain.SnapshotStore
	detector   *steam.Detector
	notifier   *notify.Notifier
	cfg        IngestConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	sports       []sportBinding
	backQuotes   map[string]backQuote
	lastSnapshot time.Time
	kick         chan struct{}
}

// NewIngestor creates the feed ingest. detector may be nil when steam
// detection is disabled; sportsbook may be nil when the aggregator is
// disabled, in which case rows carry only the exchange side.
func NewIngestor(
	exchange ExchangeSource,
	sportsbook SportsbookSource,
	feeds domain.FeedStore,
	snaps domain.SnapshotStore,
	detector *steam.Detector,
	notifier *notify.Notifier,
	cfg IngestConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Ingestor {
	cfg = cfg.withDefaults()
	log := logger.With(slog.String("component", "ingest"))

	var sports []sportBinding
	for _, name := range cfg.Sports {
		b, ok := sportVenueIDs[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			log.Warn("unknown sport dropped from ingest", slog.String("sport", name))
			continue
		}
		b.name = strings.ToLower(strings.TrimSpace(name))
		sports = append(sports, b)
	}

	return &Ingestor{
		exchange:   exchange,
		sportsbook: sportsbook,
		feeds:      feeds,
		snaps:      snaps,
		detector:   detector,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    m,
		logger:     log,
		now:        time.Now,
		sports:     sports,
		backQuotes: make(map[string]backQuote),
		kick:       make(chan struct{}, 1),
	}
}

// Run executes a single ingest pass.
func (in *Ingestor) Run(ctx context.Context) error {
	_, err := in.pass(ctx)
	return err
}

// Kick requests an immediate pass from RunLoop without waiting for the next
// tick. Requests coalesce while a pass is already pending.
func (in *Ingestor) Kick() {
	select {
	case in.kick <- struct{}{}:
	default:
	}
}

// RunLoop polls both venues until the context is cancelled. The cadence
// tightens to InPlayPollInterval while any tracked market is in-play.
func (in *Ingestor) RunLoop(ctx context.Context) error {
	stats, err := in.pass(ctx)
	if err != nil {
		in.logger.ErrorContext(ctx, "ingest pass failed", slog.String("error", err.Error()))
	}

	timer := time.NewTimer(in.interval(stats))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			in.logger.InfoContext(ctx, "ingest loop stopped")
			return ctx.Err()
		case <-timer.C:
		case <-in.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			in.logger.InfoContext(ctx, "manual ingest pass requested")
		}

		stats, err = in.pass(ctx)
		if err != nil {
			in.logger.ErrorContext(ctx, "ingest pass failed", slog.String("error", err.Error()))
		}
		timer.Reset(in.interval(stats))
	}
}

func (in *Ingestor) interval(stats passStats) time.Duration {
	if stats.inPlay {
		return in.cfg.InPlayPollInterval
	}
	return in.cfg.PollInterval
}

type passStats struct {
	rows    int
	matched int
	polled  int
	inPlay  bool
}

// pass runs one full poll of every configured sport: refresh sportsbook
// quotes, list exchange markets and books, join, persist, then the
// housekeeping that depends on the fresh rows.
func (in *Ingestor) pass(ctx context.Context) (passStats, error) {
	now := in.now()
	var stats passStats
	var rows []domain.PricedOutcome
	seen := make(map[string]bool)
	polled := make(map[string]bool)
	var lastErr error

	for _, sp := range in.sports {
		sportRows, listed, err := in.pollSport(ctx, sp, now)
		if err != nil {
			lastErr = err
			in.logger.WarnContext(ctx, "sport poll failed",
				slog.String("sport", sp.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		polled[sp.name] = true
		for id := range listed {
			seen[id] = true
		}
		rows = append(rows, sportRows...)
	}
	stats.polled = len(polled)
	if len(polled) == 0 {
		if lastErr != nil {
			return stats, fmt.Errorf("pipeline: every sport poll failed: %w", lastErr)
		}
		return stats, nil
	}

	for _, r := range rows {
		if r.InPlay {
			stats.inPlay = true
		}
		if r.BackPrice > 0 {
			stats.matched++
		}
	}
	stats.rows = len(rows)

	if len(rows) > 0 {
		if err := in.feeds.UpsertBatch(ctx, rows); err != nil {
			return stats, fmt.Errorf("pipeline: upsert feed: %w", err)
		}
		in.metrics.RecordFeedUpdate("exchange", len(rows))
		in.metrics.RecordFeedUpdate("sportsbook", stats.matched)
	}

	in.closeVanished(ctx, polled, seen)
	in.observeSteam(ctx, rows, len(polled) == len(in.sports))
	in.maybeSnapshot(ctx, rows, now)

	in.logger.InfoContext(ctx, "ingest pass complete",
		slog.Int("rows", stats.rows),
		slog.Int("with_back_price", stats.matched),
		slog.Int("sports", stats.polled),
		slog.Bool("in_play", stats.inPlay),
	)
	return stats, nil
}

// pollSport refreshes one sport. The returned set holds every catalogued
// market ID, including ones whose book fetch failed, so a partial outage
// never looks like a delisting.
func (in *Ingestor) pollSport(ctx context.Context, sp sportBinding, now time.Time) ([]domain.PricedOutcome, map[string]bool, error) {
	in.refreshBackQuotes(ctx, sp, now)

	filter := betfair.MarketFilter{
		EventTypeIDs:    []string{sp.eventTypeID},
		MarketTypeCodes: []string{betfair.MarketTypeMatchOdds},
		MarketStartTime: &betfair.TimeRange{
			From: now.Add(-marketLookback).UTC().Format(time.RFC3339),
			To:   now.Add(marketLookahead).UTC().Format(time.RFC3339),
		},
	}
	projection := []string{betfair.ProjectionEvent, betfair.ProjectionMarketStartTime}
	cats, err := in.exchange.ListMarketCatalogue(ctx, filter, projection, betfair.SortMaxTraded, in.cfg.MaxMarketsPerSport)
	if err != nil {
		in.metrics.RecordVenueError("exchange", "list_catalogue")
		return nil, nil, fmt.Errorf("pipeline: %s catalogue: %w", sp.name, err)
	}

	listed := make(map[string]bool, len(cats))
	for _, c := range cats {
		listed[c.MarketID] = true
	}

	cats = dedupByEvent(cats)
	byID := make(map[string]betfair.MarketCatalogue, len(cats))
	ids := make([]string, 0, len(cats))
	for _, c := range cats {
		byID[c.MarketID] = c
		ids = append(ids, c.MarketID)
	}

	var rows []domain.PricedOutcome
	for start := 0; start < len(ids); start += bookBatchSize {
		end := start + bookBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		books, err := in.exchange.ListMarketBook(ctx, ids[start:end], betfair.PriceProjection{
			PriceData: []string{betfair.PriceDataBestOffers},
		})
		if err != nil {
			in.metrics.RecordVenueError("exchange", "list_book")
			in.logger.WarnContext(ctx, "market book batch failed",
				slog.String("sport", sp.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, book := range books {
			if book.Status == betfair.MarketStatusClosed {
				if err := in.feeds.MarkMarketClosed(ctx, book.MarketID); err != nil {
					in.logger.WarnContext(ctx, "mark closed failed",
						slog.String("market_id", book.MarketID),
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			rows = append(rows, in.bookRows(sp, byID[book.MarketID], book, now)...)
		}
	}
	return rows, listed, nil
}

// bookRows builds one feed row per active runner of a market, joining the
// sportsbook quote when one matches the fixture.
func (in *Ingestor) bookRows(sp sportBinding, cat betfair.MarketCatalogue, book betfair.MarketBook, now time.Time) []domain.PricedOutcome {
	if cat.MarketID == "" || cat.Event == nil {
		return nil
	}
	home, away, ok := splitEventName(cat.Event.Name)
	if !ok {
		return nil
	}
	normHome, normAway := normalizeTeam(home), normalizeTeam(away)

	names := make(map[int64]string, len(cat.Runners))
	for _, r := range cat.Runners {
		names[r.SelectionID] = r.RunnerName
	}

	rows := make([]domain.PricedOutcome, 0, len(book.Runners))
	for _, r := range book.Runners {
		if r.Status != betfair.RunnerStatusActive {
			continue
		}
		name := names[r.SelectionID]
		if name == "" {
			continue
		}
		layPrice, laySize := r.BestLay()

		row := domain.PricedOutcome{
			Key:          domain.MakeOutcomeKey(book.MarketID, name),
			Sport:        sp.name,
			Event:        cat.Event.Name,
			Runner:       name,
			MarketID:     book.MarketID,
			SelectionID:  r.SelectionID,
			LayPrice:     layPrice,
			LaySize:      laySize,
			MarketStatus: book.Status,
			InPlay:       book.InPlay,
			TotalMatched: book.TotalMatched,
			StartTime:    cat.MarketStartTime,
			UpdatedAt:    now,
		}
		in.fillBack(&row, sp, normHome, normAway, now)
		rows = append(rows, row)
	}
	return rows
}

// fillBack joins the freshest sportsbook quote onto one exchange row.
func (in *Ingestor) fillBack(row *domain.PricedOutcome, sp sportBinding, home, away string, now time.Time) {
	q, ok := in.lookupBack(sp.name, home, away)
	if !ok || now.Sub(q.at) > backQuoteTTL {
		return
	}
	pos, ok := runnerPosition(row.Runner, home, away)
	if !ok {
		return
	}
	odds := q.odds
	if in.cfg.Bookie != "" {
		filtered := make(map[string][]float64, 1)
		for b, prices := range odds {
			if strings.EqualFold(b, in.cfg.Bookie) {
				filtered[b] = prices
			}
		}
		if len(filtered) == 0 {
			return
		}
		odds = filtered
	}
	price, bookie := asianodds.BestPrice(odds, pos)
	if price <= 1 {
		return
	}
	row.BackPrice = price
	row.Back = domain.BackRef{
		GameID:       q.gameID,
		GameType:     asianodds.GameTypeOneXTwo,
		IsFullTime:   1,
		MarketTypeID: q.marketTypeID,
		OddsName:     oddsNameFor(pos),
		SportsType:   sp.sportsType,
		Bookie:       bookie,
	}
}

// refreshBackQuotes pulls the aggregator's early and today markets for one
// sport and rebuilds the in-memory quote table. Today entries win when a
// match appears in both. Failures keep the previous entries; the TTL purge
// ages them out instead.
func (in *Ingestor) refreshBackQuotes(ctx context.Context, sp sportBinding, now time.Time) {
	if in.sportsbook == nil || sp.sportsType == 0 {
		return
	}

	for _, marketTypeID := range []int{asianodds.MarketEarly, asianodds.MarketToday} {
		feeds, err := in.sportsbook.GetFeeds(ctx, sp.sportsType, marketTypeID, in.cfg.OddsFormat, 0)
		if err != nil {
			in.metrics.RecordVenueError("sportsbook", "get_feeds")
			in.logger.WarnContext(ctx, "sportsbook feed failed",
				slog.String("sport", sp.name),
				slog.Int("market_type", marketTypeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, feed := range feeds {
			if feed.SportsType != sp.sportsType {
				continue
			}
			for _, g := range feed.MatchGames {
				if !g.Active() || g.FullTimeOneXTwo == nil {
					continue
				}
				odds := asianodds.ParseBookieOdds(g.FullTimeOneXTwo.BookieOdds)
				if len(odds) == 0 {
					continue
				}
				q := backQuote{
					sport:        sp.name,
					home:         normalizeTeam(g.HomeTeam.Name),
					away:         normalizeTeam(g.AwayTeam.Name),
					gameID:       g.GameID,
					marketTypeID: marketTypeID,
					odds:         odds,
					at:           now,
				}
				in.backQuotes[backQuoteKey(q.sport, q.home, q.away)] = q
			}
		}
	}

	for k, q := range in.backQuotes {
		if now.Sub(q.at) > backQuoteTTL {
			delete(in.backQuotes, k)
		}
	}
}

func backQuoteKey(sport, home, away string) string {
	return sport + "|" + home + "|" + away
}

// lookupBack finds the quote for a fixture, falling back to token-subset
// matching for names the venues expand differently ("Tottenham" against
// "Tottenham Hotspur").
func (in *Ingestor) lookupBack(sport, home, away string) (backQuote, bool) {
	if q, ok := in.backQuotes[backQuoteKey(sport, home, away)]; ok {
		return q, true
	}
	for _, q := range in.backQuotes {
		if q.sport != sport {
			continue
		}
		if teamsMatch(q.home, home) && teamsMatch(q.away, away) {
			return q, true
		}
	}
	return backQuote{}, false
}

// closeVanished flags markets that left the exchange's active list. Only
// sports polled successfully this pass are considered, so a venue outage
// cannot close the whole feed.
func (in *Ingestor) closeVanished(ctx context.Context, polled, seen map[string]bool) {
	active, err := in.feeds.ListActive(ctx)
	if err != nil {
		in.logger.WarnContext(ctx, "list active feed failed", slog.String("error", err.Error()))
		return
	}

	closed := make(map[string]bool)
	for _, row := range active {
		if !polled[row.Sport] || seen[row.MarketID] || closed[row.MarketID] {
			continue
		}
		if err := in.feeds.MarkMarketClosed(ctx, row.MarketID); err != nil {
			in.logger.WarnContext(ctx, "mark closed failed",
				slog.String("market_id", row.MarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed[row.MarketID] = true
		in.logger.InfoContext(ctx, "market left the exchange list",
			slog.String("market_id", row.MarketID),
			slog.String("event", row.Event),
		)
	}
}

// observeSteam samples every fresh row into the detector and sends alerts
// for qualifying moves. Detector state is pruned only on passes where every
// sport polled, so a partial outage does not wipe history.
func (in *Ingestor) observeSteam(ctx context.Context, rows []domain.PricedOutcome, complete bool) {
	if in.detector == nil {
		return
	}

	active := make(map[domain.OutcomeKey]bool, len(rows))
	for _, row := range rows {
		active[row.Key] = true
		if row.LayPrice > 0 {
			if move := in.detector.Observe(row, domain.SteamSourceExchange); move != nil {
				in.alertSteam(ctx, move)
			}
		}
		if row.BackPrice > 0 {
			if move := in.detector.Observe(row, domain.SteamSourceSportsbook); move != nil {
				in.alertSteam(ctx, move)
			}
		}
	}
	if complete {
		in.detector.Prune(active)
	}
}

func (in *Ingestor) alertSteam(ctx context.Context, m *domain.SteamMove) {
	label := "sportsbook"
	if m.Source == domain.SteamSourceExchange {
		label = "exchange"
	}

	title := fmt.Sprintf("🔥 Steam: %s", m.Runner)
	msg := fmt.Sprintf("<b>%s</b>\n%s\n\n%s price %.3f → %.3f (implied +%.1f%%)\nWindow: %s",
		m.Runner, m.Event,
		label, m.OldPrice, m.NewPrice, m.Shift*100,
		m.Window.Round(time.Second),
	)
	if m.MatchedVolume > 0 {
		msg += fmt.Sprintf("\nMatched during move: €%.0f", m.MatchedVolume)
	}

	in.logger.InfoContext(ctx, "steam move detected",
		slog.String("key", m.Key.String()),
		slog.String("source", string(m.Source)),
		slog.Float64("old_price", m.OldPrice),
		slog.Float64("new_price", m.NewPrice),
		slog.Float64("shift", m.Shift),
	)
	in.metrics.RecordAlert("steam")
	if err := in.notifier.Notify(ctx, notify.EventSteam, title, msg); err != nil {
		in.logger.ErrorContext(ctx, "steam alert failed", slog.String("error", err.Error()))
	}
}

// maybeSnapshot samples the pass into price history, at most once per
// SnapshotInterval. The watermark only advances on success so a failed
// insert is retried next pass.
func (in *Ingestor) maybeSnapshot(ctx context.Context, rows []domain.PricedOutcome, now time.Time) {
	if now.Sub(in.lastSnapshot) < in.cfg.SnapshotInterval {
		return
	}

	snaps := make([]domain.PriceSnapshot, 0, len(rows))
	for _, r := range rows {
		if r.BackPrice <= 0 && r.LayPrice <= 0 {
			continue
		}
		snaps = append(snaps, domain.PriceSnapshot{
			Key:       r.Key,
			MarketID:  r.MarketID,
			Sport:     r.Sport,
			Event:     r.Event,
			Runner:    r.Runner,
			BackPrice: r.BackPrice,
			LayPrice:  r.LayPrice,
			MidPrice:  midPrice(r.BackPrice, r.LayPrice),
			Volume:    r.TotalMatched,
			At:        now,
		})
	}
	if len(snaps) == 0 {
		return
	}

	if err := in.snaps.InsertBatch(ctx, snaps); err != nil {
		in.logger.ErrorContext(ctx, "snapshot insert failed", slog.String("error", err.Error()))
		return
	}
	in.lastSnapshot = now
	in.metrics.RecordSnapshots(len(snaps))
}

func midPrice(back, lay float64) float64 {
	switch {
	case back > 0 && lay > 0:
		return (back + lay) / 2
	case back > 0:
		return back
	default:
		return lay
	}
}

// dedupByEvent keeps one market per exchange event, preferring traded
// volume. Duplicate listings of the same fixture would otherwise produce
// colliding outcome rows.
func dedupByEvent(cats []betfair.MarketCatalogue) []betfair.MarketCatalogue {
	best := make(map[string]betfair.MarketCatalogue, len(cats))
	order := make([]string, 0, len(cats))
	for _, c := range cats {
		if c.Event == nil || c.Event.ID == "" {
			continue
		}
		cur, ok := best[c.Event.ID]
		if !ok {
			order = append(order, c.Event.ID)
			best[c.Event.ID] = c
			continue
		}
		if c.TotalMatched > cur.TotalMatched {
			best[c.Event.ID] = c
		}
	}

	out := make([]betfair.MarketCatalogue, 0, len(best))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// splitEventName breaks an exchange event name into home and away teams.
// "Arsenal v Tottenham" lists home first; US-style "Lakers @ Celtics" lists
// the away side first.
func splitEventName(name string) (home, away string, ok bool) {
	if i := strings.Index(name, " v "); i > 0 {
		return name[:i], name[i+3:], true
	}
	if i := strings.Index(name, " @ "); i > 0 {
		return name[i+3:], name[:i], true
	}
	return "", "", false
}

// drawRunner is the exchange's name for the draw selection on 1X2 markets.
const drawRunner = "The Draw"

// runnerPosition maps a runner name onto the sportsbook's price positions.
// home and away must already be normalized.
func runnerPosition(runner, home, away string) (int, bool) {
	if strings.EqualFold(runner, drawRunner) {
		return asianodds.PosDraw, true
	}
	switch n := normalizeTeam(runner); {
	case teamsMatch(n, home):
		return asianodds.PosHome, true
	case teamsMatch(n, away):
		return asianodds.PosAway, true
	}
	return 0, false
}

func oddsNameFor(pos int) string {
	switch pos {
	case asianodds.PosHome:
		return asianodds.OddsNameHome
	case asianodds.PosAway:
		return asianodds.OddsNameAway
	default:
		return asianodds.OddsNameDraw
	}
}

// teamOrgTokens are organisational-form tokens dropped during
// normalization; they differ between venues far more often than the name
// itself.
var teamOrgTokens = map[string]bool{
	"fc": true, "afc": true, "cf": true, "sc": true, "ac": true,
	"cd": true, "if": true, "bk": true, "sk": true, "club": true,
}

// normalizeTeam lowercases a team name, strips punctuation and
// organisational tokens, and collapses whitespace.
func normalizeTeam(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '/':
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if !teamOrgTokens[f] {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		kept = fields
	}
	return strings.Join(kept, " ")
}

// teamsMatch reports whether two normalized names refer to the same team:
// equal, or one name's tokens are a subset of the other's.
func teamsMatch(a, b string) bool {
	if a == b {
		return true
	}
	at, bt := strings.Fields(a), strings.Fields(b)
	if len(at) == 0 || len(bt) == 0 {
		return false
	}
	if len(at) > len(bt) {
		at, bt = bt, at
	}
	set := make(map[string]bool, len(bt))
	for _, t := range bt {
		set[t] = true
	}
	for _, t := range at {
		if !set[t] {
			return false
		}
	}
	return true
}
