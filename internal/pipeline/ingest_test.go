package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/metrics"
	"github.com/awestray/backlay/internal/notify"
	"github.com/awestray/backlay/internal/platform/asianodds"
	"github.com/awestray/backlay/internal/platform/betfair"
	"github.com/awestray/backlay/internal/steam"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExchange struct {
	cats      []betfair.MarketCatalogue
	catErr    error
	books     map[string]betfair.MarketBook
	bookErr   error
	catCalls  int
	bookCalls int
	gotFilter betfair.MarketFilter
	gotMax    int
	batches   [][]string
}

func (f *fakeExchange) ListMarketCatalogue(_ context.Context, filter betfair.MarketFilter, _ []string, _ string, maxResults int) ([]betfair.MarketCatalogue, error) {
	f.catCalls++
	f.gotFilter = filter
	f.gotMax = maxResults
	if f.catErr != nil {
		return nil, f.catErr
	}
	return f.cats, nil
}

func (f *fakeExchange) ListMarketBook(_ context.Context, ids []string, _ betfair.PriceProjection) ([]betfair.MarketBook, error) {
	f.bookCalls++
	f.batches = append(f.batches, ids)
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	var out []betfair.MarketBook
	for _, id := range ids {
		if b, ok := f.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeSportsbook struct {
	feeds map[int][]asianodds.SportFeed
	err   error
	calls int
}

func (f *fakeSportsbook) GetFeeds(_ context.Context, _, marketTypeID int, _ string, _ int64) ([]asianodds.SportFeed, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.feeds[marketTypeID], nil
}

type fakeFeedStore struct {
	upserts   [][]domain.PricedOutcome
	upsertErr error
	active    []domain.PricedOutcome
	activeErr error
	closed    []string
}

func (f *fakeFeedStore) UpsertBatch(_ context.Context, rows []domain.PricedOutcome) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, rows)
	return nil
}

func (f *fakeFeedStore) ListActive(context.Context) ([]domain.PricedOutcome, error) {
	return f.active, f.activeErr
}

func (f *fakeFeedStore) GetByKey(context.Context, domain.OutcomeKey) (domain.PricedOutcome, error) {
	return domain.PricedOutcome{}, domain.ErrNotFound
}

func (f *fakeFeedStore) MarkMarketClosed(_ context.Context, marketID string) error {
	f.closed = append(f.closed, marketID)
	return nil
}

func (f *fakeFeedStore) HasInPlay(context.Context) (bool, error) { return false, nil }

func (f *fakeFeedStore) Count(context.Context) (int64, error) { return int64(len(f.active)), nil }

type fakeSnapshots struct {
	batches   [][]domain.PriceSnapshot
	insertErr error
	deletions []time.Time
	deleted   int64
	deleteErr error
}

func (f *fakeSnapshots) InsertBatch(_ context.Context, snaps []domain.PriceSnapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.batches = append(f.batches, snaps)
	return nil
}

func (f *fakeSnapshots) ListRange(context.Context, domain.OutcomeKey, time.Time, time.Time) ([]domain.PriceSnapshot, error) {
	return nil, nil
}

func (f *fakeSnapshots) ListBefore(context.Context, time.Time) ([]domain.PriceSnapshot, error) {
	return nil, nil
}

func (f *fakeSnapshots) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletions = append(f.deletions, before)
	return f.deleted, nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.sent = append(f.sent, title+"|"+message)
	return nil
}

func (f *fakeSender) Name() string { return "fake" }

type ingestHarness struct {
	in         *Ingestor
	exchange   *fakeExchange
	sportsbook *fakeSportsbook
	feeds      *fakeFeedStore
	snaps      *fakeSnapshots
	sender     *fakeSender
	clock      time.Time
	kickoff    time.Time
}

func newIngestHarness() *ingestHarness {
	h := &ingestHarness{
		exchange:   &fakeExchange{books: make(map[string]betfair.MarketBook)},
		sportsbook: &fakeSportsbook{feeds: make(map[int][]asianodds.SportFeed)},
		feeds:      &fakeFeedStore{},
		snaps:      &fakeSnapshots{},
		sender:     &fakeSender{},
		clock:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	h.kickoff = h.clock.Add(3 * time.Hour)

	h.exchange.cats = []betfair.MarketCatalogue{{
		MarketID:        "1.234",
		MarketName:      "Match Odds",
		MarketStartTime: h.kickoff,
		TotalMatched:    150000,
		Event:           &betfair.Event{ID: "E100", Name: "Arsenal v Tottenham"},
		Runners: []betfair.RunnerCatalog{
			{SelectionID: 4001, RunnerName: "Arsenal"},
			{SelectionID: 4002, RunnerName: "Tottenham"},
			{SelectionID: 58805, RunnerName: "The Draw"},
		},
	}}
	h.exchange.books["1.234"] = betfair.MarketBook{
		MarketID:     "1.234",
		Status:       betfair.MarketStatusOpen,
		InPlay:       false,
		TotalMatched: 152000,
		Runners: []betfair.Runner{
			{SelectionID: 4001, Status: betfair.RunnerStatusActive, EX: &betfair.ExchangePrices{
				AvailableToBack: []betfair.PriceSize{{Price: 2.00, Size: 400}},
				AvailableToLay:  []betfair.PriceSize{{Price: 2.02, Size: 350}},
			}},
			{SelectionID: 4002, Status: betfair.RunnerStatusActive, EX: &betfair.ExchangePrices{
				AvailableToBack: []betfair.PriceSize{{Price: 3.70, Size: 250}},
				AvailableToLay:  []betfair.PriceSize{{Price: 3.80, Size: 220}},
			}},
			{SelectionID: 58805, Status: betfair.RunnerStatusActive, EX: &betfair.ExchangePrices{
				AvailableToBack: []betfair.PriceSize{{Price: 3.50, Size: 180}},
				AvailableToLay:  []betfair.PriceSize{{Price: 3.60, Size: 160}},
			}},
		},
	}
	h.sportsbook.feeds[asianodds.MarketToday] = []asianodds.SportFeed{{
		SportsType: asianodds.SportSoccer,
		MatchGames: []asianodds.MatchGame{{
			GameID:     7701,
			LeagueName: "English Premier League",
			HomeTeam:   asianodds.Team{Name: "Arsenal FC"},
			AwayTeam:   asianodds.Team{Name: "Tottenham Hotspur"},
			StartTime:  h.kickoff.UnixMilli(),
			FullTimeOneXTwo: &asianodds.OddsBlock{
				BookieOdds: "PIN=2.10,3.85,3.58;SIN:2.06,3.90,3.40",
			},
		}},
	}}

	notifier := notify.NewNotifier([]notify.Sender{h.sender}, nil, testLogger())
	h.in = NewIngestor(
		h.exchange,
		h.sportsbook,
		h.feeds,
		h.snaps,
		steam.NewDetector(steam.Config{}),
		notifier,
		IngestConfig{
			Sports:             []string{"soccer"},
			MaxMarketsPerSport: 25,
			PollInterval:       15 * time.Second,
			InPlayPollInterval: 5 * time.Second,
			SnapshotInterval:   45 * time.Second,
		},
		metrics.New(),
		testLogger(),
	)
	h.in.now = func() time.Time { return h.clock }
	return h
}

func (h *ingestHarness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *ingestHarness) setLay(selectionID int64, price, size float64) {
	book := h.exchange.books["1.234"]
	for i := range book.Runners {
		if book.Runners[i].SelectionID == selectionID {
			book.Runners[i].EX.AvailableToLay = []betfair.PriceSize{{Price: price, Size: size}}
		}
	}
	h.exchange.books["1.234"] = book
}

func (h *ingestHarness) lastUpsert(t *testing.T) []domain.PricedOutcome {
	t.Helper()
	if len(h.feeds.upserts) == 0 {
		t.Fatal("no feed rows upserted")
	}
	return h.feeds.upserts[len(h.feeds.upserts)-1]
}

func rowByKey(t *testing.T, rows []domain.PricedOutcome, key domain.OutcomeKey) domain.PricedOutcome {
	t.Helper()
	for _, r := range rows {
		if r.Key == key {
			return r
		}
	}
	t.Fatalf("row %s not found", key)
	return domain.PricedOutcome{}
}

func TestPassJoinsVenuesAndUpserts(t *testing.T) {
	h := newIngestHarness()

	stats, err := h.in.pass(context.Background())
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if stats.rows != 3 || stats.matched != 3 || stats.inPlay {
		t.Fatalf("stats = %+v, want 3 rows all matched, pre-match", stats)
	}
	if h.sportsbook.calls != 2 {
		t.Fatalf("sportsbook polled %d times, want early + today", h.sportsbook.calls)
	}
	if h.exchange.gotMax != 25 {
		t.Fatalf("catalogue max = %d, want 25", h.exchange.gotMax)
	}
	if got := h.exchange.gotFilter.MarketTypeCodes; len(got) != 1 || got[0] != betfair.MarketTypeMatchOdds {
		t.Fatalf("market type filter = %v", got)
	}
	if got := h.exchange.gotFilter.MarketStartTime.From; got != "2026-03-14T06:00:00Z" {
		t.Fatalf("start time from = %s", got)
	}
	if got := h.exchange.gotFilter.MarketStartTime.To; got != "2026-03-16T00:00:00Z" {
		t.Fatalf("start time to = %s", got)
	}

	rows := h.lastUpsert(t)

	home := rowByKey(t, rows, domain.MakeOutcomeKey("1.234", "Arsenal"))
	if home.LayPrice != 2.02 || home.LaySize != 350 {
		t.Fatalf("home lay = %.2f/%.0f", home.LayPrice, home.LaySize)
	}
	if home.BackPrice != 2.10 {
		t.Fatalf("home back = %v, want best across bookies", home.BackPrice)
	}
	wantRef := domain.BackRef{
		GameID:       7701,
		GameType:     asianodds.GameTypeOneXTwo,
		IsFullTime:   1,
		MarketTypeID: asianodds.MarketToday,
		OddsName:     asianodds.OddsNameHome,
		SportsType:   asianodds.SportSoccer,
		Bookie:       "PIN",
	}
	if home.Back != wantRef {
		t.Fatalf("home back ref = %+v, want %+v", home.Back, wantRef)
	}
	if !home.UpdatedAt.Equal(h.clock) || !home.StartTime.Equal(h.kickoff) {
		t.Fatalf("timestamps = %v / %v", home.UpdatedAt, home.StartTime)
	}
	if home.Sport != "soccer" || home.Event != "Arsenal v Tottenham" || home.SelectionID != 4001 {
		t.Fatalf("row identity = %+v", home)
	}

	away := rowByKey(t, rows, domain.MakeOutcomeKey("1.234", "Tottenham"))
	if away.BackPrice != 3.90 || away.Back.Bookie != "SIN" || away.Back.OddsName != asianodds.OddsNameAway {
		t.Fatalf("away join = %.2f %s %s", away.BackPrice, away.Back.Bookie, away.Back.OddsName)
	}

	draw := rowByKey(t, rows, domain.MakeOutcomeKey("1.234", "The Draw"))
	if draw.BackPrice != 3.58 || draw.Back.OddsName != asianodds.OddsNameDraw {
		t.Fatalf("draw join = %.2f %s", draw.BackPrice, draw.Back.OddsName)
	}
}

func TestPassDedupsEventsByVolume(t *testing.T) {
	h := newIngestHarness()
	h.exchange.cats = append(h.exchange.cats, betfair.MarketCatalogue{
		MarketID:        "1.235",
		MarketStartTime: h.kickoff,
		TotalMatched:    90000,
		Event:           &betfair.Event{ID: "E100", Name: "Arsenal v Tottenham"},
		Runners: []betfair.RunnerCatalog{
			{SelectionID: 4001, RunnerName: "Arsenal"},
		},
	})
	h.exchange.books["1.235"] = betfair.MarketBook{
		MarketID: "1.235",
		Status:   betfair.MarketStatusOpen,
		Runners: []betfair.Runner{
			{SelectionID: 4001, Status: betfair.RunnerStatusActive},
		},
	}

	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	for _, r := range h.lastUpsert(t) {
		if r.MarketID != "1.234" {
			t.Fatalf("duplicate listing survived dedup: %s", r.MarketID)
		}
	}
	// The losing duplicate is still listed on the venue, so it must not be
	// treated as delisted.
	if len(h.feeds.closed) != 0 {
		t.Fatalf("markets closed = %v", h.feeds.closed)
	}
}

func TestSportsbookOutageKeepsRecentQuotes(t *testing.T) {
	h := newIngestHarness()

	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	h.sportsbook.err = errors.New("aggregator down")
	h.advance(15 * time.Second)
	stats, err := h.in.pass(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stats.matched != 3 {
		t.Fatalf("matched = %d after one failed aggregator cycle, want 3", stats.matched)
	}

	h.advance(61 * time.Second)
	stats, err = h.in.pass(context.Background())
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if stats.matched != 0 {
		t.Fatalf("matched = %d with aged quotes, want 0", stats.matched)
	}
	for _, r := range h.lastUpsert(t) {
		if r.BackPrice != 0 {
			t.Fatalf("aged quote republished: %s @ %.2f", r.Key, r.BackPrice)
		}
	}
}

func TestVanishedMarketMarkedClosed(t *testing.T) {
	h := newIngestHarness()
	h.feeds.active = []domain.PricedOutcome{{
		Key:      domain.MakeOutcomeKey("1.999", "Leeds"),
		Sport:    "soccer",
		Event:    "Leeds v Villa",
		MarketID: "1.999",
	}}

	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(h.feeds.closed) != 1 || h.feeds.closed[0] != "1.999" {
		t.Fatalf("closed = %v, want [1.999]", h.feeds.closed)
	}
}

func TestCatalogueFailureClosesNothing(t *testing.T) {
	h := newIngestHarness()
	h.feeds.active = []domain.PricedOutcome{{
		Sport:    "soccer",
		MarketID: "1.999",
	}}
	h.exchange.catErr = errors.New("exchange down")

	_, err := h.in.pass(context.Background())
	if err == nil {
		t.Fatal("expected error when every sport poll fails")
	}
	if len(h.feeds.closed) != 0 {
		t.Fatalf("closed = %v during venue outage", h.feeds.closed)
	}
	if len(h.feeds.upserts) != 0 {
		t.Fatalf("upserts = %d during venue outage", len(h.feeds.upserts))
	}
}

func TestBookFailureDoesNotCloseListedMarkets(t *testing.T) {
	h := newIngestHarness()
	h.feeds.active = []domain.PricedOutcome{{
		Sport:    "soccer",
		MarketID: "1.234",
	}}
	h.exchange.bookErr = errors.New("book endpoint down")

	stats, err := h.in.pass(context.Background())
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if stats.rows != 0 {
		t.Fatalf("rows = %d with failing books", stats.rows)
	}
	if len(h.feeds.closed) != 0 {
		t.Fatalf("closed = %v, catalogued market treated as delisted", h.feeds.closed)
	}
}

func TestClosedBookMarksMarket(t *testing.T) {
	h := newIngestHarness()
	book := h.exchange.books["1.234"]
	book.Status = betfair.MarketStatusClosed
	h.exchange.books["1.234"] = book

	stats, err := h.in.pass(context.Background())
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if stats.rows != 0 {
		t.Fatalf("rows = %d for settled market", stats.rows)
	}
	if len(h.feeds.closed) != 1 || h.feeds.closed[0] != "1.234" {
		t.Fatalf("closed = %v, want [1.234]", h.feeds.closed)
	}
}

func TestInPlayTightensCadence(t *testing.T) {
	h := newIngestHarness()
	book := h.exchange.books["1.234"]
	book.InPlay = true
	h.exchange.books["1.234"] = book

	stats, err := h.in.pass(context.Background())
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if !stats.inPlay {
		t.Fatal("in-play market not detected")
	}
	if got := h.in.interval(stats); got != 5*time.Second {
		t.Fatalf("interval = %s, want in-play cadence", got)
	}
	if got := h.in.interval(passStats{}); got != 15*time.Second {
		t.Fatalf("interval = %s, want pre-match cadence", got)
	}
}

func TestSnapshotThrottle(t *testing.T) {
	h := newIngestHarness()

	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(h.snaps.batches) != 1 {
		t.Fatalf("batches = %d after first pass", len(h.snaps.batches))
	}
	snaps := h.snaps.batches[0]
	if len(snaps) != 3 {
		t.Fatalf("snapshot rows = %d", len(snaps))
	}
	for _, s := range snaps {
		if s.Key == domain.MakeOutcomeKey("1.234", "Arsenal") {
			if want := (2.10 + 2.02) / 2; s.MidPrice != want {
				t.Fatalf("mid = %v, want %v", s.MidPrice, want)
			}
			if s.Volume != 152000 || !s.At.Equal(h.clock) {
				t.Fatalf("snapshot = %+v", s)
			}
		}
	}

	h.advance(15 * time.Second)
	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(h.snaps.batches) != 1 {
		t.Fatal("snapshot written inside throttle window")
	}

	h.advance(31 * time.Second)
	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(h.snaps.batches) != 2 {
		t.Fatalf("batches = %d after window elapsed", len(h.snaps.batches))
	}
}

func TestSnapshotRetriesAfterInsertFailure(t *testing.T) {
	h := newIngestHarness()
	h.snaps.insertErr = errors.New("db down")

	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(h.snaps.batches) != 0 {
		t.Fatal("insert should have failed")
	}

	// Well inside the throttle window: the watermark must not have advanced.
	h.snaps.insertErr = nil
	h.advance(time.Second)
	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(h.snaps.batches) != 1 {
		t.Fatalf("batches = %d, want retry on next pass", len(h.snaps.batches))
	}
}

func TestSteamMoveAlerts(t *testing.T) {
	h := newIngestHarness()
	h.in.detector = steam.NewDetector(steam.Config{
		Window:   10 * time.Minute,
		MinShift: 0.02,
		MinPrice: 1.05,
		MaxPrice: 20,
	})

	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	h.setLay(4001, 1.70, 300)
	h.advance(15 * time.Second)
	if _, err := h.in.pass(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	var alerts []string
	for _, msg := range h.sender.sent {
		if strings.Contains(msg, "Steam") {
			alerts = append(alerts, msg)
		}
	}
	if len(alerts) != 1 {
		t.Fatalf("steam alerts = %d: %v", len(alerts), alerts)
	}
	if !strings.Contains(alerts[0], "Arsenal") || !strings.Contains(alerts[0], "2.020 → 1.700") {
		t.Fatalf("alert = %q", alerts[0])
	}
}

func TestUnknownSportDropped(t *testing.T) {
	h := newIngestHarness()
	in := NewIngestor(
		h.exchange,
		h.sportsbook,
		h.feeds,
		h.snaps,
		nil,
		notify.NewNotifier(nil, nil, testLogger()),
		IngestConfig{Sports: []string{"soccer", "cricket"}},
		metrics.New(),
		testLogger(),
	)
	if len(in.sports) != 1 || in.sports[0].name != "soccer" {
		t.Fatalf("sports = %+v", in.sports)
	}
}

func TestKickCoalesces(t *testing.T) {
	h := newIngestHarness()
	h.in.Kick()
	h.in.Kick()
	if len(h.in.kick) != 1 {
		t.Fatalf("kick channel len = %d", len(h.in.kick))
	}
}

func TestSplitEventName(t *testing.T) {
	tests := []struct {
		name       string
		home, away string
		ok         bool
	}{
		{"Arsenal v Tottenham", "Arsenal", "Tottenham", true},
		{"LA Lakers @ Boston Celtics", "Boston Celtics", "LA Lakers", true},
		{"Set 1 Winner", "", "", false},
	}
	for _, tt := range tests {
		home, away, ok := splitEventName(tt.name)
		if home != tt.home || away != tt.away || ok != tt.ok {
			t.Errorf("splitEventName(%q) = %q, %q, %v", tt.name, home, away, ok)
		}
	}
}

func TestRunnerPosition(t *testing.T) {
	home, away := normalizeTeam("Arsenal"), normalizeTeam("Tottenham Hotspur")
	tests := []struct {
		runner string
		pos    int
		ok     bool
	}{
		{"Arsenal", asianodds.PosHome, true},
		{"Tottenham", asianodds.PosAway, true},
		{"The Draw", asianodds.PosDraw, true},
		{"Over 2.5 Goals", 0, false},
	}
	for _, tt := range tests {
		pos, ok := runnerPosition(tt.runner, home, away)
		if pos != tt.pos || ok != tt.ok {
			t.Errorf("runnerPosition(%q) = %d, %v", tt.runner, pos, ok)
		}
	}
}

func TestNormalizeTeam(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Arsenal FC", "arsenal"},
		{"Real Madrid CF", "real madrid"},
		{"St. Pauli", "st pauli"},
		{"1. FC Köln", "1 kln"},
		{"FC", "fc"},
	}
	for _, tt := range tests {
		if got := normalizeTeam(tt.in); got != tt.want {
			t.Errorf("normalizeTeam(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTeamsMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"tottenham", "tottenham hotspur", true},
		{"arsenal", "arsenal", true},
		{"manchester united", "manchester city", false},
		{"", "arsenal", false},
	}
	for _, tt := range tests {
		if got := teamsMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("teamsMatch(%q, %q) = %v", tt.a, tt.b, got)
		}
	}
}
