package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/notify"
)

type reportHarness struct {
	r      *Reporter
	opps   *fakeOppStore
	sender *fakeSender
	clock  time.Time
}

func newReportHarness() *reportHarness {
	h := &reportHarness{
		opps:   &fakeOppStore{},
		sender: &fakeSender{},
		clock:  time.Date(2026, 3, 14, 0, 2, 0, 0, time.UTC),
	}
	notifier := notify.NewNotifier([]notify.Sender{h.sender}, nil, testLogger())
	h.r = NewReporter(h.opps, notifier, 5*time.Minute, 5, testLogger())
	h.r.now = func() time.Time { return h.clock }
	return h
}

func TestMaybeSendsOncePerDay(t *testing.T) {
	h := newReportHarness()
	ctx := context.Background()

	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("Maybe: %v", err)
	}
	if len(h.sender.sent) != 1 {
		t.Fatalf("sent %d reports, want 1", len(h.sender.sent))
	}

	// Covers the full previous UTC day.
	call := h.opps.sumCalls[0]
	wantFrom := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !call.from.Equal(wantFrom) || !call.to.Equal(wantTo) {
		t.Errorf("summary range = [%v, %v), want [%v, %v)", call.from, call.to, wantFrom, wantTo)
	}

	// Same day: the watermark suppresses a second send.
	h.clock = h.clock.Add(time.Minute)
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("second Maybe: %v", err)
	}
	if len(h.sender.sent) != 1 {
		t.Errorf("sent %d reports after repeat check, want 1", len(h.sender.sent))
	}

	// Next midnight: fires for the new previous day.
	h.clock = time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("next-day Maybe: %v", err)
	}
	if len(h.sender.sent) != 2 {
		t.Errorf("sent %d reports after next midnight, want 2", len(h.sender.sent))
	}
}

func TestMaybeOutsideWindowSkipsDay(t *testing.T) {
	h := newReportHarness()
	ctx := context.Background()

	h.clock = time.Date(2026, 3, 14, 0, 7, 0, 0, time.UTC)
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("Maybe: %v", err)
	}
	h.clock = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("afternoon Maybe: %v", err)
	}
	if len(h.sender.sent) != 0 {
		t.Fatalf("sent %d reports outside the window, want 0", len(h.sender.sent))
	}

	// The skipped day is not made up later; the next window reports its own
	// previous day.
	h.clock = time.Date(2026, 3, 15, 0, 0, 30, 0, time.UTC)
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("next-day Maybe: %v", err)
	}
	if len(h.sender.sent) != 1 {
		t.Fatalf("sent %d reports, want 1", len(h.sender.sent))
	}
	call := h.opps.sumCalls[0]
	if !call.from.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("summary from = %v, want 14 Mar midnight", call.from)
	}
}

func TestMaybeRetriesAfterStoreFailure(t *testing.T) {
	h := newReportHarness()
	ctx := context.Background()

	h.opps.sumErr = errors.New("db down")
	if err := h.r.Maybe(ctx); err == nil {
		t.Fatal("Maybe should surface the summary error")
	}
	if len(h.sender.sent) != 0 {
		t.Fatalf("sent %d reports after store failure, want 0", len(h.sender.sent))
	}

	// Watermark untouched: the next tick inside the window retries.
	h.opps.sumErr = nil
	h.clock = h.clock.Add(time.Minute)
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("retry Maybe: %v", err)
	}
	if len(h.sender.sent) != 1 {
		t.Errorf("sent %d reports after retry, want 1", len(h.sender.sent))
	}
}

func TestManualBypassesWatermark(t *testing.T) {
	h := newReportHarness()
	ctx := context.Background()
	h.opps.summary = domain.DailySummary{Total: 2, AvgPeakMargin: 0.012, MaxPeakMargin: 0.02, MinPeakMargin: 0.004}

	text, err := h.r.Manual(ctx)
	if err != nil {
		t.Fatalf("Manual: %v", err)
	}
	if !strings.Contains(text, "DAILY ARB REPORT") || !strings.Contains(text, "Total arbs: 2") {
		t.Errorf("manual report text = %q", text)
	}

	// Covers today so far, not yesterday.
	call := h.opps.sumCalls[0]
	if !call.from.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) || !call.to.Equal(h.clock) {
		t.Errorf("manual range = [%v, %v)", call.from, call.to)
	}
	if len(h.sender.sent) != 0 {
		t.Errorf("manual report broadcast %d messages, want 0", len(h.sender.sent))
	}

	// The watermark did not advance: the automatic report still fires.
	if err := h.r.Maybe(ctx); err != nil {
		t.Fatalf("Maybe after manual: %v", err)
	}
	if len(h.sender.sent) != 1 {
		t.Errorf("sent %d automatic reports after manual, want 1", len(h.sender.sent))
	}
}

func TestFormatSummaryEmptyDay(t *testing.T) {
	title, body := formatSummary(domain.DailySummary{Day: time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)})
	if !strings.Contains(title, "13 Mar 2026") {
		t.Errorf("title = %q", title)
	}
	if body != "No arbitrage opportunities detected." {
		t.Errorf("body = %q", body)
	}
}

func TestFormatSummaryFull(t *testing.T) {
	closedAt := time.Date(2026, 3, 13, 10, 5, 20, 0, time.UTC)
	s := domain.DailySummary{
		Day:           time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
		Total:         3,
		AvgPeakMargin: 0.0085,
		MaxPeakMargin: 0.021,
		MinPeakMargin: 0.0012,
		AvgDuration:   145 * time.Second,
		MaxDuration:   620 * time.Second,
		BySport: []domain.SportCount{
			{Sport: "soccer", Count: 2, AvgPeakMargin: 0.0091},
			{Sport: "tennis", Count: 1, AvgPeakMargin: 0.0067},
		},
		Top: []domain.Opportunity{
			{
				Runner: "Arsenal", BackPrice: 2.10, LayPrice: 2.04,
				PeakMargin: 0.021,
				OpenedAt:   closedAt.Add(-320 * time.Second), LastSeen: closedAt, ClosedAt: &closedAt,
			},
			{
				Runner: "Djokovic", BackPrice: 1.80, LayPrice: 1.77,
				PeakMargin: 0.0067,
				OpenedAt:   closedAt, LastSeen: closedAt.Add(time.Minute),
			},
		},
	}

	_, body := formatSummary(s)
	for _, want := range []string{
		"Total arbs: 3",
		"avg 0.85% | best 2.10% | worst 0.12%",
		"avg 145s | longest 620s",
		"soccer: 2 arbs, avg 0.91%",
		"Arsenal: 2.100 back > 2.040 lay (2.10%, 320s)",
		"still open",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report body missing %q:\n%s", want, body)
		}
	}
}
