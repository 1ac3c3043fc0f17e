package pipeline

import (
	"testing"
	"time"
)

func TestNextCronTime(t *testing.T) {
	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			// Monthly archive schedule.
			expr:  "0 3 1 * *",
			after: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			expr:  "*/15 * * * *",
			after: time.Date(2026, 3, 14, 12, 7, 42, 0, time.UTC),
			want:  time.Date(2026, 3, 14, 12, 15, 0, 0, time.UTC),
		},
		{
			// A boundary hit must roll to the next slot, not fire again.
			expr:  "*/15 * * * *",
			after: time.Date(2026, 3, 14, 12, 15, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC),
		},
		{
			// Saturday rolls forward to Monday on a weekday-only schedule.
			expr:  "30 9 * * 1-5",
			after: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 16, 9, 30, 0, 0, time.UTC),
		},
		{
			expr:  "5 4 * * *",
			after: time.Date(2026, 3, 14, 4, 5, 30, 0, time.UTC),
			want:  time.Date(2026, 3, 15, 4, 5, 0, 0, time.UTC),
		},
		{
			expr:  "10-30/10 2 * * *",
			after: time.Date(2026, 3, 14, 2, 15, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 14, 2, 20, 0, 0, time.UTC),
		},
		{
			expr:  "0,30 * * * *",
			after: time.Date(2026, 3, 14, 12, 31, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		got, err := nextCronTime(tt.expr, tt.after)
		if err != nil {
			t.Errorf("nextCronTime(%q, %s): %v", tt.expr, tt.after, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("nextCronTime(%q, %s) = %s, want %s", tt.expr, tt.after, got, tt.want)
		}
	}
}

func TestNextCronTimeNoMatchWithinYear(t *testing.T) {
	// The next Feb 29 is more than a year out.
	after := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if _, err := nextCronTime("0 0 29 2 *", after); err == nil {
		t.Fatal("expected error for unreachable schedule")
	}
}

func TestParseCronRejectsInvalid(t *testing.T) {
	tests := []string{
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"x * * * *",
		"*/0 * * * *",
		"30-10 * * * *",
	}
	for _, expr := range tests {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("parseCron(%q) accepted invalid expression", expr)
		}
	}
}
