package asianodds

import (
	"math"
	"testing"
)

func TestParseBookieOdds(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string][]float64
	}{
		{
			name: "colon separated three way",
			in:   "SIN:2.26,1.61,3.40;IBC:2.30,1.58,3.35;BEST:SIN 2.26,IBC 1.58",
			want: map[string][]float64{
				"SIN": {2.26, 1.61, 3.40},
				"IBC": {2.30, 1.58, 3.35},
			},
		},
		{
			name: "equals separated",
			in:   "PIN=2.084,3.655,3.614",
			want: map[string][]float64{"PIN": {2.084, 3.655, 3.614}},
		},
		{
			name: "no separator",
			in:   "SIN2.260,1.610",
			want: map[string][]float64{"SIN": {2.26, 1.61}},
		},
		{
			name: "two way market",
			in:   "PIN=1.91,1.95",
			want: map[string][]float64{"PIN": {1.91, 1.95}},
		},
		{
			name: "placeholder row dropped",
			in:   "PIN=0,0;SIN=2.10,1.80",
			want: map[string][]float64{"SIN": {2.10, 1.80}},
		},
		{
			name: "best section skipped",
			in:   "BEST:SIN 2.26,IBC 1.58",
			want: map[string][]float64{},
		},
		{
			name: "empty string",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBookieOdds(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d bookies, want %d: %v", len(got), len(tt.want), got)
			}
			for bookie, wantPrices := range tt.want {
				gotPrices, ok := got[bookie]
				if !ok {
					t.Fatalf("missing bookie %s", bookie)
				}
				if len(gotPrices) != len(wantPrices) {
					t.Fatalf("%s: got %d prices, want %d", bookie, len(gotPrices), len(wantPrices))
				}
				for i := range wantPrices {
					if math.Abs(gotPrices[i]-wantPrices[i]) > 1e-9 {
						t.Errorf("%s[%d] = %v, want %v", bookie, i, gotPrices[i], wantPrices[i])
					}
				}
			}
		})
	}
}

func TestBestPrice(t *testing.T) {
	odds := map[string][]float64{
		"PIN": {2.10, 1.80, 3.50},
		"SIN": {2.05, 1.85, 3.60},
		"IBC": {2.12, 1.79},
	}

	price, bookie := BestPrice(odds, PosHome)
	if price != 2.12 || bookie != "IBC" {
		t.Errorf("home: got %v from %s, want 2.12 from IBC", price, bookie)
	}

	price, bookie = BestPrice(odds, PosAway)
	if price != 1.85 || bookie != "SIN" {
		t.Errorf("away: got %v from %s, want 1.85 from SIN", price, bookie)
	}

	// IBC has no draw price and must not win the draw position.
	price, bookie = BestPrice(odds, PosDraw)
	if price != 3.60 || bookie != "SIN" {
		t.Errorf("draw: got %v from %s, want 3.60 from SIN", price, bookie)
	}

	price, bookie = BestPrice(nil, PosHome)
	if price != 0 || bookie != "" {
		t.Errorf("empty map: got %v from %q, want 0", price, bookie)
	}
}

func TestMatchGameActive(t *testing.T) {
	f := false
	tr := true

	tests := []struct {
		name string
		m    MatchGame
		want bool
	}{
		{"active flag omitted", MatchGame{}, true},
		{"explicitly active", MatchGame{IsActive: &tr}, true},
		{"explicitly inactive", MatchGame{IsActive: &f}, false},
		{"scheduled for removal", MatchGame{WillBeRemoved: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatBookieOdds(t *testing.T) {
	if got := FormatBookieOdds("PIN", 2.1); got != "PIN:2.1" {
		t.Errorf("got %q, want PIN:2.1", got)
	}
	if got := FormatBookieOdds("SIN", 1.98); got != "SIN:1.98" {
		t.Errorf("got %q, want SIN:1.98", got)
	}
}
