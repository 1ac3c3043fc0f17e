package odds

import (
	"math"
	"testing"
)

const tol = 1e-9

func TestNetMargin(t *testing.T) {
	tests := []struct {
		name       string
		back       float64
		lay        float64
		commission float64
		want       float64
	}{
		{
			name:       "profitable gap after commission",
			back:       2.10,
			lay:        2.00,
			commission: 0.02,
			want:       0.078 / 2.10,
		},
		{
			name:       "equal prices zero commission break even",
			back:       2.00,
			lay:        2.00,
			commission: 0,
			want:       0,
		},
		{
			name:       "equal prices lose the commission",
			back:       2.00,
			lay:        2.00,
			commission: 0.02,
			want:       -0.01,
		},
		{
			name:       "thin gap eaten by commission",
			back:       3.43,
			lay:        3.40,
			commission: 0.02,
			want:       -0.0186 / 3.43,
		},
		{
			name:       "no commission wide gap",
			back:       2.20,
			lay:        2.00,
			commission: 0,
			want:       0.20 / 2.20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NetMargin(tt.back, tt.lay, tt.commission)
			if math.Abs(got-tt.want) > tol {
				t.Errorf("NetMargin(%v, %v, %v) = %v, want %v", tt.back, tt.lay, tt.commission, got, tt.want)
			}
		})
	}
}

func TestNetMarginEqualPricesAlwaysNegative(t *testing.T) {
	for _, price := range []float64{1.01, 1.5, 2.0, 3.4, 10.0, 50.0} {
		if got := NetMargin(price, price, 0.02); got >= 0 {
			t.Errorf("NetMargin(%v, %v, 0.02) = %v, want < 0", price, price, got)
		}
	}
}

func TestNetMarginMonotonic(t *testing.T) {
	// Widening the back price with the lay fixed must only improve the
	// margin; raising the lay with the back fixed must only hurt it.
	prev := NetMargin(1.50, 2.00, 0.02)
	for back := 1.55; back <= 4.0; back += 0.05 {
		cur := NetMargin(back, 2.00, 0.02)
		if cur <= prev {
			t.Fatalf("margin not increasing in back price at %v: %v <= %v", back, cur, prev)
		}
		prev = cur
	}

	prev = NetMargin(2.50, 1.50, 0.02)
	for lay := 1.55; lay <= 4.0; lay += 0.05 {
		cur := NetMargin(2.50, lay, 0.02)
		if cur >= prev {
			t.Fatalf("margin not decreasing in lay price at %v: %v >= %v", lay, cur, prev)
		}
		prev = cur
	}
}

func TestHedgeStake(t *testing.T) {
	got := HedgeStake(5, 2.10, 2.00, 0.02)
	want := 10.5 / 1.98
	if math.Abs(got-want) > tol {
		t.Errorf("HedgeStake(5, 2.10, 2.00, 0.02) = %v, want %v", got, want)
	}
}

func TestHedgeStakeEqualProfit(t *testing.T) {
	// The hedge must equalize profit across both results. Commission is
	// charged on the lay side's payout, matching HedgeStake's denominator.
	tests := []struct {
		name       string
		backStake  float64
		back       float64
		lay        float64
		commission float64
	}{
		{name: "tight pair", backStake: 5, back: 2.10, lay: 2.00, commission: 0.02},
		{name: "longshot", backStake: 10, back: 8.40, lay: 8.00, commission: 0.02},
		{name: "odds-on", backStake: 25, back: 1.30, lay: 1.25, commission: 0.02},
		{name: "no commission", backStake: 5, back: 2.10, lay: 2.00, commission: 0},
		{name: "high commission", backStake: 7.5, back: 3.60, lay: 3.35, commission: 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hedge := HedgeStake(tt.backStake, tt.back, tt.lay, tt.commission)

			backWins := tt.backStake*(tt.back-1) - hedge*(tt.lay-1)
			backLoses := hedge*(1-tt.commission*(tt.lay-1)) - tt.backStake

			if math.Abs(backWins-backLoses) > tol {
				t.Errorf("profit not equal: back wins %v, back loses %v", backWins, backLoses)
			}
		})
	}
}

func TestPlanStakes(t *testing.T) {
	tests := []struct {
		name          string
		target        float64
		venueMin      float64
		venueMax      float64
		back          float64
		lay           float64
		layAvailable  float64
		wantBackStake float64
		wantLayStake  float64
		wantReduced   bool
	}{
		{
			name:          "full liquidity keeps target",
			target:        5,
			venueMin:      1,
			venueMax:      1000,
			back:          2.10,
			lay:           2.00,
			layAvailable:  500,
			wantBackStake: 5,
			wantLayStake:  10.5 / 1.98,
			wantReduced:   false,
		},
		{
			name:          "thin lay side scales the back stake down",
			target:        5,
			venueMin:      1,
			venueMax:      1000,
			back:          2.10,
			lay:           2.00,
			layAvailable:  3,
			wantBackStake: 5 * (3 / (10.5 / 1.98)) * 0.95,
			wantLayStake:  3 * 0.95,
			wantReduced:   true,
		},
		{
			name:          "clamped up to venue minimum",
			target:        5,
			venueMin:      10,
			venueMax:      1000,
			back:          2.10,
			lay:           2.00,
			layAvailable:  500,
			wantBackStake: 10,
			wantLayStake:  21.0 / 1.98,
			wantReduced:   false,
		},
		{
			name:          "clamped down to venue maximum",
			target:        50,
			venueMin:      1,
			venueMax:      20,
			back:          2.10,
			lay:           2.00,
			layAvailable:  500,
			wantBackStake: 20,
			wantLayStake:  42.0 / 1.98,
			wantReduced:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanStakes(tt.target, tt.venueMin, tt.venueMax, tt.back, tt.lay, tt.layAvailable, 0.02, 0.05)

			if math.Abs(plan.BackStake-tt.wantBackStake) > tol {
				t.Errorf("BackStake = %v, want %v", plan.BackStake, tt.wantBackStake)
			}
			if math.Abs(plan.LayStake-tt.wantLayStake) > tol {
				t.Errorf("LayStake = %v, want %v", plan.LayStake, tt.wantLayStake)
			}
			if plan.Reduced != tt.wantReduced {
				t.Errorf("Reduced = %v, want %v", plan.Reduced, tt.wantReduced)
			}
		})
	}
}

func TestPlanStakesNeverExceedsLiquidityBeforeReclamp(t *testing.T) {
	// With a sane venue minimum the scaled lay stake must sit under the
	// available size by the buffer.
	plan := PlanStakes(5, 1, 1000, 2.10, 2.00, 3, 0.02, 0.05)
	if !plan.Reduced {
		t.Fatal("expected plan to be reduced")
	}
	if plan.LayStake > 3 {
		t.Errorf("LayStake %v exceeds available liquidity 3", plan.LayStake)
	}
}

func TestImpliedProb(t *testing.T) {
	if got := ImpliedProb(2.0); math.Abs(got-0.5) > tol {
		t.Errorf("ImpliedProb(2.0) = %v, want 0.5", got)
	}
	if got := ImpliedProb(0); got != 0 {
		t.Errorf("ImpliedProb(0) = %v, want 0", got)
	}
}

func TestRoundStake(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{5.303030303, 5.30},
		{2.6871428571, 2.69},
		{2.005, 2.01},
		{5, 5},
	}
	for _, tt := range tests {
		if got := RoundStake(tt.in); math.Abs(got-tt.want) > tol {
			t.Errorf("RoundStake(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
