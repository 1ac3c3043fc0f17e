package betfair

import "testing"

func TestRunnerBestLay(t *testing.T) {
	tests := []struct {
		name      string
		runner    Runner
		wantPrice float64
		wantSize  float64
	}{
		{
			name: "ladder present",
			runner: Runner{EX: &ExchangePrices{
				AvailableToLay: []PriceSize{{Price: 2.12, Size: 90}, {Price: 2.14, Size: 250}},
			}},
			wantPrice: 2.12,
			wantSize:  90,
		},
		{
			name:   "empty ladder",
			runner: Runner{EX: &ExchangePrices{}},
		},
		{
			name:   "no exchange prices",
			runner: Runner{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, size := tt.runner.BestLay()
			if price != tt.wantPrice || size != tt.wantSize {
				t.Errorf("BestLay() = (%v, %v), want (%v, %v)", price, size, tt.wantPrice, tt.wantSize)
			}
		})
	}
}

func TestRunnerBestBack(t *testing.T) {
	r := Runner{EX: &ExchangePrices{
		AvailableToBack: []PriceSize{{Price: 2.10, Size: 140}},
	}}
	price, size := r.BestBack()
	if price != 2.10 || size != 140 {
		t.Errorf("BestBack() = (%v, %v), want (2.10, 140)", price, size)
	}
}

func TestMarketBookFindRunner(t *testing.T) {
	book := MarketBook{
		MarketID: "1.234",
		Runners: []Runner{
			{SelectionID: 47972, Status: "ACTIVE"},
			{SelectionID: 58805, Status: "ACTIVE"},
			{SelectionID: 58806, Status: "REMOVED"},
		},
	}

	if r := book.FindRunner(58805); r == nil || r.SelectionID != 58805 {
		t.Fatalf("FindRunner(58805) = %+v, want selection 58805", r)
	}
	if r := book.FindRunner(99999); r != nil {
		t.Errorf("FindRunner(99999) = %+v, want nil", r)
	}
}
