package arbitrage

import (
	"math"
	"testing"
	"time"

	"polyarb/internal/domain"
)

func pricedMarket(id string, yes, no float64) domain.Market {
	return domain.Market{
		ID:        id,
		Question:  "test market " + id,
		Volume:    50000,
		Liquidity: 20000,
		Tokens: []domain.Token{
			{TokenID: id + "-yes", Outcome: domain.OutcomeYes, Price: yes},
			{TokenID: id + "-no", Outcome: domain.OutcomeNo, Price: no},
		},
	}
}

func TestDetect(t *testing.T) {
	d := New(Config{})

	tests := []struct {
		name string
		yes  float64
		no   float64
		want bool
	}{
		{"clear spread", 0.48, 0.49, true},
		{"fair market", 0.50, 0.50, false},
		{"spread below margin", 0.495, 0.50, false},
		{"spread at margin", 0.49, 0.50, true},
		{"yes price zero", 0, 0.49, false},
		{"yes price one", 1, 0.49, false},
		{"no price negative", 0.48, -0.1, false},
		{"no price above one", 0.48, 1.2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := d.Detect(pricedMarket("m1", tt.yes, tt.no))
			if ok != tt.want {
				t.Errorf("Detect(yes=%v, no=%v) = %v, want %v", tt.yes, tt.no, ok, tt.want)
			}
		})
	}
}

func TestDetectArithmetic(t *testing.T) {
	d := New(Config{})
	opp, ok := d.Detect(pricedMarket("m1", 0.48, 0.49))
	if !ok {
		t.Fatal("expected opportunity")
	}

	if math.Abs(opp.CombinedCost-0.97) > 1e-9 {
		t.Errorf("CombinedCost = %v, want 0.97", opp.CombinedCost)
	}
	if math.Abs(opp.ProfitPerShare-0.03) > 1e-9 {
		t.Errorf("ProfitPerShare = %v, want 0.03", opp.ProfitPerShare)
	}
	if math.Abs(opp.ProfitPercentage-3.0927835051546393) > 1e-9 {
		t.Errorf("ProfitPercentage = %v, want ~3.0928", opp.ProfitPercentage)
	}
	if opp.DetectedAt.IsZero() {
		t.Error("DetectedAt not set")
	}
}

func TestScanMarketsFilters(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d := New(Config{MaxDaysToResolution: 30})

	thin := pricedMarket("thin", 0.4, 0.4)
	thin.Volume = 100

	farOut := pricedMarket("far", 0.4, 0.4)
	end := now.AddDate(0, 0, 90)
	farOut.EndDate = &end

	good := pricedMarket("good", 0.4, 0.4)
	soon := now.AddDate(0, 0, 3)
	good.EndDate = &soon

	noEnd := pricedMarket("noend", 0.4, 0.4)

	ranked := d.ScanMarkets(now, []domain.Market{thin, farOut, good, noEnd})
	if len(ranked) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(ranked))
	}

	stats := d.Stats()
	if stats.FilteredLowVolume != 1 {
		t.Errorf("FilteredLowVolume = %d, want 1", stats.FilteredLowVolume)
	}
	if stats.FilteredByTime != 1 {
		t.Errorf("FilteredByTime = %d, want 1", stats.FilteredByTime)
	}
	if stats.Found != 2 {
		t.Errorf("Found = %d, want 2", stats.Found)
	}
	if stats.MinVolume != 10000 || stats.MaxDaysToResolution != 30 {
		t.Errorf("thresholds = %v/%v, want 10000/30", stats.MinVolume, stats.MaxDaysToResolution)
	}
}

func TestScanMarketsOrdering(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d := New(Config{})

	// Wider spread scores higher with identical volume and liquidity.
	small := pricedMarket("zz-small", 0.49, 0.50)
	big := pricedMarket("aa-big", 0.40, 0.40)

	ranked := d.ScanMarkets(now, []domain.Market{small, big})
	if len(ranked) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(ranked))
	}
	if ranked[0].Opportunity.Market.ID != "aa-big" {
		t.Errorf("best-first = %s, want aa-big", ranked[0].Opportunity.Market.ID)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("scores not descending: %v then %v", ranked[0].Score, ranked[1].Score)
	}

	// Identical markets apart from ID tie-break ascending.
	a := pricedMarket("m-a", 0.4, 0.4)
	b := pricedMarket("m-b", 0.4, 0.4)
	ranked = d.ScanMarkets(now, []domain.Market{b, a})
	if ranked[0].Opportunity.Market.ID != "m-a" {
		t.Errorf("tie-break order = %s, want m-a", ranked[0].Opportunity.Market.ID)
	}
}

func TestTimeBoost(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	at := func(days float64) *time.Time {
		e := now.Add(time.Duration(days * 24 * float64(time.Hour)))
		return &e
	}

	tests := []struct {
		name string
		end  *time.Time
		want float64
	}{
		{"no end date", nil, 0},
		{"already past", at(-1), 0},
		{"week out", at(7), 0},
		{"four days out", at(4), 0.5},
		{"one day out", at(1), 1},
		{"hours out", at(0.25), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeBoost(now, tt.end)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("timeBoost = %v, want %v", got, tt.want)
			}
		})
	}
}
