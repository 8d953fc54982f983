// Package arbitrage detects intra-market arbitrage on binary markets:
// when the YES and NO buy prices sum to less than $1, buying both sides
// locks in the difference at resolution.
package arbitrage

import (
	"math"
	"sort"
	"sync/atomic"
	"time"

	"polyarb/internal/domain"
)

// Config holds detection thresholds.
type Config struct {
	// MinProfitMargin is the minimum 1 - (yes + no) gap, in dollars per
	// share, for a spread to count as an opportunity.
	MinProfitMargin float64

	// MinVolume and MinLiquidity gate markets likely too thin to fill.
	MinVolume    float64
	MinLiquidity float64

	// MaxDaysToResolution, when positive, drops markets resolving
	// further out than this many days. Capital locked until resolution
	// is capital not compounding.
	MaxDaysToResolution float64
}

// Stats is a snapshot of detector counters and active thresholds.
type Stats struct {
	Found               int64   `json:"found"`
	FilteredLowVolume   int64   `json:"filtered_low_volume"`
	FilteredByTime      int64   `json:"filtered_by_time"`
	MinProfitMargin     float64 `json:"min_profit_margin"`
	MinVolume           float64 `json:"min_volume"`
	MinLiquidity        float64 `json:"min_liquidity"`
	MaxDaysToResolution float64 `json:"max_days_to_resolution"`
}

// Detector finds and ranks arbitrage opportunities.
type Detector struct {
	cfg Config

	found             atomic.Int64
	filteredLowVolume atomic.Int64
	filteredByTime    atomic.Int64
}

// New creates a Detector. Zero-valued thresholds get sane defaults;
// MaxDaysToResolution stays zero, meaning no time filter.
func New(cfg Config) *Detector {
	if cfg.MinProfitMargin <= 0 {
		cfg.MinProfitMargin = 0.01
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 10000
	}
	if cfg.MinLiquidity <= 0 {
		cfg.MinLiquidity = 1000
	}
	return &Detector{cfg: cfg}
}

// Detect checks a single market for an arbitrage spread. It is pure:
// no I/O, no counters, no clock. Returns false when either price is
// outside (0, 1) or the spread is below the configured margin.
func (d *Detector) Detect(m domain.Market) (domain.ArbitrageOpportunity, bool) {
	yes, no := m.YesPrice(), m.NoPrice()
	if yes <= 0 || yes >= 1 || no <= 0 || no >= 1 {
		return domain.ArbitrageOpportunity{}, false
	}

	combined := yes + no
	profit := 1 - combined
	if profit < d.cfg.MinProfitMargin {
		return domain.ArbitrageOpportunity{}, false
	}

	return domain.ArbitrageOpportunity{
		Market:           m,
		YesPrice:         yes,
		NoPrice:          no,
		CombinedCost:     combined,
		ProfitPerShare:   profit,
		ProfitPercentage: profit / combined * 100,
		DetectedAt:       time.Now().UTC(),
	}, true
}

// Score ranks an opportunity for execution priority. Profit percentage
// is weighted by volume and liquidity on log scales, with a boost for
// markets resolving soon.
func (d *Detector) Score(now time.Time, opp domain.ArbitrageOpportunity) float64 {
	volF := math.Min(math.Log10(opp.Market.Volume+1)/6, 1)
	liqF := math.Min(math.Log10(opp.Market.Liquidity+1)/5, 1)
	base := opp.ProfitPercentage * (0.4 + 0.3*volF + 0.3*liqF)
	return base + 2*timeBoost(now, opp.Market.EndDate)
}

// Ranked pairs an opportunity with its score.
type Ranked struct {
	Opportunity domain.ArbitrageOpportunity
	Score       float64
}

// ScanMarkets runs detection across a market batch, applies the volume,
// liquidity, and time-to-resolution filters, and returns survivors
// ranked best-first. Ordering is deterministic: score descending, then
// profit percentage descending, then market ID ascending.
func (d *Detector) ScanMarkets(now time.Time, markets []domain.Market) []Ranked {
	var ranked []Ranked
	for _, m := range markets {
		if m.Volume < d.cfg.MinVolume || m.Liquidity < d.cfg.MinLiquidity {
			d.filteredLowVolume.Add(1)
			continue
		}
		if d.cfg.MaxDaysToResolution > 0 && !withinResolutionWindow(now, m.EndDate, d.cfg.MaxDaysToResolution) {
			d.filteredByTime.Add(1)
			continue
		}
		opp, ok := d.Detect(m)
		if !ok {
			continue
		}
		d.found.Add(1)
		ranked = append(ranked, Ranked{Opportunity: opp, Score: d.Score(now, opp)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		pi, pj := ranked[i].Opportunity.ProfitPercentage, ranked[j].Opportunity.ProfitPercentage
		if pi != pj {
			return pi > pj
		}
		return ranked[i].Opportunity.Market.ID < ranked[j].Opportunity.Market.ID
	})

	return ranked
}

// Stats returns a snapshot of detection counters.
func (d *Detector) Stats() Stats {
	return Stats{
		Found:               d.found.Load(),
		FilteredLowVolume:   d.filteredLowVolume.Load(),
		FilteredByTime:      d.filteredByTime.Load(),
		MinProfitMargin:     d.cfg.MinProfitMargin,
		MinVolume:           d.cfg.MinVolume,
		MinLiquidity:        d.cfg.MinLiquidity,
		MaxDaysToResolution: d.cfg.MaxDaysToResolution,
	}
}

// timeBoost scales linearly from 0 for markets resolving in 7 or more
// days to 1 for markets resolving within a day. Markets with no end
// date, or already past it, get no boost.
func timeBoost(now time.Time, endDate *time.Time) float64 {
	if endDate == nil || !endDate.After(now) {
		return 0
	}
	days := endDate.Sub(now).Hours() / 24
	switch {
	case days >= 7:
		return 0
	case days <= 1:
		return 1
	default:
		return (7 - days) / 6
	}
}

func withinResolutionWindow(now time.Time, endDate *time.Time, maxDays float64) bool {
	if endDate == nil {
		// Unknown resolution dates pass; the filter targets markets
		// known to be far out, not missing metadata.
		return true
	}
	if !endDate.After(now) {
		return false
	}
	return endDate.Sub(now).Hours()/24 <= maxDays
}
