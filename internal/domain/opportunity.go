package domain

import (
	"fmt"
	"time"
)

// ArbitrageOpportunity is a priced market whose two sides cost less than
// one dollar combined. It is derived from a Market snapshot and never
// persisted on its own; only the detector constructs it.
type ArbitrageOpportunity struct {
	Market           Market    `json:"market"`
	YesPrice         float64   `json:"yes_price"`
	NoPrice          float64   `json:"no_price"`
	CombinedCost     float64   `json:"combined_cost"`
	ProfitPerShare   float64   `json:"profit_per_share"`
	ProfitPercentage float64   `json:"profit_percentage"`
	DetectedAt       time.Time `json:"detected_at"`
}

// String renders a one-line summary for logs.
func (o ArbitrageOpportunity) String() string {
	q := o.Market.Question
	if len(q) > 50 {
		q = q[:50] + "..."
	}
	return fmt.Sprintf("[ARB] %s | YES=$%.3f + NO=$%.3f = $%.3f | Profit: $%.3f (%.1f%%)",
		q, o.YesPrice, o.NoPrice, o.CombinedCost, o.ProfitPerShare, o.ProfitPercentage)
}
