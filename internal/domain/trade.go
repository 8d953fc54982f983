package domain

import "time"

// TradeSide is the direction of a single trade leg.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// PositionStatus tracks the lifecycle of a position.
type PositionStatus string

const (
	PositionStatusOpen     PositionStatus = "open"
	PositionStatusClosed   PositionStatus = "closed"
	PositionStatusResolved PositionStatus = "resolved"
)

// Trade is one executed leg of a dual-sided arbitrage entry. Trades are
// immutable once recorded and the trade list is append-only. The JSON tags
// define the on-disk ledger format read by the dashboard.
type Trade struct {
	ID             string    `json:"id"`
	MarketID       string    `json:"market_id"`
	MarketQuestion string    `json:"market_question"`
	TokenID        string    `json:"token_id"`
	Outcome        Outcome   `json:"outcome"`
	Side           TradeSide `json:"side"`
	Shares         float64   `json:"shares"`
	Price          float64   `json:"price"`
	Cost           float64   `json:"cost"`
	Timestamp      time.Time `json:"timestamp"`
}

// Position is the paired Yes+No holding opened against one market by one
// arbitrage execution. At most one position exists per market. After
// creation the only permitted mutation is resolution (status, closed_at,
// realized_profit).
type Position struct {
	ID             string         `json:"id"`
	MarketID       string         `json:"market_id"`
	MarketQuestion string         `json:"market_question"`
	YesShares      float64        `json:"yes_shares"`
	NoShares       float64        `json:"no_shares"`
	YesCost        float64        `json:"yes_cost"`
	NoCost         float64        `json:"no_cost"`
	TotalCost      float64        `json:"total_cost"`
	ExpectedProfit float64        `json:"expected_profit"`
	Status         PositionStatus `json:"status"`
	OpenedAt       time.Time      `json:"opened_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	RealizedProfit *float64       `json:"realized_profit,omitempty"`
}

// Shares is the number of complete share pairs in the position.
func (p *Position) Shares() float64 {
	if p.YesShares < p.NoShares {
		return p.YesShares
	}
	return p.NoShares
}

// TradingStats is a projection over the ledger, recomputed on demand and
// never stored.
type TradingStats struct {
	TotalTrades     int     `json:"total_trades"`
	TotalPositions  int     `json:"total_positions"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	TotalInvested   float64 `json:"total_invested"`
	TotalProfit     float64 `json:"total_profit"`
	WinRate         float64 `json:"win_rate"`
	CurrentBalance  float64 `json:"current_balance"`
}
