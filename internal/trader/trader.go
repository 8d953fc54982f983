// Package trader implements a paper-trading ledger: simulated executions
// against real market prices, persisted as JSON so runs survive restarts.
package trader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"polyarb/internal/domain"
)

// Config holds paper-trading parameters.
type Config struct {
	// InitialBalance is the simulated bankroll for a fresh ledger.
	InitialBalance float64

	// TradeSize is the dollar amount committed per opportunity, split
	// across both legs.
	TradeSize float64

	// TradesPath and PositionsPath are the JSON ledger files. Empty
	// paths disable persistence.
	TradesPath    string
	PositionsPath string
}

// ledgerFile is the on-disk shape of the trades file.
type ledgerFile struct {
	Trades  []domain.Trade `json:"trades"`
	Balance float64        `json:"balance"`
}

// PaperTrader executes simulated dual-sided entries and tracks the
// resulting positions. All methods are safe for concurrent use.
type PaperTrader struct {
	mu             sync.Mutex
	balance        float64
	initialBalance float64
	tradeSize      float64
	trades         []domain.Trade
	positions      map[string]domain.Position

	tradesPath    string
	positionsPath string
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a PaperTrader, loading any prior ledger state from disk.
// Unreadable or corrupt state files are logged and ignored so a damaged
// ledger never blocks trading.
func New(cfg Config, logger *slog.Logger) *PaperTrader {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 1000
	}
	if cfg.TradeSize <= 0 {
		cfg.TradeSize = 100
	}

	t := &PaperTrader{
		balance:        cfg.InitialBalance,
		initialBalance: cfg.InitialBalance,
		tradeSize:      cfg.TradeSize,
		positions:      make(map[string]domain.Position),
		tradesPath:     cfg.TradesPath,
		positionsPath:  cfg.PositionsPath,
		logger:         logger.With(slog.String("component", "trader")),
		now:            func() time.Time { return time.Now().UTC() },
	}
	t.load()
	return t
}

// Execute opens a paired Yes+No position against the opportunity's
// market. Returns domain.ErrPositionExists if a position for the market
// already exists in any status, or domain.ErrInsufficientBalance if the
// trade size exceeds the remaining balance.
func (t *PaperTrader) Execute(opp domain.ArbitrageOpportunity) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	marketID := opp.Market.ID
	if _, exists := t.positions[marketID]; exists {
		return domain.Position{}, fmt.Errorf("trader: execute %s: %w", marketID, domain.ErrPositionExists)
	}

	shares := t.tradeSize / opp.CombinedCost
	yesCost := shares * opp.YesPrice
	noCost := shares * opp.NoPrice
	total := yesCost + noCost
	if total > t.balance {
		return domain.Position{}, fmt.Errorf("trader: execute %s: need %.2f, have %.2f: %w",
			marketID, total, t.balance, domain.ErrInsufficientBalance)
	}

	now := t.now()
	yesToken, noToken := opp.Market.YesToken(), opp.Market.NoToken()

	legs := []domain.Trade{
		{
			ID:             uuid.NewString(),
			MarketID:       marketID,
			MarketQuestion: opp.Market.Question,
			TokenID:        yesToken.TokenID,
			Outcome:        domain.OutcomeYes,
			Side:           domain.TradeSideBuy,
			Shares:         shares,
			Price:          opp.YesPrice,
			Cost:           yesCost,
			Timestamp:      now,
		},
		{
			ID:             uuid.NewString(),
			MarketID:       marketID,
			MarketQuestion: opp.Market.Question,
			TokenID:        noToken.TokenID,
			Outcome:        domain.OutcomeNo,
			Side:           domain.TradeSideBuy,
			Shares:         shares,
			Price:          opp.NoPrice,
			Cost:           noCost,
			Timestamp:      now,
		},
	}

	pos := domain.Position{
		ID:             uuid.NewString(),
		MarketID:       marketID,
		MarketQuestion: opp.Market.Question,
		YesShares:      shares,
		NoShares:       shares,
		YesCost:        yesCost,
		NoCost:         noCost,
		TotalCost:      total,
		ExpectedProfit: shares * opp.ProfitPerShare,
		Status:         domain.PositionStatusOpen,
		OpenedAt:       now,
	}

	t.trades = append(t.trades, legs...)
	t.positions[marketID] = pos
	t.balance -= total
	t.persist()

	t.logger.Info("position opened",
		slog.String("market_id", marketID),
		slog.Float64("shares", shares),
		slog.Float64("cost", total),
		slog.Float64("expected_profit", pos.ExpectedProfit),
		slog.Float64("balance", t.balance))

	return pos, nil
}

// Resolve settles an open position: the winning side pays $1 per share,
// so the payout is the completed pair count regardless of which outcome
// won. Returns domain.ErrNotFound for an unknown market and
// domain.ErrPositionNotOpen if the position was already resolved or
// closed.
func (t *PaperTrader) Resolve(marketID string, winning domain.Outcome) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[marketID]
	if !ok {
		return domain.Position{}, fmt.Errorf("trader: resolve %s: %w", marketID, domain.ErrNotFound)
	}
	if pos.Status != domain.PositionStatusOpen {
		return domain.Position{}, fmt.Errorf("trader: resolve %s: status %s: %w",
			marketID, pos.Status, domain.ErrPositionNotOpen)
	}

	payout := pos.Shares() * 1.0
	profit := payout - pos.TotalCost
	closedAt := t.now()

	pos.Status = domain.PositionStatusResolved
	pos.ClosedAt = &closedAt
	pos.RealizedProfit = &profit
	t.positions[marketID] = pos
	t.balance += payout
	t.persist()

	t.logger.Info("position resolved",
		slog.String("market_id", marketID),
		slog.String("winning_outcome", string(winning)),
		slog.Float64("payout", payout),
		slog.Float64("realized_profit", profit),
		slog.Float64("balance", t.balance))

	return pos, nil
}

// Stats recomputes ledger statistics from current state.
func (t *PaperTrader) Stats() domain.TradingStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := domain.TradingStats{
		TotalTrades:    len(t.trades),
		TotalPositions: len(t.positions),
		CurrentBalance: t.balance,
	}

	var wins, settled int
	for _, pos := range t.positions {
		stats.TotalInvested += pos.TotalCost
		switch pos.Status {
		case domain.PositionStatusOpen:
			stats.OpenPositions++
		default:
			stats.ClosedPositions++
			settled++
			if pos.RealizedProfit != nil {
				stats.TotalProfit += *pos.RealizedProfit
				if *pos.RealizedProfit > 0 {
					wins++
				}
			}
		}
	}
	if settled > 0 {
		stats.WinRate = float64(wins) / float64(settled)
	}

	return stats
}

// OpenPositions returns open positions ordered oldest-first.
func (t *PaperTrader) OpenPositions() []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	var open []domain.Position
	for _, pos := range t.positions {
		if pos.Status == domain.PositionStatusOpen {
			open = append(open, pos)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].OpenedAt.Before(open[j].OpenedAt) })
	return open
}

// RecentTrades returns up to limit trades, newest last.
func (t *PaperTrader) RecentTrades(limit int) []domain.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.trades) {
		limit = len(t.trades)
	}
	out := make([]domain.Trade, limit)
	copy(out, t.trades[len(t.trades)-limit:])
	return out
}

// Reset wipes the ledger back to the initial balance and persists the
// empty state.
func (t *PaperTrader) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades = nil
	t.positions = make(map[string]domain.Position)
	t.balance = t.initialBalance
	t.persist()

	t.logger.Info("ledger reset", slog.Float64("balance", t.balance))
}

// --------------------------- Internal helpers ---------------------------

// load restores ledger state from disk. Caller must not hold the lock.
func (t *PaperTrader) load() {
	if t.tradesPath != "" {
		var lf ledgerFile
		if ok := readJSON(t.tradesPath, &lf, t.logger); ok {
			t.trades = lf.Trades
			t.balance = lf.Balance
		}
	}
	if t.positionsPath != "" {
		positions := make(map[string]domain.Position)
		if ok := readJSON(t.positionsPath, &positions, t.logger); ok {
			t.positions = positions
		}
	}
	if len(t.trades) > 0 || len(t.positions) > 0 {
		t.logger.Info("ledger restored",
			slog.Int("trades", len(t.trades)),
			slog.Int("positions", len(t.positions)),
			slog.Float64("balance", t.balance))
	}
}

// persist writes the ledger through to disk. Write failures are logged,
// not fatal: in-memory state stays authoritative. Caller holds the lock.
func (t *PaperTrader) persist() {
	if t.tradesPath != "" {
		lf := ledgerFile{Trades: t.trades, Balance: t.balance}
		if lf.Trades == nil {
			lf.Trades = []domain.Trade{}
		}
		writeJSON(t.tradesPath, lf, t.logger)
	}
	if t.positionsPath != "" {
		writeJSON(t.positionsPath, t.positions, t.logger)
	}
}

func readJSON(path string, v any, logger *slog.Logger) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("ledger file unreadable, starting fresh",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("ledger file corrupt, starting fresh",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return true
}

// writeJSON writes atomically via a temp file in the same directory.
func writeJSON(path string, v any, logger *slog.Logger) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("ledger encode failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		logger.Error("ledger write failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		logger.Error("ledger write failed", slog.String("path", path))
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		logger.Error("ledger write failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}
