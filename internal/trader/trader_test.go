package trader

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"polyarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpportunity(marketID string, yes, no float64) domain.ArbitrageOpportunity {
	combined := yes + no
	return domain.ArbitrageOpportunity{
		Market: domain.Market{
			ID:       marketID,
			Question: "test market " + marketID,
			Tokens: []domain.Token{
				{TokenID: marketID + "-yes", Outcome: domain.OutcomeYes, Price: yes},
				{TokenID: marketID + "-no", Outcome: domain.OutcomeNo, Price: no},
			},
		},
		YesPrice:         yes,
		NoPrice:          no,
		CombinedCost:     combined,
		ProfitPerShare:   1 - combined,
		ProfitPercentage: (1 - combined) / combined * 100,
		DetectedAt:       time.Now().UTC(),
	}
}

func newTestTrader(t *testing.T, cfg Config) *PaperTrader {
	t.Helper()
	if cfg.TradesPath == "" && cfg.PositionsPath == "" {
		dir := t.TempDir()
		cfg.TradesPath = filepath.Join(dir, "trades.json")
		cfg.PositionsPath = filepath.Join(dir, "positions.json")
	}
	return New(cfg, testLogger())
}

func TestExecuteOpensPosition(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 1000, TradeSize: 100})

	pos, err := tr.Execute(testOpportunity("m1", 0.48, 0.49))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantShares := 100.0 / 0.97
	if math.Abs(pos.YesShares-wantShares) > 1e-9 || math.Abs(pos.NoShares-wantShares) > 1e-9 {
		t.Errorf("shares = %v/%v, want %v", pos.YesShares, pos.NoShares, wantShares)
	}
	if math.Abs(pos.TotalCost-100) > 1e-9 {
		t.Errorf("TotalCost = %v, want 100", pos.TotalCost)
	}
	if math.Abs(pos.ExpectedProfit-wantShares*0.03) > 1e-9 {
		t.Errorf("ExpectedProfit = %v, want %v", pos.ExpectedProfit, wantShares*0.03)
	}
	if pos.Status != domain.PositionStatusOpen {
		t.Errorf("Status = %s, want open", pos.Status)
	}

	stats := tr.Stats()
	if stats.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", stats.TotalTrades)
	}
	if stats.OpenPositions != 1 {
		t.Errorf("OpenPositions = %d, want 1", stats.OpenPositions)
	}
	if math.Abs(stats.CurrentBalance-900) > 1e-9 {
		t.Errorf("CurrentBalance = %v, want 900", stats.CurrentBalance)
	}
}

func TestExecuteRejectsDuplicateMarket(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 1000, TradeSize: 100})

	if _, err := tr.Execute(testOpportunity("m1", 0.48, 0.49)); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	_, err := tr.Execute(testOpportunity("m1", 0.40, 0.40))
	if !errors.Is(err, domain.ErrPositionExists) {
		t.Fatalf("second Execute err = %v, want ErrPositionExists", err)
	}

	// Still rejected after resolution.
	if _, err := tr.Resolve("m1", domain.OutcomeYes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, err = tr.Execute(testOpportunity("m1", 0.40, 0.40))
	if !errors.Is(err, domain.ErrPositionExists) {
		t.Fatalf("post-resolve Execute err = %v, want ErrPositionExists", err)
	}
}

func TestExecuteRejectsInsufficientBalance(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 50, TradeSize: 100})

	_, err := tr.Execute(testOpportunity("m1", 0.48, 0.49))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := tr.Stats(); got.TotalTrades != 0 || got.CurrentBalance != 50 {
		t.Errorf("failed execute mutated ledger: %+v", got)
	}
}

func TestResolvePaysMinimumSide(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 1000, TradeSize: 100})

	if _, err := tr.Execute(testOpportunity("m1", 0.48, 0.49)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	pos, err := tr.Resolve("m1", domain.OutcomeYes)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	wantPayout := 100.0 / 0.97
	if pos.RealizedProfit == nil {
		t.Fatal("RealizedProfit not set")
	}
	if math.Abs(*pos.RealizedProfit-(wantPayout-100)) > 1e-9 {
		t.Errorf("RealizedProfit = %v, want %v", *pos.RealizedProfit, wantPayout-100)
	}
	if pos.Status != domain.PositionStatusResolved || pos.ClosedAt == nil {
		t.Errorf("position not marked resolved: %+v", pos)
	}

	stats := tr.Stats()
	if math.Abs(stats.CurrentBalance-(900+wantPayout)) > 1e-9 {
		t.Errorf("CurrentBalance = %v, want %v", stats.CurrentBalance, 900+wantPayout)
	}
	if stats.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", stats.WinRate)
	}
	// Invested capital is counted across all positions, resolved included.
	if math.Abs(stats.TotalInvested-100) > 1e-9 {
		t.Errorf("TotalInvested = %v, want 100", stats.TotalInvested)
	}
}

func TestResolveErrors(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 1000, TradeSize: 100})

	_, err := tr.Resolve("nope", domain.OutcomeYes)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown market err = %v, want ErrNotFound", err)
	}

	if _, err := tr.Execute(testOpportunity("m1", 0.48, 0.49)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := tr.Resolve("m1", domain.OutcomeYes); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	balance := tr.Stats().CurrentBalance

	_, err = tr.Resolve("m1", domain.OutcomeYes)
	if !errors.Is(err, domain.ErrPositionNotOpen) {
		t.Fatalf("second Resolve err = %v, want ErrPositionNotOpen", err)
	}
	if got := tr.Stats().CurrentBalance; got != balance {
		t.Errorf("double resolve changed balance: %v -> %v", balance, got)
	}
}

func TestResetRestoresInitialBalance(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 1000, TradeSize: 100})

	if _, err := tr.Execute(testOpportunity("m1", 0.48, 0.49)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := tr.Resolve("m1", domain.OutcomeYes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	tr.Reset()
	stats := tr.Stats()
	if stats.TotalTrades != 0 || stats.TotalPositions != 0 {
		t.Errorf("reset left ledger entries: %+v", stats)
	}
	if stats.CurrentBalance != 1000 {
		t.Errorf("CurrentBalance = %v, want 1000", stats.CurrentBalance)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		InitialBalance: 1000,
		TradeSize:      100,
		TradesPath:     filepath.Join(dir, "trades.json"),
		PositionsPath:  filepath.Join(dir, "positions.json"),
	}

	first := New(cfg, testLogger())
	if _, err := first.Execute(testOpportunity("m1", 0.48, 0.49)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := first.Execute(testOpportunity("m2", 0.45, 0.45)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := first.Resolve("m2", domain.OutcomeNo); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := first.Stats()

	second := New(cfg, testLogger())
	got := second.Stats()
	if got.TotalTrades != want.TotalTrades ||
		got.TotalPositions != want.TotalPositions ||
		got.OpenPositions != want.OpenPositions ||
		math.Abs(got.CurrentBalance-want.CurrentBalance) > 1e-9 {
		t.Errorf("restored stats = %+v, want %+v", got, want)
	}

	// The restored ledger still enforces the one-position-per-market rule.
	_, err := second.Execute(testOpportunity("m1", 0.40, 0.40))
	if !errors.Is(err, domain.ErrPositionExists) {
		t.Errorf("restored Execute err = %v, want ErrPositionExists", err)
	}
}

func TestRecentTrades(t *testing.T) {
	tr := newTestTrader(t, Config{InitialBalance: 1000, TradeSize: 100})
	for _, id := range []string{"m1", "m2", "m3"} {
		if _, err := tr.Execute(testOpportunity(id, 0.48, 0.49)); err != nil {
			t.Fatalf("Execute %s: %v", id, err)
		}
	}

	got := tr.RecentTrades(2)
	if len(got) != 2 {
		t.Fatalf("got %d trades, want 2", len(got))
	}
	if got[0].MarketID != "m3" || got[1].MarketID != "m3" {
		t.Errorf("expected the two newest trades (m3 legs), got %s/%s", got[0].MarketID, got[1].MarketID)
	}
	if all := tr.RecentTrades(0); len(all) != 6 {
		t.Errorf("RecentTrades(0) = %d trades, want all 6", len(all))
	}
}
