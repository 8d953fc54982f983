// Package app provides the top-level application lifecycle for the
// arbitrage bot. It wires together the scanner, detector, paper trader,
// WebSocket subscription client, and opportunity log, and runs the scan
// loop in the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"polyarb/internal/arbitrage"
	"polyarb/internal/config"
	"polyarb/internal/domain"
	"polyarb/internal/platform/polymarket"
	"polyarb/internal/scanner"
	"polyarb/internal/store/sqlite"
	"polyarb/internal/trader"
)

// Status is a point-in-time snapshot of the running application, for
// external dashboards and one-shot CLI output.
type Status struct {
	Running   bool                `json:"running"`
	Mode      string              `json:"mode"`
	ScanCount int64               `json:"scan_count"`
	LastScan  time.Time           `json:"last_scan"`
	Trading   domain.TradingStats `json:"trading"`
	Scanner   scanner.Stats       `json:"scanner"`
	Detector  arbitrage.Stats     `json:"detector"`
	WS        *polymarket.WSStats `json:"ws,omitempty"`
}

// App is the root application object. It owns all subsystems and the
// token index that maps subscribed tokens back to their markets.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	scanner  *scanner.Scanner
	detector *arbitrage.Detector
	trader   *trader.PaperTrader
	ws       *polymarket.WSClient
	oppLog   *sqlite.OpportunityLog

	autoTrade bool

	// indexMu guards the token -> market index shared between the poll
	// loop and the push consumer. Entries point into shared Market
	// values, so price patches happen under this lock too.
	indexMu    sync.Mutex
	tokenIndex map[string]*domain.Market

	running   atomic.Bool
	scanCount atomic.Int64
	lastScan  atomic.Int64 // unix nanos
}

// New wires all subsystems from the configuration. The opportunity log
// database is created on the spot; the WebSocket client is only built
// for hybrid mode.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost)

	scn := scanner.New(gamma, clob, scanner.Config{
		MarketLimit:         cfg.Scanner.MarketLimit,
		PriceTTL:            cfg.Scanner.PriceTTL.Duration,
		MarketTTLMultiplier: cfg.Scanner.MarketTTLMultiplier,
		MaxInFlight:         int64(cfg.Scanner.MaxInFlight),
		Keywords:            cfg.Scanner.Keywords,
	}, logger)

	det := arbitrage.New(arbitrage.Config{
		MinProfitMargin:     cfg.Detector.MinProfitMargin,
		MinVolume:           cfg.Detector.MinVolume,
		MinLiquidity:        cfg.Detector.MinLiquidity,
		MaxDaysToResolution: cfg.Detector.MaxDaysToResolution,
	})

	trd := trader.New(trader.Config{
		InitialBalance: cfg.Trader.InitialBalance,
		TradeSize:      cfg.Trader.TradeSize,
		TradesPath:     cfg.Trader.TradesPath,
		PositionsPath:  cfg.Trader.PositionsPath,
	}, logger)

	oppLog, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open opportunity log: %w", err)
	}

	a := &App{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "app")),
		scanner:    scn,
		detector:   det,
		trader:     trd,
		oppLog:     oppLog,
		autoTrade:  cfg.Trader.AutoExecute,
		tokenIndex: make(map[string]*domain.Market),
	}

	if strings.ToLower(cfg.Mode) == "hybrid" {
		a.ws = polymarket.NewWSClient(cfg.Polymarket.WsHost, cfg.Subscription.BufferSize, logger)
		a.ws.SetBackoff(cfg.Subscription.BackoffFloor.Duration, cfg.Subscription.BackoffCeiling.Duration)
	}

	return a, nil
}

// Trader exposes the paper-trading ledger (for CLI reset and status).
func (a *App) Trader() *trader.PaperTrader { return a.trader }

// Run starts the scan loop for the configured mode and blocks until the
// context is cancelled. A cancelled context is a clean shutdown, not an
// error.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("auto_execute", a.autoTrade),
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration),
	)

	a.running.Store(true)
	defer a.running.Store(false)

	var err error
	switch strings.ToLower(a.cfg.Mode) {
	case "poll":
		err = a.pollMode(ctx)
	case "hybrid":
		err = a.hybridMode(ctx)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunOnce performs a single scan cycle and returns, for the -once flag.
func (a *App) RunOnce(ctx context.Context) error {
	a.running.Store(true)
	defer a.running.Store(false)
	return a.scanCycle(ctx)
}

// Close releases the opportunity log and, in hybrid mode, the WebSocket
// connection. Safe to call after Run returns.
func (a *App) Close() {
	if a.ws != nil {
		a.ws.Close()
	}
	if err := a.oppLog.Close(); err != nil {
		a.logger.Warn("closing opportunity log", slog.String("error", err.Error()))
	}
	a.logger.Info("application shut down")
}

// Status returns a snapshot of all subsystem counters.
func (a *App) Status() Status {
	s := Status{
		Running:   a.running.Load(),
		Mode:      a.cfg.Mode,
		ScanCount: a.scanCount.Load(),
		Trading:   a.trader.Stats(),
		Scanner:   a.scanner.Stats(),
		Detector:  a.detector.Stats(),
	}
	if ns := a.lastScan.Load(); ns > 0 {
		s.LastScan = time.Unix(0, ns).UTC()
	}
	if a.ws != nil {
		ws := a.ws.Stats()
		s.WS = &ws
	}
	return s
}

// pollMode runs a full scan cycle every scanner interval.
func (a *App) pollMode(ctx context.Context) error {
	interval := a.cfg.Scanner.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := a.scanCycle(ctx); err != nil {
		a.logger.WarnContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.scanCycle(ctx); err != nil {
				a.logger.WarnContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// hybridMode runs the poll loop at a relaxed cadence while the WebSocket
// listener delivers price changes between scans. Polling keeps the
// market universe and subscriptions fresh; pushes cover the gap.
func (a *App) hybridMode(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ws.Listen(ctx)
	})

	g.Go(func() error {
		return a.consumeUpdates(ctx)
	})

	g.Go(func() error {
		interval := 2 * a.cfg.Scanner.Interval.Duration
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := a.scanCycle(ctx); err != nil {
			a.logger.WarnContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.scanCycle(ctx); err != nil {
					a.logger.WarnContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	return g.Wait()
}

// scanCycle is one full pass: fetch priced markets, refresh the token
// index and subscriptions, detect, log, and execute.
func (a *App) scanCycle(ctx context.Context) error {
	markets, err := a.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	a.scanCount.Add(1)
	a.lastScan.Store(time.Now().UnixNano())

	newTokens := a.refreshIndex(markets)
	if a.ws != nil && len(newTokens) > 0 {
		if err := a.ws.Subscribe(ctx, newTokens); err != nil {
			a.logger.Debug("subscribe failed",
				slog.Int("tokens", len(newTokens)),
				slog.String("error", err.Error()))
		}
	}

	ranked := a.detector.ScanMarkets(time.Now().UTC(), markets)
	if len(ranked) > 0 {
		a.logger.InfoContext(ctx, "opportunities detected", slog.Int("count", len(ranked)))
	}
	for _, r := range ranked {
		a.handleOpportunity(ctx, r.Opportunity, r.Score)
	}
	return nil
}

// consumeUpdates drains the WebSocket update channel: patch the indexed
// market's price, re-detect, and run the same log/execute path as the
// poll loop.
func (a *App) consumeUpdates(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-a.ws.Updates():
			if !ok {
				return nil
			}
			m, ok := a.patchPrice(update.TokenID, update.Price)
			if !ok {
				continue
			}
			opp, ok := a.detector.Detect(m)
			if !ok {
				continue
			}
			a.handleOpportunity(ctx, opp, a.detector.Score(time.Now().UTC(), opp))
		}
	}
}

// handleOpportunity logs the opportunity and, when auto-trading, tries
// to open a position. Duplicate-position and balance rejections are
// expected in steady state and only logged at debug.
func (a *App) handleOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity, score float64) {
	a.logger.InfoContext(ctx, opp.String(), slog.Float64("score", score))

	if err := a.oppLog.Append(ctx, opp, score); err != nil {
		a.logger.WarnContext(ctx, "opportunity log append failed", slog.String("error", err.Error()))
	}

	if !a.autoTrade {
		return
	}
	_, err := a.trader.Execute(opp)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPositionExists), errors.Is(err, domain.ErrInsufficientBalance):
		a.logger.Debug("execution skipped",
			slog.String("market_id", opp.Market.ID),
			slog.String("reason", err.Error()))
	default:
		a.logger.WarnContext(ctx, "execution failed",
			slog.String("market_id", opp.Market.ID),
			slog.String("error", err.Error()))
	}
}

// --------------------------- Internal helpers ---------------------------

// refreshIndex replaces index entries for the scanned markets and
// returns token IDs seen for the first time.
func (a *App) refreshIndex(markets []domain.Market) []string {
	a.indexMu.Lock()
	defer a.indexMu.Unlock()

	var added []string
	for i := range markets {
		// Index-owned copy shared by both token entries. The token slice
		// must be detached: pushed prices are written through the index
		// while the caller is still reading the scanned markets.
		m := markets[i]
		m.Tokens = append([]domain.Token(nil), m.Tokens...)
		for _, tokenID := range m.TokenIDs() {
			if _, seen := a.tokenIndex[tokenID]; !seen {
				added = append(added, tokenID)
			}
			a.tokenIndex[tokenID] = &m
		}
	}
	return added
}

// patchPrice applies a pushed price to the indexed market and returns a
// detached copy safe to hand to the detector.
func (a *App) patchPrice(tokenID string, price float64) (domain.Market, bool) {
	a.indexMu.Lock()
	defer a.indexMu.Unlock()

	m, ok := a.tokenIndex[tokenID]
	if !ok {
		return domain.Market{}, false
	}
	m.SetPrice(tokenID, price)

	out := *m
	out.Tokens = append([]domain.Token(nil), m.Tokens...)
	return out, true
}
