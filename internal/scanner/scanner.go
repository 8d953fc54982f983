// Package scanner fetches markets and prices from the Polymarket APIs,
// caching both behind TTLs so tight scan loops stay cheap.
package scanner

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"polyarb/internal/cache"
	"polyarb/internal/domain"
)

// marketsCacheKey is the single key under which the market list is cached.
const marketsCacheKey = "markets"

// MarketLister lists tradeable markets. Satisfied by *polymarket.GammaClient.
type MarketLister interface {
	ListMarkets(ctx context.Context, limit int) (markets []domain.Market, skipped int, err error)
}

// PriceFetcher fetches the current buy price for a single token.
// Satisfied by *polymarket.ClobClient.
type PriceFetcher interface {
	GetPrice(ctx context.Context, tokenID string) (float64, error)
}

// Config holds scanner tuning knobs.
type Config struct {
	// MarketLimit caps how many markets are requested per fetch.
	MarketLimit int

	// PriceTTL is how long a fetched price stays fresh.
	PriceTTL time.Duration

	// MarketTTLMultiplier scales PriceTTL for the market list, which
	// changes far more slowly than prices.
	MarketTTLMultiplier int

	// MaxInFlight bounds concurrent price requests against the CLOB API.
	MaxInFlight int64

	// Keywords optionally restricts markets to those whose question
	// contains at least one keyword (case-insensitive). Empty means all.
	Keywords []string
}

// Stats is a point-in-time snapshot of scanner counters.
type Stats struct {
	APICalls         int64         `json:"api_calls"`
	CacheHits        int64         `json:"cache_hits"`
	PriceCacheSize   int           `json:"price_cache_size"`
	LastScanDuration time.Duration `json:"last_scan_duration"`
}

// Scanner fetches and caches market and price data.
type Scanner struct {
	gamma  MarketLister
	clob   PriceFetcher
	cfg    Config
	logger *slog.Logger

	keywords []string // upper-cased

	markets *cache.Cache[[]domain.Market]
	prices  *cache.Cache[float64]
	sem     *semaphore.Weighted

	// lastMarkets retains the most recent successful fetch past its TTL
	// so a transient network failure degrades to stale data, not none.
	lastMu      sync.Mutex
	lastMarkets []domain.Market

	apiCalls     atomic.Int64
	cacheHits    atomic.Int64
	lastScanNano atomic.Int64
}

// New creates a Scanner. Zero-valued config fields get sane defaults.
func New(gamma MarketLister, clob PriceFetcher, cfg Config, logger *slog.Logger) *Scanner {
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = 100
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = 10 * time.Second
	}
	if cfg.MarketTTLMultiplier <= 0 {
		cfg.MarketTTLMultiplier = 5
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 64
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}

	return &Scanner{
		gamma:    gamma,
		clob:     clob,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scanner")),
		keywords: keywords,
		markets:  cache.New[[]domain.Market](),
		prices:   cache.New[float64](),
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// FetchMarkets returns the current market list, served from cache while
// fresh. A non-positive limit falls back to the configured one. On a
// network failure it falls back to the last successful result, which may
// be empty.
func (s *Scanner) FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	if cached, ok := s.markets.Get(marketsCacheKey); ok {
		s.cacheHits.Add(1)
		return cached, nil
	}
	if limit <= 0 {
		limit = s.cfg.MarketLimit
	}

	s.apiCalls.Add(1)
	fetched, skipped, err := s.gamma.ListMarkets(ctx, limit)
	if err != nil {
		s.lastMu.Lock()
		stale := s.lastMarkets
		s.lastMu.Unlock()
		s.logger.Warn("market fetch failed, serving stale data",
			slog.Int("stale_count", len(stale)),
			slog.String("error", err.Error()))
		return stale, nil
	}
	if skipped > 0 {
		s.logger.Debug("skipped unparseable markets", slog.Int("skipped", skipped))
	}

	filtered := s.filterKeywords(fetched)

	ttl := s.cfg.PriceTTL * time.Duration(s.cfg.MarketTTLMultiplier)
	s.markets.Put(marketsCacheKey, filtered, ttl)
	s.lastMu.Lock()
	s.lastMarkets = filtered
	s.lastMu.Unlock()

	return filtered, nil
}

// FetchPrices returns buy prices for the given tokens, serving cached
// values where fresh and fetching the rest concurrently. A token whose
// fetch fails maps to 0.0 and is not cached, so detection skips it and
// the next cycle retries.
func (s *Scanner) FetchPrices(ctx context.Context, tokenIDs []string) map[string]float64 {
	results := make(map[string]float64, len(tokenIDs))
	var misses []string
	for _, id := range tokenIDs {
		if p, ok := s.prices.Get(id); ok {
			s.cacheHits.Add(1)
			results[id] = p
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range misses {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[id] = 0
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer s.sem.Release(1)

			s.apiCalls.Add(1)
			price, err := s.clob.GetPrice(ctx, id)
			if err != nil {
				s.logger.Debug("price fetch failed",
					slog.String("token_id", id),
					slog.String("error", err.Error()))
				price = 0
			} else {
				s.prices.Put(id, price, s.cfg.PriceTTL)
			}

			mu.Lock()
			results[id] = price
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return results
}

// Scan fetches markets, hydrates them with current prices, and returns
// only markets where both sides have a positive price.
func (s *Scanner) Scan(ctx context.Context) ([]domain.Market, error) {
	start := time.Now()

	markets, err := s.FetchMarkets(ctx, s.cfg.MarketLimit)
	if err != nil {
		return nil, err
	}

	var tokenIDs []string
	for i := range markets {
		tokenIDs = append(tokenIDs, markets[i].TokenIDs()...)
	}
	prices := s.FetchPrices(ctx, tokenIDs)

	priced := make([]domain.Market, 0, len(markets))
	for i := range markets {
		m := markets[i]
		m.Tokens = append([]domain.Token(nil), m.Tokens...)
		for j := range m.Tokens {
			m.Tokens[j].Price = prices[m.Tokens[j].TokenID]
		}
		if m.YesPrice() > 0 && m.NoPrice() > 0 {
			priced = append(priced, m)
		}
	}

	elapsed := time.Since(start)
	s.lastScanNano.Store(int64(elapsed))
	s.logger.Debug("scan complete",
		slog.Int("markets", len(markets)),
		slog.Int("priced", len(priced)),
		slog.Duration("elapsed", elapsed))

	return priced, nil
}

// Stats returns a snapshot of scanner counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		APICalls:         s.apiCalls.Load(),
		CacheHits:        s.cacheHits.Load(),
		PriceCacheSize:   s.prices.Len(),
		LastScanDuration: time.Duration(s.lastScanNano.Load()),
	}
}

func (s *Scanner) filterKeywords(markets []domain.Market) []domain.Market {
	if len(s.keywords) == 0 {
		return markets
	}
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		q := strings.ToUpper(m.Question)
		for _, k := range s.keywords {
			if strings.Contains(q, k) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
