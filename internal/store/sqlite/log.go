// Package sqlite persists a history of detected arbitrage opportunities
// so scans can be analyzed after the fact.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"polyarb/internal/domain"
)

// Entry is one logged opportunity row.
type Entry struct {
	ID               int64
	MarketID         string
	Question         string
	YesPrice         float64
	NoPrice          float64
	CombinedCost     float64
	ProfitPerShare   float64
	ProfitPercentage float64
	Score            float64
	DetectedAt       time.Time
}

// OpportunityLog is an append-only SQLite log of detected opportunities.
type OpportunityLog struct {
	db *sql.DB
}

// Open creates or opens the log database at path and runs migrations.
func Open(path string) (*OpportunityLog, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	l := &OpportunityLog{db: db}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return l, nil
}

func (l *OpportunityLog) Close() error { return l.db.Close() }

func (l *OpportunityLog) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS opportunities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  market_id TEXT NOT NULL,
  question TEXT NOT NULL,
  yes_price REAL NOT NULL,
  no_price REAL NOT NULL,
  combined_cost REAL NOT NULL,
  profit_per_share REAL NOT NULL,
  profit_percent REAL NOT NULL,
  score REAL NOT NULL,
  detected_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opp_market ON opportunities(market_id);
CREATE INDEX IF NOT EXISTS idx_opp_detected ON opportunities(detected_at);
`)
	return err
}

// Append records one detected opportunity with its ranking score.
func (l *OpportunityLog) Append(ctx context.Context, opp domain.ArbitrageOpportunity, score float64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO opportunities(market_id, question, yes_price, no_price, combined_cost, profit_per_share, profit_percent, score, detected_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, opp.Market.ID, opp.Market.Question, opp.YesPrice, opp.NoPrice, opp.CombinedCost,
		opp.ProfitPerShare, opp.ProfitPercentage, score, opp.DetectedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: append opportunity: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *OpportunityLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, market_id, question, yes_price, no_price, combined_cost, profit_per_share, profit_percent, score, detected_at
		FROM opportunities ORDER BY detected_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query opportunities: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detectedMs int64
		if err := rows.Scan(&e.ID, &e.MarketID, &e.Question, &e.YesPrice, &e.NoPrice,
			&e.CombinedCost, &e.ProfitPerShare, &e.ProfitPercentage, &e.Score, &detectedMs); err != nil {
			return nil, fmt.Errorf("sqlite: scan opportunity: %w", err)
		}
		e.DetectedAt = time.UnixMilli(detectedMs).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of logged opportunities.
func (l *OpportunityLog) Count(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count opportunities: %w", err)
	}
	return n, nil
}
