package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"polyarb/internal/domain"
)

func testOpportunity(marketID string, detectedAt time.Time) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Market:           domain.Market{ID: marketID, Question: "test " + marketID},
		YesPrice:         0.48,
		NoPrice:          0.49,
		CombinedCost:     0.97,
		ProfitPerShare:   0.03,
		ProfitPercentage: 3.09,
		DetectedAt:       detectedAt,
	}
}

func TestAppendAndRecent(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "opps.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		opp := testOpportunity(id, base.Add(time.Duration(i)*time.Minute))
		if err := log.Append(ctx, opp, float64(i)); err != nil {
			t.Fatalf("Append %s: %v", id, err)
		}
	}

	entries, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].MarketID != "m3" || entries[1].MarketID != "m2" {
		t.Errorf("order = %s, %s; want m3, m2", entries[0].MarketID, entries[1].MarketID)
	}
	if entries[0].Score != 2 {
		t.Errorf("Score = %v, want 2", entries[0].Score)
	}
	if !entries[0].DetectedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("DetectedAt = %v", entries[0].DetectedAt)
	}

	n, err := log.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opps.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Append(ctx, testOpportunity("m1", time.Now().UTC()), 1.5); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	n, err := second.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}
