package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"polyarb/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
	}
}

// ListMarkets returns up to limit active, unresolved markets, already
// converted to domain form. Records that fail to parse into a valid
// binary market are skipped rather than failing the batch; skipped
// reports how many were dropped.
func (g *GammaClient) ListMarkets(ctx context.Context, limit int) (markets []domain.Market, skipped int, err error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, 0, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	// Decode record-by-record so one malformed entry cannot sink the batch.
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	markets = make([]domain.Market, 0, len(raw))
	for _, r := range raw {
		var m APIMarket
		if err := json.Unmarshal(r, &m); err != nil {
			skipped++
			continue
		}
		dm, ok := m.ToDomainMarket()
		if !ok {
			skipped++
			continue
		}
		markets = append(markets, dm)
	}

	return markets, skipped, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
