package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"polyarb/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma
// API responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// flexStrings unmarshals from a JSON array of strings/numbers or from a
// double-encoded JSON array embedded in a string, e.g. "[\"0.5\",\"0.5\"]".
// The Gamma API uses both encodings depending on endpoint vintage.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var embedded string
	if err := json.Unmarshal(data, &embedded); err == nil {
		if strings.TrimSpace(embedded) == "" {
			*f = nil
			return nil
		}
		data = []byte(embedded)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, strings.TrimSpace(s))
			continue
		}
		out = append(out, strings.TrimSpace(string(r)))
	}
	*f = out
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market record as returned by the Gamma API. Field
// shapes vary across API versions; the flex types absorb the variation so
// nothing ambiguous leaks past ToDomainMarket.
type APIMarket struct {
	ID            string      `json:"id"`
	Question      string      `json:"question"`
	ConditionID   string      `json:"conditionId"`
	Slug          string      `json:"slug"`
	Active        flexBool    `json:"active"`
	Closed        flexBool    `json:"closed"`
	Outcomes      flexStrings `json:"outcomes"`
	OutcomePrices flexStrings `json:"outcomePrices"`
	ClobTokenIDs  flexStrings `json:"clobTokenIds"`
	Volume        *flexFloat  `json:"volume"`
	VolumeNum     *flexFloat  `json:"volumeNum"`
	Liquidity     *flexFloat  `json:"liquidity"`
	LiquidityNum  *flexFloat  `json:"liquidityNum"`
	EndDate       string      `json:"endDate"`
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. It returns
// ok=false for records that do not carry a usable Yes/No token pair; such
// records are skipped, never partially constructed.
func (m *APIMarket) ToDomainMarket() (domain.Market, bool) {
	if m.ID == "" || len(m.ClobTokenIDs) < 2 || len(m.Outcomes) < 2 {
		return domain.Market{}, false
	}

	n := len(m.ClobTokenIDs)
	if len(m.Outcomes) < n {
		n = len(m.Outcomes)
	}

	tokens := make([]domain.Token, 0, n)
	for i := 0; i < n; i++ {
		outcome, ok := domain.ParseOutcome(m.Outcomes[i])
		if !ok || m.ClobTokenIDs[i] == "" {
			return domain.Market{}, false
		}
		var price float64
		if i < len(m.OutcomePrices) {
			price, _ = strconv.ParseFloat(m.OutcomePrices[i], 64)
		}
		tokens = append(tokens, domain.Token{
			TokenID: m.ClobTokenIDs[i],
			Outcome: outcome,
			Price:   price,
		})
	}

	dm := domain.Market{
		ID:          m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Tokens:      tokens,
		Volume:      preferNum(m.VolumeNum, m.Volume),
		Liquidity:   preferNum(m.LiquidityNum, m.Liquidity),
		Active:      bool(m.Active),
	}

	// Exactly one Yes and one No once fully parsed.
	if dm.YesToken() == nil || dm.NoToken() == nil {
		return domain.Market{}, false
	}

	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			dm.EndDate = &t
		}
	}

	return dm, true
}

// preferNum prefers the explicit numeric field (volumeNum/liquidityNum)
// over the historical one when both are present.
func preferNum(num, legacy *flexFloat) float64 {
	if num != nil {
		return float64(*num)
	}
	if legacy != nil {
		return float64(*legacy)
	}
	return 0
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPrice is the response of the CLOB price endpoint.
type APIPrice struct {
	Price flexFloat `json:"price"`
}

// --------------------------------------------------------------------------
// WebSocket messages
// --------------------------------------------------------------------------

// WSCommand is the outbound subscribe/unsubscribe payload.
type WSCommand struct {
	Type    string `json:"type"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
	TokenID string `json:"token_id"`
}

// WSMessage is the inbound message envelope. Types other than "price" and
// "subscribed" are ignored.
type WSMessage struct {
	Type    string    `json:"type"`
	TokenID string    `json:"token_id"`
	Price   flexFloat `json:"price"`
}
