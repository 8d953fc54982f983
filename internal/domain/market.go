package domain

import (
	"strings"
	"time"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "Yes"
	OutcomeNo  Outcome = "No"
)

// ParseOutcome maps an outcome label to its canonical form. The Gamma API
// is not consistent about casing ("Yes", "YES", "yes").
func ParseOutcome(s string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return OutcomeYes, true
	case "no":
		return OutcomeNo, true
	}
	return "", false
}

// Token is one of the two outcome tokens of a market. A token is owned by
// its market and priced in dollars per share (0..1).
type Token struct {
	TokenID string  `json:"token_id"`
	Outcome Outcome `json:"outcome"`
	Price   float64 `json:"price"`
}

// Market is a binary prediction market with exactly one Yes and one No
// token. Markets that cannot satisfy that shape are discarded at parse
// time and never constructed.
type Market struct {
	ID          string     `json:"id"`
	ConditionID string     `json:"condition_id"`
	Question    string     `json:"question"`
	Slug        string     `json:"slug"`
	Tokens      []Token    `json:"tokens"`
	Volume      float64    `json:"volume"`
	Liquidity   float64    `json:"liquidity"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Active      bool       `json:"active"`
}

// YesToken returns the Yes token, or nil if the market has none.
func (m *Market) YesToken() *Token {
	return m.token(OutcomeYes)
}

// NoToken returns the No token, or nil if the market has none.
func (m *Market) NoToken() *Token {
	return m.token(OutcomeNo)
}

func (m *Market) token(o Outcome) *Token {
	for i := range m.Tokens {
		if m.Tokens[i].Outcome == o {
			return &m.Tokens[i]
		}
	}
	return nil
}

// YesPrice returns the Yes token price, or 0 when unpriced.
func (m *Market) YesPrice() float64 {
	if t := m.YesToken(); t != nil {
		return t.Price
	}
	return 0
}

// NoPrice returns the No token price, or 0 when unpriced.
func (m *Market) NoPrice() float64 {
	if t := m.NoToken(); t != nil {
		return t.Price
	}
	return 0
}

// CombinedPrice is the total cost of buying one share of each side.
func (m *Market) CombinedPrice() float64 {
	return m.YesPrice() + m.NoPrice()
}

// TokenIDs returns the token IDs of both sides.
func (m *Market) TokenIDs() []string {
	ids := make([]string, 0, len(m.Tokens))
	for i := range m.Tokens {
		if m.Tokens[i].TokenID != "" {
			ids = append(ids, m.Tokens[i].TokenID)
		}
	}
	return ids
}

// SetPrice updates the price of the token with the given ID and reports
// whether the token belongs to this market.
func (m *Market) SetPrice(tokenID string, price float64) bool {
	for i := range m.Tokens {
		if m.Tokens[i].TokenID == tokenID {
			m.Tokens[i].Price = price
			return true
		}
	}
	return false
}
