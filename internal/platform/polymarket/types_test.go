package polymarket

import (
	"encoding/json"
	"testing"

	"polyarb/internal/domain"
)

func TestToDomainMarketDoubleEncodedArrays(t *testing.T) {
	// Gamma frequently ships token ids, outcomes, and prices as JSON
	// arrays embedded in strings.
	raw := `{
		"id": "0xmkt",
		"conditionId": "0xcond",
		"question": "Will BTC close above $100k?",
		"slug": "btc-100k",
		"active": "true",
		"outcomes": "[\"Yes\", \"No\"]",
		"outcomePrices": "[\"0.48\", \"0.49\"]",
		"clobTokenIds": "[\"111\", \"222\"]",
		"volume": "125000.5",
		"endDate": "2026-09-01T12:00:00Z"
	}`

	var m APIMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	dm, ok := m.ToDomainMarket()
	if !ok {
		t.Fatal("expected a valid market")
	}
	if dm.ID != "0xmkt" || dm.ConditionID != "0xcond" {
		t.Errorf("ids not carried over: %+v", dm)
	}
	if !dm.Active {
		t.Error("active string \"true\" not parsed")
	}
	if len(dm.Tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(dm.Tokens))
	}
	if dm.YesPrice() != 0.48 || dm.NoPrice() != 0.49 {
		t.Errorf("prices = (%v, %v), want (0.48, 0.49)", dm.YesPrice(), dm.NoPrice())
	}
	if dm.Volume != 125000.5 {
		t.Errorf("volume = %v, want 125000.5", dm.Volume)
	}
	if dm.EndDate == nil {
		t.Error("endDate not parsed")
	}
}

func TestToDomainMarketPlainArrays(t *testing.T) {
	raw := `{
		"id": "m2",
		"question": "Test?",
		"outcomes": ["Yes", "No"],
		"outcomePrices": ["0.5", "0.5"],
		"clobTokenIds": ["a", "b"],
		"volumeNum": 2000,
		"volume": "99",
		"liquidityNum": 500,
		"active": true
	}`

	var m APIMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	dm, ok := m.ToDomainMarket()
	if !ok {
		t.Fatal("expected a valid market")
	}
	// The explicit numeric field wins over the historical one.
	if dm.Volume != 2000 {
		t.Errorf("volume = %v, want volumeNum value 2000", dm.Volume)
	}
	if dm.Liquidity != 500 {
		t.Errorf("liquidity = %v, want 500", dm.Liquidity)
	}
}

func TestToDomainMarketSkipsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing tokens", `{"id": "m", "question": "q", "outcomes": "[\"Yes\",\"No\"]"}`},
		{"single token", `{"id": "m", "outcomes": "[\"Yes\"]", "clobTokenIds": "[\"a\"]"}`},
		{"non-binary outcomes", `{"id": "m", "outcomes": "[\"Up\",\"Down\"]", "clobTokenIds": "[\"a\",\"b\"]"}`},
		{"two yes tokens", `{"id": "m", "outcomes": "[\"Yes\",\"Yes\"]", "clobTokenIds": "[\"a\",\"b\"]"}`},
		{"missing id", `{"outcomes": "[\"Yes\",\"No\"]", "clobTokenIds": "[\"a\",\"b\"]"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m APIMarket
			if err := json.Unmarshal([]byte(tc.raw), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if _, ok := m.ToDomainMarket(); ok {
				t.Error("expected record to be skipped")
			}
		})
	}
}

func TestToDomainMarketOutcomeCasing(t *testing.T) {
	raw := `{"id": "m", "outcomes": "[\"YES\",\"no\"]", "clobTokenIds": "[\"a\",\"b\"]"}`
	var m APIMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dm, ok := m.ToDomainMarket()
	if !ok {
		t.Fatal("case-insensitive outcomes should parse")
	}
	if dm.Tokens[0].Outcome != domain.OutcomeYes || dm.Tokens[1].Outcome != domain.OutcomeNo {
		t.Errorf("outcomes = %v", dm.Tokens)
	}
}

func TestFlexFloatForms(t *testing.T) {
	var p APIPrice
	if err := json.Unmarshal([]byte(`{"price": "0.42"}`), &p); err != nil {
		t.Fatalf("string price: %v", err)
	}
	if p.Price != 0.42 {
		t.Errorf("price = %v, want 0.42", p.Price)
	}

	if err := json.Unmarshal([]byte(`{"price": 0.57}`), &p); err != nil {
		t.Fatalf("numeric price: %v", err)
	}
	if p.Price != 0.57 {
		t.Errorf("price = %v, want 0.57", p.Price)
	}
}
