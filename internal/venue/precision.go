package venue

import "github.com/shopspring/decimal"

// PrecisionField distinguishes a price rounding rule from a quantity
// rounding rule for a given venue/symbol pair.
type PrecisionField string

const (
	PrecisionPrice    PrecisionField = "price"
	PrecisionQuantity PrecisionField = "quantity"
)

// PrecisionRule is the rounding step for one venue/symbol/field triple.
type PrecisionRule struct {
	Venue  string
	Symbol string // empty matches any symbol on the venue (default rule)
	Field  PrecisionField
	Step   decimal.Decimal // e.g. 0.01 for 2dp, 0.000000001 for 9dp fractional equities
}

// PrecisionTable centralizes every venuePrecision(venue, field) rule so
// outbound quantities and prices are rounded at one edge rather than
// scattered through execution code (see spec Design Notes).
type PrecisionTable struct {
	rules []PrecisionRule
}

// NewPrecisionTable builds the table with the venue defaults named in the
// specification: equities 2dp price / 9dp fractional quantity, major
// crypto assets integer-or-1dp price / 8dp quantity, alt-coins 2dp.
func NewPrecisionTable() *PrecisionTable {
	t := &PrecisionTable{}
	t.AddRule(PrecisionRule{Venue: "equity", Field: PrecisionPrice, Step: decimal.NewFromFloat(0.01)})
	t.AddRule(PrecisionRule{Venue: "equity", Field: PrecisionQuantity, Step: decimal.New(1, -9)})
	t.AddRule(PrecisionRule{Venue: "crypto", Field: PrecisionPrice, Step: decimal.NewFromFloat(0.01)})
	t.AddRule(PrecisionRule{Venue: "crypto", Field: PrecisionQuantity, Step: decimal.New(1, -8)})
	t.AddRule(PrecisionRule{Venue: "crypto", Symbol: "BTC/USD", Field: PrecisionPrice, Step: decimal.NewFromInt(1)})
	t.AddRule(PrecisionRule{Venue: "crypto", Symbol: "ETH/USD", Field: PrecisionPrice, Step: decimal.NewFromFloat(0.1)})
	return t
}

// AddRule installs or replaces a rule. Rules are kept in insertion order;
// lookup prefers a venue+symbol rule over the venue default regardless.
func (t *PrecisionTable) AddRule(r PrecisionRule) {
	for i, existing := range t.rules {
		if existing.Venue == r.Venue && existing.Symbol == r.Symbol && existing.Field == r.Field {
			t.rules[i] = r
			return
		}
	}
	t.rules = append(t.rules, r)
}

// Round applies the most specific matching rule for venue/symbol/field,
// floor-rounding to the step so an order never overstates available size
// or posts a price the venue would reject.
func (t *PrecisionTable) Round(venueName, symbol string, field PrecisionField, value decimal.Decimal) decimal.Decimal {
	step := t.lookup(venueName, symbol, field)
	if step.IsZero() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

func (t *PrecisionTable) lookup(venueName, symbol string, field PrecisionField) decimal.Decimal {
	var fallback decimal.Decimal
	for _, r := range t.rules {
		if r.Venue != venueName || r.Field != field {
			continue
		}
		if r.Symbol == symbol {
			return r.Step
		}
		if r.Symbol == "" {
			fallback = r.Step
		}
	}
	return fallback
}
