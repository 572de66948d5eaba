// Package paymentplan turns payment terms into an ordered list of milestones.
package paymentplan

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/money"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.RequireFromString("0.01")
)

// Parse reads a hyphen-delimited percentage split such as "30-30-40".
//
// It returns the percentages in input order and true when every token is a
// positive number of at most three integer digits and the total is 100
// within ±0.01. Anything else yields nil and false so callers can keep
// accepting partial input.
func Parse(input string) ([]decimal.Decimal, bool) {
	if strings.TrimSpace(input) == "" {
		return nil, false
	}
	tokens := strings.Split(input, "-")
	out := make([]decimal.Decimal, 0, len(tokens))
	sum := decimal.Zero
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, false
		}
		pct, err := decimal.NewFromString(tok)
		if err != nil || !money.Bounded(pct, 3) || !pct.IsPositive() {
			return nil, false
		}
		out = append(out, pct)
		sum = sum.Add(pct)
	}
	if sum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return nil, false
	}
	return out, true
}

// Join is the inverse of Parse for display and storage.
func Join(percentages []decimal.Decimal) string {
	parts := make([]string, len(percentages))
	for i, p := range percentages {
		parts[i] = p.String()
	}
	return strings.Join(parts, "-")
}
