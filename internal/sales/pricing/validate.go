package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/money"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// MaxAmount bounds any single monetary input. Larger values are rejected,
// never clamped.
var MaxAmount = decimal.New(1, 15)

// MaxTotal bounds computed line totals, subtotals and grand totals.
var MaxTotal = decimal.New(1, 18)

const (
	amountPlaces     = 4
	percentagePlaces = 2
)

// MaxQuantity bounds a line item's quantity.
const MaxQuantity = 1_000_000_000

// ValidateItems checks the line items of a quotation about to be persisted.
func ValidateItems(items []LineItem) error {
	fe := shared.FieldErrors{}
	if len(items) == 0 {
		fe.Add("items", "at least one line item is required")
		return fe
	}
	for i, item := range items {
		prefix := fmt.Sprintf("items[%d].", i)
		if strings.TrimSpace(item.Description) == "" {
			fe.Add(prefix+"description", "is required")
		}
		switch {
		case item.Quantity <= 0:
			fe.Add(prefix+"quantity", "must be a positive whole number")
		case item.Quantity > MaxQuantity:
			fe.Add(prefix+"quantity", "is too large")
		}
		if msg := AmountProblem(item.UnitPrice); msg != "" {
			fe.Add(prefix+"unit_price", msg)
		} else if item.Quantity > 0 && item.LineTotal().GreaterThan(MaxTotal) {
			fe.Add(prefix+"quantity", "line total is out of range")
		}
	}
	return fe.Err()
}

// ValidateTerms checks the commercial terms.
func ValidateTerms(terms CommercialTerms) error {
	fe := shared.FieldErrors{}
	checkAmount(fe, "terms.transport_cost", terms.TransportCost)
	checkAmount(fe, "terms.insurance_cost", terms.InsuranceCost)
	checkAmount(fe, "terms.gst_amount", terms.GSTAmount)
	if p := terms.PackingForwardingPercentage; p != nil {
		switch {
		case !money.Bounded(*p, 3) || p.IsNegative() || p.GreaterThan(hundred):
			fe.Add("terms.packing_forwarding_percentage", "must be between 0 and 100")
		case !p.Equal(p.Round(percentagePlaces)):
			fe.Add("terms.packing_forwarding_percentage", "supports at most 2 decimal places")
		}
	}
	return fe.Err()
}

// ValidateTotals rejects computed totals beyond MaxTotal.
func ValidateTotals(t Totals) error {
	fe := shared.FieldErrors{}
	if t.Subtotal.GreaterThan(MaxTotal) {
		fe.Add("subtotal", "is out of range")
	}
	if t.GrandTotal.GreaterThan(MaxTotal) {
		fe.Add("grand_total", "is out of range")
	}
	return fe.Err()
}

// AmountProblem describes why v is not an acceptable monetary input, or
// returns "" when it is.
func AmountProblem(v decimal.Decimal) string {
	switch {
	case v.IsNegative():
		return "must not be negative"
	case !money.Bounded(v, 16) || v.GreaterThan(MaxAmount):
		return "is out of range"
	case !v.Equal(v.Round(amountPlaces)):
		return "supports at most 4 decimal places"
	}
	return ""
}

func checkAmount(fe shared.FieldErrors, field string, v decimal.Decimal) {
	if msg := AmountProblem(v); msg != "" {
		fe.Add(field, msg)
	}
}
