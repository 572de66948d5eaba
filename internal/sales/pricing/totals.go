// Package pricing aggregates quotation line items and commercial terms into totals.
package pricing

import "github.com/shopspring/decimal"

// DefaultPackingForwardingPercentage applies when terms leave the percentage unset.
var DefaultPackingForwardingPercentage = decimal.NewFromInt(3)

var hundred = decimal.NewFromInt(100)

// LineItem is one priced row of a quotation.
type LineItem struct {
	Description    string          `json:"description"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Specifications string          `json:"specifications,omitempty"`
}

// LineTotal is Quantity × UnitPrice.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// CommercialTerms carries the flat additions and packing percentage.
// A nil PackingForwardingPercentage means the default of 3%.
type CommercialTerms struct {
	TransportCost               decimal.Decimal  `json:"transport_cost"`
	InsuranceCost               decimal.Decimal  `json:"insurance_cost"`
	GSTAmount                   decimal.Decimal  `json:"gst_amount"`
	PackingForwardingPercentage *decimal.Decimal `json:"packing_forwarding_percentage,omitempty"`
}

// PackingPercentage returns the effective packing & forwarding percentage.
func (t CommercialTerms) PackingPercentage() decimal.Decimal {
	if t.PackingForwardingPercentage == nil {
		return DefaultPackingForwardingPercentage
	}
	return *t.PackingForwardingPercentage
}

// LineBreakdown is the computed view of one line item.
type LineBreakdown struct {
	Index       int             `json:"index"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Breakdown exposes every intermediate amount. Display and document code read
// from here rather than recomputing.
type Breakdown struct {
	Lines                       []LineBreakdown `json:"lines"`
	Subtotal                    decimal.Decimal `json:"subtotal"`
	PackingForwardingPercentage decimal.Decimal `json:"packing_forwarding_percentage"`
	PackingForwardingAmount     decimal.Decimal `json:"packing_forwarding_amount"`
	TransportCost               decimal.Decimal `json:"transport_cost"`
	InsuranceCost               decimal.Decimal `json:"insurance_cost"`
	GSTAmount                   decimal.Decimal `json:"gst_amount"`
	GrandTotal                  decimal.Decimal `json:"grand_total"`
}

// Totals is the result of ComputeTotals.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Breakdown  Breakdown       `json:"breakdown"`
}

// ComputeTotals sums items and applies terms using exact decimal arithmetic.
// It never fails; an empty item list yields zero subtotal. Inputs are assumed
// to have passed ValidateItems and ValidateTerms.
func ComputeTotals(items []LineItem, terms CommercialTerms) Totals {
	lines := make([]LineBreakdown, len(items))
	subtotal := decimal.Zero
	for i, item := range items {
		lt := item.LineTotal()
		subtotal = subtotal.Add(lt)
		lines[i] = LineBreakdown{
			Index:       i + 1,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   lt,
		}
	}

	pct := terms.PackingPercentage()
	packing := subtotal.Mul(pct).Div(hundred)
	grand := subtotal.
		Add(terms.TransportCost).
		Add(terms.InsuranceCost).
		Add(terms.GSTAmount).
		Add(packing)

	return Totals{
		Subtotal:   subtotal,
		GrandTotal: grand,
		Breakdown: Breakdown{
			Lines:                       lines,
			Subtotal:                    subtotal,
			PackingForwardingPercentage: pct,
			PackingForwardingAmount:     packing,
			TransportCost:               terms.TransportCost,
			InsuranceCost:               terms.InsuranceCost,
			GSTAmount:                   terms.GSTAmount,
			GrandTotal:                  grand,
		},
	}
}
