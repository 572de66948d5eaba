package paymentplan

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Milestone is one scheduled payment.
type Milestone struct {
	Sequence    int             `json:"sequence"`
	Description string          `json:"description"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
}

var fixedLabels = []string{
	"Advance payment due on order confirmation",
	"Payment due on completion of fabrication / pre-dispatch",
	"Final payment due before shipment",
}

// Label returns the milestone description for the 1-based position k.
func Label(k int) string {
	if k >= 1 && k <= len(fixedLabels) {
		return fixedLabels[k-1]
	}
	return fmt.Sprintf("Payment %d: due on completion of phase %d", k, k)
}

// Milestones splits grandTotal across percentages. Each amount is rounded to
// places fractional digits and the final milestone absorbs the rounding
// remainder, so the amounts always add up to grandTotal rounded to places.
func Milestones(percentages []decimal.Decimal, grandTotal decimal.Decimal, places int32) []Milestone {
	if len(percentages) == 0 {
		return nil
	}
	target := grandTotal.Round(places)
	out := make([]Milestone, len(percentages))
	allocated := decimal.Zero
	for i, pct := range percentages {
		var amount decimal.Decimal
		if i == len(percentages)-1 {
			amount = target.Sub(allocated)
		} else {
			amount = grandTotal.Mul(pct).Div(hundred).Round(places)
			allocated = allocated.Add(amount)
		}
		out[i] = Milestone{
			Sequence:    i + 1,
			Description: Label(i + 1),
			Percentage:  pct,
			Amount:      amount,
		}
	}
	return out
}
