package paymentplan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ErrInvalidPlan is returned by Validate and Resolve.
var ErrInvalidPlan = errors.New("invalid payment plan")

// Kind discriminates Plan.
type Kind string

const (
	KindStandard Kind = "STANDARD"
	KindCustom   Kind = "CUSTOM"
)

// StandardCode names one of the fixed payment schedules.
type StandardCode string

const (
	FullAdvance    StandardCode = "FULL_ADVANCE"
	AdvanceBalance StandardCode = "ADVANCE_BALANCE"
	ThreeStage     StandardCode = "THREE_STAGE"
	Staged404020   StandardCode = "STAGED_40_40_20"
)

type standardPlan struct {
	name  string
	split string
}

var standardPlans = map[StandardCode]standardPlan{
	FullAdvance:    {name: "100% advance with purchase order", split: "100"},
	AdvanceBalance: {name: "50% advance, 50% before dispatch", split: "50-50"},
	ThreeStage:     {name: "30% advance, 60% on fabrication, 10% before shipment", split: "30-60-10"},
	Staged404020:   {name: "40% advance, 40% on fabrication, 20% before shipment", split: "40-40-20"},
}

// StandardCodes lists the fixed schedules in a stable order.
func StandardCodes() []StandardCode {
	return []StandardCode{FullAdvance, AdvanceBalance, ThreeStage, Staged404020}
}

// Plan is either a standard schedule (Code set) or a custom split (Terms set).
type Plan struct {
	Kind  Kind         `json:"kind"`
	Code  StandardCode `json:"code,omitempty"`
	Terms string       `json:"terms,omitempty"`
}

// Standard builds a plan for a fixed schedule.
func Standard(code StandardCode) Plan {
	return Plan{Kind: KindStandard, Code: code}
}

// Custom builds a plan from a hyphen-delimited split.
func Custom(terms string) Plan {
	return Plan{Kind: KindCustom, Terms: terms}
}

// Percentages returns the ordered split, or false when the plan is not (yet) valid.
func (p Plan) Percentages() ([]decimal.Decimal, bool) {
	switch p.Kind {
	case KindStandard:
		std, ok := standardPlans[p.Code]
		if !ok {
			return nil, false
		}
		return Parse(std.split)
	case KindCustom:
		return Parse(p.Terms)
	default:
		return nil, false
	}
}

// Validate is the blocking check applied before a quotation is persisted.
func (p Plan) Validate() error {
	if _, ok := p.Percentages(); ok {
		return nil
	}
	fe := shared.FieldErrors{}
	switch p.Kind {
	case KindStandard:
		fe.Add("payment_plan.code", fmt.Sprintf("unknown standard plan %q", p.Code))
	case KindCustom:
		fe.Add("payment_plan.terms", "must be positive percentages separated by '-' that add up to 100")
	default:
		fe.Add("payment_plan.kind", "must be STANDARD or CUSTOM")
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, fe)
}

// Resolve validates the plan and produces its milestones against grandTotal.
func (p Plan) Resolve(grandTotal decimal.Decimal, places int32) ([]Milestone, error) {
	pcts, ok := p.Percentages()
	if !ok {
		return nil, p.Validate()
	}
	return Milestones(pcts, grandTotal, places), nil
}

// Describe returns a human readable summary for printed documents.
func (p Plan) Describe() string {
	switch p.Kind {
	case KindStandard:
		if std, ok := standardPlans[p.Code]; ok {
			return std.name
		}
	case KindCustom:
		if pcts, ok := Parse(p.Terms); ok {
			return "Custom split " + Join(pcts) + " (%)"
		}
	}
	return "To be agreed"
}
