package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var (
	// ErrTerminalState rejects any transition out of a terminal state.
	ErrTerminalState = errors.New("quotation is in a terminal state")
	// ErrInvalidTransition rejects an event that is not allowed from the current state.
	ErrInvalidTransition = errors.New("transition not allowed")
	// ErrGuardFailed rejects an allowed transition whose required data is missing.
	ErrGuardFailed = errors.New("transition requirements not met")
	// ErrNoPendingAttachment rejects attaching a PO document when none is expected.
	ErrNoPendingAttachment = errors.New("no purchase order attachment pending")
)

// MaxPONumberLength bounds a purchase order reference.
const MaxPONumberLength = 100

// Snapshot is the quotation state the guards inspect.
type Snapshot struct {
	Status Status
	Items  []pricing.LineItem
	Terms  pricing.CommercialTerms
	Plan   paymentplan.Plan
}

// Input carries the data some transitions require.
type Input struct {
	LostReason    LostReason
	LostNote      string
	PurchaseOrder *PurchaseOrder
}

type guard func(Snapshot, Input) error

type transition struct {
	to    Status
	guard guard
}

type key struct {
	from  Status
	event Event
}

var table = map[key]transition{
	{StatusDraft, EventPublish}:      {to: StatusLive, guard: readyToPublish},
	{StatusLive, EventWin}:           {to: StatusWon},
	{StatusLive, EventLose}:          {to: StatusLost, guard: hasLostReason},
	{StatusLive, EventMarkBudgetary}: {to: StatusBudgetary},
	{StatusLive, EventReceivePO}:     {to: StatusReceived, guard: hasPurchaseOrder},
	{StatusLive, EventMarkDead}:      {to: StatusDead},
}

var eventOrder = []Event{EventPublish, EventWin, EventLose, EventMarkBudgetary, EventReceivePO, EventMarkDead}

// NextEvents lists the events allowed from s, in a stable order.
func NextEvents(s Status) []Event {
	var out []Event
	for _, ev := range eventOrder {
		if _, ok := table[key{s, ev}]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// Target returns the state ev leads to from s.
func Target(s Status, ev Event) (Status, bool) {
	t, ok := table[key{s, ev}]
	return t.to, ok
}

// Apply validates ev against the current snapshot and returns the record to
// persist. Transitions into a terminal state carry the grand total at that
// moment as ValueSnapshot; it is the quotation's frozen value from then on.
func Apply(s Snapshot, ev Event, in Input, actor string, at time.Time) (Record, error) {
	if s.Status.Terminal() {
		return Record{}, fmt.Errorf("%w: %s cannot %s", ErrTerminalState, s.Status, ev)
	}
	t, ok := table[key{s.Status, ev}]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, s.Status)
	}
	if t.guard != nil {
		if err := t.guard(s, in); err != nil {
			return Record{}, fmt.Errorf("%w: %w", ErrGuardFailed, err)
		}
	}

	rec := Record{
		ID:    uuid.New(),
		From:  s.Status,
		To:    t.to,
		Event: ev,
		At:    at.UTC(),
		Actor: actor,
	}
	if t.to.Terminal() {
		total := pricing.ComputeTotals(s.Items, s.Terms).GrandTotal
		rec.ValueSnapshot = &total
	}
	switch t.to {
	case StatusLost:
		rec.LostReason = in.LostReason
		rec.LostNote = strings.TrimSpace(in.LostNote)
	case StatusReceived:
		po := normalizePO(*in.PurchaseOrder)
		rec.PurchaseOrder = &po
	}
	return rec, nil
}

// AttachDocument records the PO document on a RECEIVED quotation that was
// accepted without one. The status does not change.
func AttachDocument(status Status, po *PurchaseOrder, ref string) (PurchaseOrder, error) {
	if status != StatusReceived || po == nil || !po.PendingAttachment() {
		return PurchaseOrder{}, fmt.Errorf("%w: status %s", ErrNoPendingAttachment, status)
	}
	if strings.TrimSpace(ref) == "" {
		return PurchaseOrder{}, shared.FieldErrors{"attachment": "is required"}
	}
	out := *po
	out.AttachmentRef = ref
	return out, nil
}

func readyToPublish(s Snapshot, _ Input) error {
	fe := shared.FieldErrors{}
	if err := pricing.ValidateItems(s.Items); err != nil {
		if itemErrs, ok := shared.AsFieldErrors(err); ok {
			fe.Merge("", itemErrs)
		}
	}
	if err := pricing.ValidateTerms(s.Terms); err != nil {
		if termErrs, ok := shared.AsFieldErrors(err); ok {
			fe.Merge("", termErrs)
		}
	}
	if err := s.Plan.Validate(); err != nil {
		if planErrs, ok := shared.AsFieldErrors(err); ok {
			fe.Merge("", planErrs)
		}
	}
	if len(fe) == 0 {
		if err := pricing.ValidateTotals(pricing.ComputeTotals(s.Items, s.Terms)); err != nil {
			if totalErrs, ok := shared.AsFieldErrors(err); ok {
				fe.Merge("", totalErrs)
			}
		}
	}
	return fe.Err()
}

func hasLostReason(_ Snapshot, in Input) error {
	if !in.LostReason.Valid() {
		return shared.FieldErrors{"lost_reason": "must be one of PRICE, DELIVERY_SCHEDULE, LACK_OF_CONFIDENCE, OTHER"}
	}
	return nil
}

func hasPurchaseOrder(_ Snapshot, in Input) error {
	fe := shared.FieldErrors{}
	if in.PurchaseOrder == nil || strings.TrimSpace(in.PurchaseOrder.Number) == "" {
		fe.Add("purchase_order.number", "is required")
		return fe
	}
	if len(strings.TrimSpace(in.PurchaseOrder.Number)) > MaxPONumberLength {
		fe.Add("purchase_order.number", fmt.Sprintf("must be at most %d characters", MaxPONumberLength))
	}
	if v := in.PurchaseOrder.Value; v != nil {
		if msg := pricing.AmountProblem(*v); msg != "" {
			fe.Add("purchase_order.value", msg)
		}
	}
	return fe.Err()
}

func normalizePO(po PurchaseOrder) PurchaseOrder {
	po.Number = strings.TrimSpace(po.Number)
	po.AttachmentRef = strings.TrimSpace(po.AttachmentRef)
	if po.Value != nil {
		v := *po.Value
		po.Value = &v
	}
	return po
}
