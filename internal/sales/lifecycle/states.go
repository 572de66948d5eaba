// Package lifecycle is the sales-outcome state machine of a quotation.
//
// DRAFT → LIVE → {WON, LOST, BUDGETARY, RECEIVED, DEAD}. Every allowed move
// is a row of the transition table; anything not in the table is rejected.
package lifecycle

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a quotation.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusLive      Status = "LIVE"
	StatusWon       Status = "WON"
	StatusLost      Status = "LOST"
	StatusBudgetary Status = "BUDGETARY"
	StatusReceived  Status = "RECEIVED"
	StatusDead      Status = "DEAD"
)

// Statuses lists every state.
func Statuses() []Status {
	return []Status{StatusDraft, StatusLive, StatusWon, StatusLost, StatusBudgetary, StatusReceived, StatusDead}
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusBudgetary, StatusReceived, StatusDead:
		return true
	}
	return false
}

// Event triggers a transition.
type Event string

const (
	EventPublish       Event = "PUBLISH"
	EventWin           Event = "WIN"
	EventLose          Event = "LOSE"
	EventMarkBudgetary Event = "MARK_BUDGETARY"
	EventReceivePO     Event = "RECEIVE_PO"
	EventMarkDead      Event = "MARK_DEAD"
)

// ParseEvent accepts event names case-insensitively.
func ParseEvent(s string) (Event, bool) {
	ev := Event(strings.ToUpper(strings.TrimSpace(s)))
	switch ev {
	case EventPublish, EventWin, EventLose, EventMarkBudgetary, EventReceivePO, EventMarkDead:
		return ev, true
	}
	return "", false
}

// LostReason explains a LOST outcome.
type LostReason string

const (
	LostReasonPrice            LostReason = "PRICE"
	LostReasonDeliverySchedule LostReason = "DELIVERY_SCHEDULE"
	LostReasonLackOfConfidence LostReason = "LACK_OF_CONFIDENCE"
	LostReasonOther            LostReason = "OTHER"
)

// Valid reports whether r is one of the fixed reasons.
func (r LostReason) Valid() bool {
	switch r {
	case LostReasonPrice, LostReasonDeliverySchedule, LostReasonLackOfConfidence, LostReasonOther:
		return true
	}
	return false
}

// PurchaseOrder is the customer's order reference recorded on RECEIVED.
type PurchaseOrder struct {
	Number        string           `json:"number"`
	Value         *decimal.Decimal `json:"value,omitempty"`
	AttachmentRef string           `json:"attachment_ref,omitempty"`
}

// PendingAttachment reports whether the PO document is still to be supplied.
func (po PurchaseOrder) PendingAttachment() bool {
	return po.AttachmentRef == ""
}

// Record is the audit entry of one applied transition.
type Record struct {
	ID            uuid.UUID        `json:"id"`
	From          Status           `json:"from"`
	To            Status           `json:"to"`
	Event         Event            `json:"event"`
	At            time.Time        `json:"at"`
	Actor         string           `json:"actor"`
	ValueSnapshot *decimal.Decimal `json:"value_snapshot,omitempty"`
	LostReason    LostReason       `json:"lost_reason,omitempty"`
	LostNote      string           `json:"lost_note,omitempty"`
	PurchaseOrder *PurchaseOrder   `json:"purchase_order,omitempty"`
}
