package quotations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

// Quotation is a priced commercial proposal raised against an enquiry.
type Quotation struct {
	ID                  int64                    `json:"id"`
	Number              string                   `json:"quotation_number"`
	EnquiryID           int64                    `json:"enquiry_id"`
	RevisionNumber      int                      `json:"revision_number"`
	QuotationDate       time.Time                `json:"quotation_date"`
	ValidUntil          *time.Time               `json:"valid_until,omitempty"`
	Currency            string                   `json:"currency"`
	CustomerName        string                   `json:"customer_name"`
	CustomerAddress     string                   `json:"customer_address,omitempty"`
	ContactPerson       string                   `json:"contact_person,omitempty"`
	Items               []pricing.LineItem       `json:"items"`
	Terms               pricing.CommercialTerms  `json:"terms"`
	PaymentPlan         paymentplan.Plan         `json:"payment_plan"`
	DeliverySchedule    string                   `json:"delivery_schedule,omitempty"`
	SpecialInstructions string                   `json:"special_instructions,omitempty"`
	Status              lifecycle.Status         `json:"status"`
	LostReason          lifecycle.LostReason     `json:"lost_reason,omitempty"`
	LostNote            string                   `json:"lost_note,omitempty"`
	PurchaseOrder       *lifecycle.PurchaseOrder `json:"purchase_order,omitempty"`
	Subtotal            decimal.Decimal          `json:"subtotal"`
	TotalValue          decimal.Decimal          `json:"total_value"`
	TotalFrozenAt       *time.Time               `json:"total_frozen_at,omitempty"`
	DocumentRef         string                   `json:"document_ref,omitempty"`
	CreatedBy           string                   `json:"created_by"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// Totals recomputes the breakdown from the stored items and terms.
func (q Quotation) Totals() pricing.Totals {
	return pricing.ComputeTotals(q.Items, q.Terms)
}

// Editable reports whether items and terms may still change.
func (q Quotation) Editable() bool {
	return q.Status == lifecycle.StatusDraft || q.Status == lifecycle.StatusLive
}

// Snapshot is the view the lifecycle guards evaluate.
func (q Quotation) Snapshot() lifecycle.Snapshot {
	return lifecycle.Snapshot{Status: q.Status, Items: q.Items, Terms: q.Terms, Plan: q.PaymentPlan}
}

// DocumentSource adapts the quotation for the document assembler.
func (q Quotation) DocumentSource() document.Source {
	return document.Source{
		Number:     q.Number,
		Revision:   q.RevisionNumber,
		Date:       q.QuotationDate,
		ValidUntil: q.ValidUntil,
		Currency:   q.Currency,
		Status:     string(q.Status),
		Customer: document.Party{
			Name:    q.CustomerName,
			Address: q.CustomerAddress,
			Contact: q.ContactPerson,
		},
		Items:               q.Items,
		Terms:               q.Terms,
		Plan:                q.PaymentPlan,
		DeliverySchedule:    q.DeliverySchedule,
		SpecialInstructions: q.SpecialInstructions,
	}
}

// applyTotals refreshes the stored subtotal and value while they may change.
func (q *Quotation) applyTotals() pricing.Totals {
	t := q.Totals()
	q.Subtotal = t.Subtotal
	q.TotalValue = t.GrandTotal
	return t
}

// applyRecord moves q to the record's target state.
func (q *Quotation) applyRecord(rec lifecycle.Record) {
	q.Status = rec.To
	if rec.LostReason != "" {
		q.LostReason = rec.LostReason
		q.LostNote = rec.LostNote
	}
	if rec.PurchaseOrder != nil {
		po := *rec.PurchaseOrder
		q.PurchaseOrder = &po
	}
	if rec.ValueSnapshot != nil {
		q.TotalValue = *rec.ValueSnapshot
		at := rec.At
		q.TotalFrozenAt = &at
	}
	q.UpdatedAt = rec.At
}

// Revision is the stored copy of a quotation before it was revised.
type Revision struct {
	QuotationID    int64     `json:"quotation_id"`
	RevisionNumber int       `json:"revision_number"`
	Snapshot       Quotation `json:"snapshot"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows List.
type Filter struct {
	EnquiryID *int64
	Status    *lifecycle.Status
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
	Offset    int
}
