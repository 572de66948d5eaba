package quotations

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/money"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const dateLayout = "2006-01-02"

type LineItemRequest struct {
	Description    string          `json:"description" validate:"required,max=500"`
	Quantity       int64           `json:"quantity" validate:"gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Specifications string          `json:"specifications,omitempty" validate:"max=4000"`
}

type PaymentPlanRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=STANDARD CUSTOM"`
	Code  string `json:"code,omitempty"`
	Terms string `json:"terms,omitempty"`
}

// QuotationRequest is the body of create, update and revise. QuotationNumber
// and EnquiryID are read on create only.
type QuotationRequest struct {
	QuotationNumber     string                  `json:"quotation_number,omitempty" validate:"max=64"`
	EnquiryID           int64                   `json:"enquiry_id,omitempty" validate:"gte=0"`
	QuotationDate       string                  `json:"quotation_date" validate:"required,datetime=2006-01-02"`
	ValidUntil          string                  `json:"valid_until,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Currency            string                  `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	CustomerName        string                  `json:"customer_name" validate:"required,max=200"`
	CustomerAddress     string                  `json:"customer_address,omitempty" validate:"max=1000"`
	ContactPerson       string                  `json:"contact_person,omitempty" validate:"max=200"`
	Items               []LineItemRequest       `json:"items" validate:"required,min=1,dive"`
	Terms               pricing.CommercialTerms `json:"terms"`
	PaymentPlan         PaymentPlanRequest      `json:"payment_plan"`
	DeliverySchedule    string                  `json:"delivery_schedule,omitempty" validate:"max=1000"`
	SpecialInstructions string                  `json:"special_instructions,omitempty" validate:"max=4000"`
}

type PurchaseOrderRequest struct {
	Number string           `json:"number"`
	Value  *decimal.Decimal `json:"value,omitempty"`
}

type TransitionRequest struct {
	Event         string                `json:"event" validate:"required"`
	LostReason    string                `json:"lost_reason,omitempty"`
	LostNote      string                `json:"lost_note,omitempty" validate:"max=2000"`
	PurchaseOrder *PurchaseOrderRequest `json:"purchase_order,omitempty"`
}

type TotalsPreviewRequest struct {
	Currency string                  `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Items    []LineItemRequest       `json:"items" validate:"dive"`
	Terms    pricing.CommercialTerms `json:"terms"`
}

type PlanParseRequest struct {
	Terms      string           `json:"terms"`
	GrandTotal *decimal.Decimal `json:"grand_total,omitempty"`
	Currency   string           `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

type ListRequest struct {
	EnquiryID *int64
	Status    *lifecycle.Status
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PerPage   int
}

// Upload is a file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type TotalsView struct {
	pricing.Totals
	Currency       string `json:"currency"`
	SubtotalText   string `json:"subtotal_text"`
	GrandTotalText string `json:"grand_total_text"`
	InWords        string `json:"in_words"`
}

type MilestoneView struct {
	paymentplan.Milestone
	AmountText string `json:"amount_text,omitempty"`
}

type PlanView struct {
	Valid       bool            `json:"valid"`
	Percentages []string        `json:"percentages,omitempty"`
	Milestones  []MilestoneView `json:"milestones,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors turns validator output into shared.FieldErrors keyed by JSON path.
func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	fe := shared.FieldErrors{}
	for _, v := range verrs {
		ns := v.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		fe.Add(ns, message(v))
	}
	return fe
}

func message(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + v.Param() + " characters"
	case "min":
		return "must contain at least " + v.Param() + " entries"
	case "len":
		return "must be exactly " + v.Param() + " characters"
	case "gt":
		return "must be greater than " + v.Param()
	case "gte":
		return "must be at least " + v.Param()
	case "oneof":
		return "must be one of " + v.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "alpha":
		return "must contain letters only"
	default:
		return v.Error()
	}
}

func (r LineItemRequest) item() pricing.LineItem {
	return pricing.LineItem{
		Description:    strings.TrimSpace(r.Description),
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		Specifications: strings.TrimSpace(r.Specifications),
	}
}

func toItems(reqs []LineItemRequest) []pricing.LineItem {
	items := make([]pricing.LineItem, len(reqs))
	for i, r := range reqs {
		items[i] = r.item()
	}
	return items
}

func (r PaymentPlanRequest) plan() paymentplan.Plan {
	switch paymentplan.Kind(strings.ToUpper(strings.TrimSpace(r.Kind))) {
	case paymentplan.KindStandard:
		return paymentplan.Standard(paymentplan.StandardCode(strings.ToUpper(strings.TrimSpace(r.Code))))
	case paymentplan.KindCustom:
		return paymentplan.Custom(strings.TrimSpace(r.Terms))
	default:
		return paymentplan.Plan{Kind: paymentplan.Kind(r.Kind)}
	}
}

// content holds the editable part of a quotation parsed from a request.
type content struct {
	date                time.Time
	validUntil          *time.Time
	currency            string
	customerName        string
	customerAddress     string
	contactPerson       string
	items               []pricing.LineItem
	terms               pricing.CommercialTerms
	plan                paymentplan.Plan
	deliverySchedule    string
	specialInstructions string
}

// parseContent runs tag validation then the domain validators and collects
// every field error in one pass.
func parseContent(v *validator.Validate, req QuotationRequest) (content, error) {
	fe := shared.FieldErrors{}
	if err := v.Struct(req); err != nil {
		tagErrs := fieldErrors(err)
		if m, ok := shared.AsFieldErrors(tagErrs); ok {
			fe.Merge("", m)
		} else {
			return content{}, tagErrs
		}
	}

	c := content{
		currency:            money.DefaultCurrency,
		customerName:        strings.TrimSpace(req.CustomerName),
		customerAddress:     strings.TrimSpace(req.CustomerAddress),
		contactPerson:       strings.TrimSpace(req.ContactPerson),
		items:               toItems(req.Items),
		terms:               req.Terms,
		plan:                req.PaymentPlan.plan(),
		deliverySchedule:    strings.TrimSpace(req.DeliverySchedule),
		specialInstructions: strings.TrimSpace(req.SpecialInstructions),
	}
	if code := money.Canonical(req.Currency); code != "" {
		c.currency = code
	} else if strings.TrimSpace(req.Currency) != "" {
		fe.Add("currency", "is not an ISO 4217 currency code")
	}

	if d, err := time.Parse(dateLayout, req.QuotationDate); err == nil {
		c.date = d
	}
	if req.ValidUntil != "" {
		if d, err := time.Parse(dateLayout, req.ValidUntil); err == nil {
			if d.Before(c.date) {
				fe.Add("valid_until", "must not be before quotation_date")
			}
			c.validUntil = &d
		}
	}

	for _, check := range []error{
		pricing.ValidateItems(c.items),
		pricing.ValidateTerms(c.terms),
		c.plan.Validate(),
	} {
		if m, ok := shared.AsFieldErrors(check); ok {
			fe.Merge("", m)
		}
	}
	if len(fe) == 0 {
		if m, ok := shared.AsFieldErrors(pricing.ValidateTotals(pricing.ComputeTotals(c.items, c.terms))); ok {
			fe.Merge("", m)
		}
	}
	if err := fe.Err(); err != nil {
		return content{}, err
	}
	return c, nil
}

func (c content) applyTo(q *Quotation) {
	q.QuotationDate = c.date
	q.ValidUntil = c.validUntil
	q.Currency = c.currency
	q.CustomerName = c.customerName
	q.CustomerAddress = c.customerAddress
	q.ContactPerson = c.contactPerson
	q.Items = c.items
	q.Terms = c.terms
	q.PaymentPlan = c.plan
	q.DeliverySchedule = c.deliverySchedule
	q.SpecialInstructions = c.specialInstructions
}

func (r TransitionRequest) input() lifecycle.Input {
	in := lifecycle.Input{
		LostReason: lifecycle.LostReason(strings.ToUpper(strings.TrimSpace(r.LostReason))),
		LostNote:   r.LostNote,
	}
	if r.PurchaseOrder != nil {
		in.PurchaseOrder = &lifecycle.PurchaseOrder{Number: r.PurchaseOrder.Number, Value: r.PurchaseOrder.Value}
	}
	return in
}

func (r ListRequest) filter() (Filter, shared.Pagination) {
	page := shared.NewPagination(r.Page, r.PerPage, 0)
	if page.PerPage > 100 {
		page.PerPage = 100
	}
	return Filter{
		EnquiryID: r.EnquiryID,
		Status:    r.Status,
		DateFrom:  r.DateFrom,
		DateTo:    r.DateTo,
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	}, page
}
