// Package document lays a quotation out as printable blocks packed into pages.
//
// Assemble is a pure transformation. Turning a PrintableDocument into PDF or
// spreadsheet bytes is done by the renderers in report/.
package document

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

// BlockKind discriminates Block.
type BlockKind string

const (
	BlockHeader   BlockKind = "header"
	BlockParties  BlockKind = "parties"
	BlockItems    BlockKind = "items"
	BlockTotals   BlockKind = "totals"
	BlockSchedule BlockKind = "payment_schedule"
	BlockTerms    BlockKind = "terms"
)

// Party is one side of the proposal.
type Party struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// Source is the persisted quotation data the assembler reads.
type Source struct {
	Number              string
	Revision            int
	Date                time.Time
	ValidUntil          *time.Time
	Currency            string
	Status              string
	Customer            Party
	Items               []pricing.LineItem
	Terms               pricing.CommercialTerms
	Plan                paymentplan.Plan
	DeliverySchedule    string
	SpecialInstructions string
}

// PrintableDocument is the paginated layout of one quotation.
type PrintableDocument struct {
	Title    string `json:"title"`
	Number   string `json:"number"`
	Revision int    `json:"revision"`
	Currency string `json:"currency"`
	Pages    []Page `json:"pages"`
}

// Page is one printed page.
type Page struct {
	Number int     `json:"number"`
	Blocks []Block `json:"blocks"`
	UsedMM float64 `json:"used_mm"`
}

// Block is a tagged union: exactly the field matching Kind is set.
type Block struct {
	Kind      BlockKind `json:"kind"`
	HeightMM  float64   `json:"height_mm"`
	Continued bool      `json:"continued,omitempty"`
	Oversized bool      `json:"oversized,omitempty"`

	Header   *HeaderBlock   `json:"header,omitempty"`
	Parties  *PartiesBlock  `json:"parties,omitempty"`
	Items    *ItemTable     `json:"items,omitempty"`
	Totals   *TotalsBlock   `json:"totals,omitempty"`
	Schedule *ScheduleBlock `json:"payment_schedule,omitempty"`
	Terms    *TermsBlock    `json:"terms,omitempty"`
}

type HeaderBlock struct {
	Title      string `json:"title"`
	Company    string `json:"company"`
	Number     string `json:"number"`
	Revision   int    `json:"revision"`
	Date       string `json:"date"`
	ValidUntil string `json:"valid_until,omitempty"`
	Status     string `json:"status,omitempty"`
}

type PartiesBlock struct {
	From Party `json:"from"`
	To   Party `json:"to"`
}

// ItemTable is the line-item table, or the slice of it that fits one page.
// Columns repeat on every continuation page.
type ItemTable struct {
	Columns []string  `json:"columns"`
	Rows    []ItemRow `json:"rows"`
}

// ItemRow is atomic: it is never split across pages.
type ItemRow struct {
	Index            int             `json:"index"`
	DescriptionLines []string        `json:"description_lines"`
	Specifications   []string        `json:"specifications,omitempty"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	UnitPriceText    string          `json:"unit_price_text"`
	LineTotalText    string          `json:"line_total_text"`
	HeightMM         float64         `json:"height_mm"`
}

type TotalsLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Text   string          `json:"text"`
}

type TotalsBlock struct {
	Lines      []TotalsLine `json:"lines"`
	GrandTotal TotalsLine   `json:"grand_total"`
	InWords    string       `json:"in_words"`
}

type ScheduleLine struct {
	Sequence    int             `json:"sequence"`
	Description string          `json:"description"`
	Percentage  string          `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	Text        string          `json:"text"`
}

type ScheduleBlock struct {
	Summary string         `json:"summary"`
	Lines   []ScheduleLine `json:"lines"`
}

type TermEntry struct {
	Label string   `json:"label"`
	Lines []string `json:"lines"`
}

type TermsBlock struct {
	Entries []TermEntry `json:"entries"`
}

// Blocks returns every block of the document in print order.
func (d PrintableDocument) Blocks() []Block {
	var out []Block
	for _, p := range d.Pages {
		out = append(out, p.Blocks...)
	}
	return out
}

// Rows returns every item row across pages.
func (d PrintableDocument) Rows() []ItemRow {
	var rows []ItemRow
	for _, b := range d.Blocks() {
		if b.Kind == BlockItems && b.Items != nil {
			rows = append(rows, b.Items.Rows...)
		}
	}
	return rows
}

// Find returns the first block of kind.
func (d PrintableDocument) Find(kind BlockKind) (Block, bool) {
	for _, b := range d.Blocks() {
		if b.Kind == kind {
			return b, true
		}
	}
	return Block{}, false
}
