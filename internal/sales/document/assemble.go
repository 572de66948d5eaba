package document

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/money"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

const dateLayout = "02 Jan 2006"

// Options controls layout estimates. Zero fields take A4 defaults.
type Options struct {
	Title          string
	Company        Party
	PageHeightMM   float64
	LineHeightMM   float64
	WrapWidth      int
	TermsWrapWidth int
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "QUOTATION"
	}
	if o.PageHeightMM <= 0 {
		o.PageHeightMM = 257 // A4 minus 20mm top and bottom margins
	}
	if o.LineHeightMM <= 0 {
		o.LineHeightMM = 5
	}
	if o.WrapWidth <= 0 {
		o.WrapWidth = 48
	}
	if o.TermsWrapWidth <= 0 {
		o.TermsWrapWidth = 90
	}
	return o
}

const (
	headerBaseMM     = 24
	partiesBaseMM    = 14
	tableHeaderMM    = 8
	rowPaddingMM     = 3
	totalsBaseMM     = 14
	totalsLineMM     = 6
	scheduleBaseMM   = 12
	scheduleLineMM   = 6
	termsBaseMM      = 8
	termsEntryGapMM  = 2
	blockSeparatorMM = 4
)

var itemColumns = []string{"#", "Description", "Qty", "Unit Price", "Amount"}

// Assemble builds the printable layout of src using the already computed
// totals. It performs no I/O.
func Assemble(src Source, totals pricing.Totals, opts Options) PrintableDocument {
	opts = opts.withDefaults()
	currency := src.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}

	doc := PrintableDocument{
		Title:    opts.Title,
		Number:   src.Number,
		Revision: src.Revision,
		Currency: currency,
	}

	p := newPacker(opts.PageHeightMM)
	p.place(headerBlock(src, opts))
	p.place(partiesBlock(src, opts))
	p.placeTable(itemRows(src, totals, currency, opts))
	p.place(totalsBlock(totals, currency))
	p.place(scheduleBlock(src.Plan, totals, currency))
	p.place(termsBlock(src, totals, opts))

	doc.Pages = p.finish()
	return doc
}

func headerBlock(src Source, opts Options) Block {
	h := &HeaderBlock{
		Title:    opts.Title,
		Company:  opts.Company.Name,
		Number:   src.Number,
		Revision: src.Revision,
		Date:     src.Date.Format(dateLayout),
		Status:   src.Status,
	}
	if src.ValidUntil != nil {
		h.ValidUntil = src.ValidUntil.Format(dateLayout)
	}
	return Block{Kind: BlockHeader, HeightMM: headerBaseMM, Header: h}
}

func partiesBlock(src Source, opts Options) Block {
	lines := max(partyLines(opts.Company, opts), partyLines(src.Customer, opts))
	return Block{
		Kind:     BlockParties,
		HeightMM: partiesBaseMM + float64(lines)*opts.LineHeightMM,
		Parties:  &PartiesBlock{From: opts.Company, To: src.Customer},
	}
}

func partyLines(p Party, opts Options) int {
	n := 1 + len(wrap(p.Address, opts.WrapWidth))
	for _, s := range []string{p.Contact, p.Phone, p.Email, p.TaxID} {
		if s != "" {
			n++
		}
	}
	return n
}

func itemRows(src Source, totals pricing.Totals, currency string, opts Options) []ItemRow {
	rows := make([]ItemRow, 0, len(totals.Breakdown.Lines))
	for i, line := range totals.Breakdown.Lines {
		desc := wrap(line.Description, opts.WrapWidth)
		if len(desc) == 0 {
			desc = []string{""}
		}
		var specs []string
		if i < len(src.Items) {
			specs = wrap(src.Items[i].Specifications, opts.WrapWidth)
		}
		rows = append(rows, ItemRow{
			Index:            line.Index,
			DescriptionLines: desc,
			Specifications:   specs,
			Quantity:         line.Quantity,
			UnitPrice:        line.UnitPrice,
			LineTotal:        line.LineTotal,
			UnitPriceText:    money.Format(line.UnitPrice, currency),
			LineTotalText:    money.Format(line.LineTotal, currency),
			HeightMM:         float64(len(desc)+len(specs))*opts.LineHeightMM + rowPaddingMM,
		})
	}
	return rows
}

func totalsBlock(totals pricing.Totals, currency string) Block {
	b := totals.Breakdown
	line := func(label string, amount decimal.Decimal) TotalsLine {
		return TotalsLine{Label: label, Amount: amount, Text: money.Format(amount, currency)}
	}
	lines := []TotalsLine{
		line("Subtotal", b.Subtotal),
		line(fmt.Sprintf("Packing & Forwarding (%s%%)", b.PackingForwardingPercentage.String()), b.PackingForwardingAmount),
		line("Transport", b.TransportCost),
		line("Insurance", b.InsuranceCost),
		line("GST", b.GSTAmount),
	}
	return Block{
		Kind:     BlockTotals,
		HeightMM: totalsBaseMM + float64(len(lines)+1)*totalsLineMM,
		Totals: &TotalsBlock{
			Lines:      lines,
			GrandTotal: line("Grand Total", b.GrandTotal),
			InWords:    money.AmountInWords(b.GrandTotal, currency),
		},
	}
}

func scheduleBlock(plan paymentplan.Plan, totals pricing.Totals, currency string) Block {
	sb := &ScheduleBlock{Summary: plan.Describe()}
	if milestones, err := plan.Resolve(totals.GrandTotal, 2); err == nil {
		for _, m := range milestones {
			sb.Lines = append(sb.Lines, ScheduleLine{
				Sequence:    m.Sequence,
				Description: m.Description,
				Percentage:  m.Percentage.String() + "%",
				Amount:      m.Amount,
				Text:        money.Format(m.Amount, currency),
			})
		}
	}
	return Block{
		Kind:     BlockSchedule,
		HeightMM: scheduleBaseMM + float64(len(sb.Lines))*scheduleLineMM,
		Schedule: sb,
	}
}

func termsBlock(src Source, totals pricing.Totals, opts Options) Block {
	var entries []TermEntry
	add := func(label, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		entries = append(entries, TermEntry{Label: label, Lines: wrap(text, opts.TermsWrapWidth)})
	}
	if src.ValidUntil != nil {
		add("Validity", "This offer is valid until "+src.ValidUntil.Format(dateLayout)+".")
	}
	add("Delivery", src.DeliverySchedule)
	add("Payment", src.Plan.Describe())
	add("Packing & Forwarding", totals.Breakdown.PackingForwardingPercentage.String()+"% of the subtotal, included above.")
	add("Special Instructions", src.SpecialInstructions)

	height := float64(termsBaseMM)
	for _, e := range entries {
		height += float64(len(e.Lines))*opts.LineHeightMM + termsEntryGapMM
	}
	return Block{Kind: BlockTerms, HeightMM: height, Terms: &TermsBlock{Entries: entries}}
}

// wrap breaks text into lines of at most width runes, on word boundaries
// where possible. Explicit newlines are kept.
func wrap(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(strings.TrimSpace(text), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		var line []rune
		for _, w := range words {
			word := []rune(w)
			for len(word) > width {
				if len(line) > 0 {
					out = append(out, string(line))
					line = nil
				}
				out = append(out, string(word[:width]))
				word = word[width:]
			}
			switch {
			case len(line) == 0:
				line = append(line, word...)
			case len(line)+1+len(word) <= width:
				line = append(append(line, ' '), word...)
			default:
				out = append(out, string(line))
				line = append([]rune(nil), word...)
			}
		}
		if len(line) > 0 {
			out = append(out, string(line))
		}
	}
	return out
}
