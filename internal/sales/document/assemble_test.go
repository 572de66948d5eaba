package document

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

func sampleSource(items int) Source {
	valid := time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC)
	src := Source{
		Number:     "QT/25-26/0042",
		Revision:   1,
		Date:       time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		ValidUntil: &valid,
		Currency:   "INR",
		Status:     "LIVE",
		Customer:   Party{Name: "Acme Process Pvt Ltd", Address: "Plot 14, MIDC Phase II, Pune 411026", Contact: "R. Kulkarni"},
		Terms: pricing.CommercialTerms{
			TransportCost: decimal.NewFromInt(50000),
			InsuranceCost: decimal.NewFromInt(25000),
		},
		Plan:             paymentplan.Custom("30-30-40"),
		DeliverySchedule: "12 weeks from receipt of advance",
	}
	for i := 0; i < items; i++ {
		src.Items = append(src.Items, pricing.LineItem{
			Description: fmt.Sprintf("Item %d shell and tube heat exchanger", i+1),
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(1000),
		})
	}
	return src
}

func assemble(src Source, opts Options) PrintableDocument {
	return Assemble(src, pricing.ComputeTotals(src.Items, src.Terms), opts)
}

func kinds(d PrintableDocument) []BlockKind {
	var out []BlockKind
	for _, b := range d.Blocks() {
		out = append(out, b.Kind)
	}
	return out
}

func assertPagesWithinCapacity(t *testing.T, d PrintableDocument, capacity float64) {
	t.Helper()
	for _, page := range d.Pages {
		var used float64
		oversized := false
		for _, b := range page.Blocks {
			used += b.HeightMM
			oversized = oversized || b.Oversized
		}
		if oversized {
			assert.Len(t, page.Blocks, 1, "oversized piece shares page %d", page.Number)
			continue
		}
		assert.LessOrEqual(t, used, capacity, "page %d overflows", page.Number)
	}
}

func TestAssembleSinglePage(t *testing.T) {
	src := sampleSource(2)
	src.Items[0].UnitPrice = decimal.NewFromInt(2000000)
	src.Items[1].UnitPrice = decimal.NewFromInt(300000)

	doc := assemble(src, Options{Company: Party{Name: "Odyssey Engineering"}})

	require.Len(t, doc.Pages, 1)
	assert.Equal(t, []BlockKind{BlockHeader, BlockParties, BlockItems, BlockTotals, BlockSchedule, BlockTerms}, kinds(doc))
	assert.Equal(t, "QT/25-26/0042", doc.Number)

	header, ok := doc.Find(BlockHeader)
	require.True(t, ok)
	assert.Equal(t, "31 Mar 2026", header.Header.Date)
	assert.Equal(t, "30 Apr 2026", header.Header.ValidUntil)
	assert.Equal(t, "Odyssey Engineering", header.Header.Company)

	totals, ok := doc.Find(BlockTotals)
	require.True(t, ok)
	assert.Equal(t, "₹24,44,000.00", totals.Totals.GrandTotal.Text)
	assert.Equal(t, "Rupees Twenty Four Lakh Forty Four Thousand Only", totals.Totals.InWords)
	assert.Equal(t, "Packing & Forwarding (3%)", totals.Totals.Lines[1].Label)
	assert.Equal(t, "₹69,000.00", totals.Totals.Lines[1].Text)

	schedule, ok := doc.Find(BlockSchedule)
	require.True(t, ok)
	require.Len(t, schedule.Schedule.Lines, 3)
	sum := decimal.Zero
	for _, l := range schedule.Schedule.Lines {
		sum = sum.Add(l.Amount)
	}
	assert.True(t, decimal.NewFromInt(2444000).Equal(sum))
	assert.Equal(t, "₹7,33,200.00", schedule.Schedule.Lines[0].Text)

	rows := doc.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "₹20,00,000.00", rows[0].LineTotalText)
}

func TestAssembleSplitsItemTableBetweenRows(t *testing.T) {
	src := sampleSource(80)
	doc := assemble(src, Options{})

	require.Greater(t, len(doc.Pages), 2)
	assertPagesWithinCapacity(t, doc, 257)

	rows := doc.Rows()
	require.Len(t, rows, 80)
	for i, r := range rows {
		assert.Equal(t, i+1, r.Index)
	}

	var tableBlocks []Block
	for _, b := range doc.Blocks() {
		if b.Kind == BlockItems {
			tableBlocks = append(tableBlocks, b)
		}
	}
	require.Greater(t, len(tableBlocks), 1)
	assert.False(t, tableBlocks[0].Continued)
	for _, b := range tableBlocks[1:] {
		assert.True(t, b.Continued)
		assert.Equal(t, itemColumns, b.Items.Columns, "header repeats on continuation pages")
	}
	assert.Equal(t, BlockTerms, kinds(doc)[len(kinds(doc))-1])
}

func TestAssembleOversizedRowGetsOwnPage(t *testing.T) {
	src := sampleSource(3)
	src.Items[1].Specifications = strings.Repeat("stainless steel 316L tubes ", 160)

	doc := assemble(src, Options{})
	assertPagesWithinCapacity(t, doc, 257)

	var oversized []Block
	for _, b := range doc.Blocks() {
		if b.Oversized {
			oversized = append(oversized, b)
		}
	}
	require.Len(t, oversized, 1)
	assert.Equal(t, BlockItems, oversized[0].Kind)
	require.Len(t, oversized[0].Items.Rows, 1)
	assert.Equal(t, 2, oversized[0].Items.Rows[0].Index)
	assert.Len(t, doc.Rows(), 3)
}

func TestAssembleOversizedBlock(t *testing.T) {
	src := sampleSource(1)
	src.SpecialInstructions = strings.Repeat("All welding to be radiographed. ", 900)

	doc := assemble(src, Options{})
	last := doc.Pages[len(doc.Pages)-1]
	require.Len(t, last.Blocks, 1)
	assert.Equal(t, BlockTerms, last.Blocks[0].Kind)
	assert.True(t, last.Blocks[0].Oversized)
}

func TestAssembleIsPure(t *testing.T) {
	src := sampleSource(30)
	first := assemble(src, Options{PageHeightMM: 180})
	second := assemble(src, Options{PageHeightMM: 180})
	assert.Equal(t, first, second)

	for i, page := range first.Pages {
		assert.Equal(t, i+1, page.Number)
	}
}

func TestAssembleInvalidPlanStillRenders(t *testing.T) {
	src := sampleSource(1)
	src.Plan = paymentplan.Custom("30-30")
	doc := assemble(src, Options{})

	schedule, ok := doc.Find(BlockSchedule)
	require.True(t, ok)
	assert.Empty(t, schedule.Schedule.Lines)
	assert.Equal(t, "To be agreed", schedule.Schedule.Summary)
}

func TestAssembleEmptyItems(t *testing.T) {
	src := sampleSource(0)
	doc := assemble(src, Options{})
	table, ok := doc.Find(BlockItems)
	require.True(t, ok)
	assert.Empty(t, table.Items.Rows)
	assert.Equal(t, itemColumns, table.Items.Columns)
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"the quick", "brown fox"}, wrap("the quick brown fox", 10))
	assert.Equal(t, []string{"abcde", "fghij", "k"}, wrap("abcdefghijk", 5))
	assert.Equal(t, []string{"line one", "line two"}, wrap("line one\nline two", 40))
	assert.Empty(t, wrap("   ", 10))
}
