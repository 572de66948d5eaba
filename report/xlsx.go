package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
)

const (
	quotationSheet = "Quotation"
	scheduleSheet  = "Payment Schedule"
	amountFormat   = "#,##0.00"
)

// XLSXRenderer exports a document as an editable spreadsheet. Amounts are
// written as numbers so they can be re-totalled; page breaks are ignored.
type XLSXRenderer struct{}

// NewXLSXRenderer returns the renderer.
func NewXLSXRenderer() *XLSXRenderer {
	return &XLSXRenderer{}
}

type sheetStyles struct {
	title, header, cell, amount, label, grand int
}

// Render returns the workbook bytes for doc.
func (r *XLSXRenderer) Render(_ context.Context, doc document.PrintableDocument) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), quotationSheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}
	for col, width := range map[string]float64{"A": 6, "B": 56, "C": 10, "D": 18, "E": 20} {
		if err := f.SetColWidth(quotationSheet, col, col, width); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", col, err)
		}
	}

	w := &sheetWriter{f: f, sheet: quotationSheet, row: 1}
	if h, ok := doc.Find(document.BlockHeader); ok {
		w.merged(fmt.Sprintf("%s %s", h.Header.Title, h.Header.Number), styles.title)
		if h.Header.Company != "" {
			w.merged(h.Header.Company, 0)
		}
		dates := "Date: " + h.Header.Date
		if h.Header.ValidUntil != "" {
			dates += "    Valid until: " + h.Header.ValidUntil
		}
		w.merged(dates, 0)
	}
	if p, ok := doc.Find(document.BlockParties); ok {
		w.merged("Customer: "+p.Parties.To.Name, styles.label)
		if p.Parties.To.Address != "" {
			w.merged(p.Parties.To.Address, 0)
		}
		if p.Parties.To.Contact != "" {
			w.merged("Attn: "+p.Parties.To.Contact, 0)
		}
	}
	w.row++

	headerRow := w.row
	for i, name := range []string{"#", "Description", "Qty", "Unit Price", "Amount"} {
		w.set(i, name)
	}
	w.style("A", "E", styles.header)
	w.row++
	for _, item := range doc.Rows() {
		desc := strings.Join(item.DescriptionLines, " ")
		if len(item.Specifications) > 0 {
			desc += "\n" + strings.Join(item.Specifications, " ")
		}
		w.set(0, item.Index)
		w.set(1, sanitizeCell(desc))
		w.set(2, item.Quantity)
		w.set(3, item.UnitPrice.InexactFloat64())
		w.set(4, item.LineTotal.InexactFloat64())
		w.style("A", "C", styles.cell)
		w.style("D", "E", styles.amount)
		w.row++
	}
	if err := f.SetPanes(quotationSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}
	w.row++

	if t, ok := doc.Find(document.BlockTotals); ok {
		for _, l := range t.Totals.Lines {
			w.set(3, l.Label)
			w.set(4, l.Amount.InexactFloat64())
			w.style("D", "D", styles.label)
			w.style("E", "E", styles.amount)
			w.row++
		}
		w.set(3, t.Totals.GrandTotal.Label)
		w.set(4, t.Totals.GrandTotal.Amount.InexactFloat64())
		w.style("D", "E", styles.grand)
		w.row++
		w.merged(t.Totals.InWords, 0)
	}
	if t, ok := doc.Find(document.BlockTerms); ok {
		w.row++
		for _, e := range t.Terms.Entries {
			w.set(0, e.Label)
			w.style("A", "A", styles.label)
			w.set(1, sanitizeCell(strings.Join(e.Lines, " ")))
			w.row++
		}
	}

	if s, ok := doc.Find(document.BlockSchedule); ok {
		if _, err := f.NewSheet(scheduleSheet); err != nil {
			return nil, fmt.Errorf("add schedule sheet: %w", err)
		}
		sw := &sheetWriter{f: f, sheet: scheduleSheet, row: 1}
		sw.set(0, s.Schedule.Summary)
		sw.row += 2
		for i, name := range []string{"#", "Milestone", "Percentage", "Amount"} {
			sw.set(i, name)
		}
		sw.style("A", "D", styles.header)
		sw.row++
		for _, l := range s.Schedule.Lines {
			sw.set(0, l.Sequence)
			sw.set(1, l.Description)
			sw.set(2, l.Percentage)
			sw.set(3, l.Amount.InexactFloat64())
			sw.style("D", "D", styles.amount)
			sw.row++
		}
		if err := f.SetColWidth(scheduleSheet, "B", "B", 56); err != nil {
			return nil, fmt.Errorf("set schedule width: %w", err)
		}
	}
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter writes cells row by row and keeps the first error.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

var columns = []string{"A", "B", "C", "D", "E"}

func (w *sheetWriter) cell(col string) string {
	return fmt.Sprintf("%s%d", col, w.row)
}

func (w *sheetWriter) set(col int, value any) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(w.sheet, w.cell(columns[col]), value)
}

func (w *sheetWriter) style(from, to string, style int) {
	if w.err != nil || style == 0 {
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, w.cell(from), w.cell(to), style)
}

func (w *sheetWriter) merged(value string, style int) {
	if w.err != nil {
		return
	}
	if w.err = w.f.MergeCell(w.sheet, w.cell("A"), w.cell("E")); w.err != nil {
		return
	}
	w.set(0, sanitizeCell(value))
	w.style("A", "E", style)
	w.row++
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	format := amountFormat
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}}},
		{&s.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#212529"}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Border:    thinBorders(),
		}},
		{&s.cell, &excelize.Style{Border: thinBorders(), Alignment: &excelize.Alignment{Vertical: "top", WrapText: true}}},
		{&s.amount, &excelize.Style{Border: thinBorders(), CustomNumFmt: &format}},
		{&s.label, &excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: &excelize.Alignment{Horizontal: "right"}}},
		{&s.grand, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}, CustomNumFmt: &format}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return s, fmt.Errorf("create style: %w", err)
		}
		*d.dst = id
	}
	return s, nil
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{Type: side, Color: "#000000", Style: 1}
	}
	return borders
}

// sanitizeCell stops spreadsheet apps from evaluating user text as a formula.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
