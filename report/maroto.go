package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/page"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
)

const lineHeightMM = 5

var (
	headerBg   = &props.Color{Red: 33, Green: 37, Blue: 41}
	white      = &props.Color{Red: 255, Green: 255, Blue: 255}
	muted      = &props.Color{Red: 100, Green: 100, Blue: 100}
	summaryBg  = &props.Color{Red: 245, Green: 245, Blue: 245}
	headerCell = &props.Cell{BackgroundColor: headerBg}
)

// MarotoRenderer draws PDFs in-process with maroto. It needs no external
// service and is used when Gotenberg is not configured.
type MarotoRenderer struct{}

// NewMarotoRenderer returns the renderer.
func NewMarotoRenderer() *MarotoRenderer {
	return &MarotoRenderer{}
}

// Render returns PDF bytes for doc. Every assembled page starts a new PDF page.
func (r *MarotoRenderer) Render(ctx context.Context, doc document.PrintableDocument) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Vertical).
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).
		WithTopMargin(20).
		WithRightMargin(10).
		WithBottomMargin(20).
		WithPageNumber(props.PageNumber{
			Pattern: doc.Number + "  Page {current} of {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   muted,
		}).
		Build()

	m := maroto.New(cfg)
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rows []core.Row
		for _, b := range p.Blocks {
			rows = append(rows, blockRows(b)...)
			rows = append(rows, row.New(3))
		}
		m.AddPages(page.New().Add(rows...))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("report: generate pdf: %w", err)
	}
	return out.GetBytes(), nil
}

func blockRows(b document.Block) []core.Row {
	switch {
	case b.Header != nil:
		return headerRows(b.Header)
	case b.Parties != nil:
		return partiesRows(b.Parties)
	case b.Items != nil:
		return itemRows(b.Items, b.Continued)
	case b.Totals != nil:
		return totalsRows(b.Totals)
	case b.Schedule != nil:
		return scheduleRows(b.Schedule)
	case b.Terms != nil:
		return termsRows(b.Terms)
	}
	return nil
}

func headerRows(h *document.HeaderBlock) []core.Row {
	ref := "No. " + h.Number
	if h.Revision > 0 {
		ref += " Rev " + strconv.Itoa(h.Revision)
	}
	dates := "Date: " + h.Date
	if h.ValidUntil != "" {
		dates += " | Valid until: " + h.ValidUntil
	}
	return []core.Row{
		row.New(10).Add(
			col.New(6).Add(txt(h.Company, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Left})),
			col.New(6).Add(txt(h.Title, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right})),
		),
		row.New(7).Add(
			col.New(6).Add(txt(dates, props.Text{Size: 8, Align: align.Left, Color: muted})),
			col.New(6).Add(txt(ref, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right})),
		),
	}
}

func partiesRows(p *document.PartiesBlock) []core.Row {
	label := props.Text{Size: 7, Style: fontstyle.Bold, Align: align.Left, Color: muted}
	value := props.Text{Size: 8, Align: align.Left}
	rows := []core.Row{
		row.New(5).Add(
			col.New(6).Add(txt("FROM", label)),
			col.New(6).Add(txt("TO", label)),
		),
		row.New(6).Add(
			col.New(6).Add(txt(p.From.Name, props.Text{Size: 9, Style: fontstyle.Bold})),
			col.New(6).Add(txt(p.To.Name, props.Text{Size: 9, Style: fontstyle.Bold})),
		),
	}
	if p.From.Address != "" || p.To.Address != "" {
		rows = append(rows, row.New(10).Add(
			col.New(6).Add(txt(p.From.Address, value)),
			col.New(6).Add(txt(p.To.Address, value)),
		))
	}
	if p.To.Contact != "" {
		rows = append(rows, row.New(5).Add(
			col.New(6),
			col.New(6).Add(txt("Attn: "+p.To.Contact, value)),
		))
	}
	return rows
}

var itemColumnSizes = []int{1, 6, 1, 2, 2}

func itemRows(t *document.ItemTable, continued bool) []core.Row {
	headerText := props.Text{Size: 7, Style: fontstyle.Bold, Align: align.Center, Color: white}
	var rows []core.Row
	if continued {
		rows = append(rows, row.New(5).Add(
			col.New(12).Add(txt("(continued)", props.Text{Size: 7, Style: fontstyle.Italic, Color: muted})),
		))
	}
	header := row.New(8)
	for i, name := range t.Columns {
		size := 1
		if i < len(itemColumnSizes) {
			size = itemColumnSizes[i]
		}
		header.Add(col.New(size).Add(txt(name, headerText)).WithStyle(headerCell))
	}
	rows = append(rows, header)

	body := props.Text{Size: 7, Align: align.Center}
	left := props.Text{Size: 7, Align: align.Left}
	right := props.Text{Size: 7, Align: align.Right}
	for _, r := range t.Rows {
		desc := strings.Join(r.DescriptionLines, " ")
		descCol := col.New(6).Add(txt(desc, left))
		if len(r.Specifications) > 0 {
			descCol = col.New(6).Add(
				txt(desc, left),
				txt(strings.Join(r.Specifications, " "), props.Text{
					Size:  6,
					Top:   float64(len(r.DescriptionLines)) * lineHeightMM,
					Align: align.Left,
					Color: muted,
				}),
			)
		}
		rows = append(rows, row.New(r.HeightMM).Add(
			col.New(1).Add(txt(strconv.Itoa(r.Index), body)),
			descCol,
			col.New(1).Add(txt(strconv.FormatInt(r.Quantity, 10), right)),
			col.New(2).Add(txt(r.UnitPriceText, right)),
			col.New(2).Add(txt(r.LineTotalText, right)),
		))
	}
	return rows
}

func totalsRows(t *document.TotalsBlock) []core.Row {
	label := props.Text{Size: 8, Style: fontstyle.Bold, Align: align.Right}
	value := props.Text{Size: 8, Align: align.Right}
	summary := &props.Cell{BackgroundColor: summaryBg}
	var rows []core.Row
	for _, l := range t.Lines {
		rows = append(rows, row.New(6).Add(
			col.New(9).Add(txt(l.Label, label)).WithStyle(summary),
			col.New(3).Add(txt(l.Text, value)).WithStyle(summary),
		))
	}
	grand := props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right, Color: white}
	rows = append(rows,
		row.New(8).Add(
			col.New(9).Add(txt(t.GrandTotal.Label, grand)).WithStyle(headerCell),
			col.New(3).Add(txt(t.GrandTotal.Text, grand)).WithStyle(headerCell),
		),
		row.New(8).Add(
			col.New(12).Add(txt("Amount in words: "+t.InWords, props.Text{Size: 8, Style: fontstyle.BoldItalic, Top: 2})),
		),
	)
	return rows
}

func scheduleRows(s *document.ScheduleBlock) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(txt("PAYMENT SCHEDULE", props.Text{Size: 8, Style: fontstyle.Bold, Color: muted}))),
		row.New(6).Add(col.New(12).Add(txt(s.Summary, props.Text{Size: 8}))),
	}
	for _, l := range s.Lines {
		rows = append(rows, row.New(6).Add(
			col.New(1).Add(txt(strconv.Itoa(l.Sequence), props.Text{Size: 8, Align: align.Center})),
			col.New(7).Add(txt(l.Description, props.Text{Size: 8})),
			col.New(1).Add(txt(l.Percentage, props.Text{Size: 8, Align: align.Right})),
			col.New(3).Add(txt(l.Text, props.Text{Size: 8, Align: align.Right})),
		))
	}
	return rows
}

func termsRows(t *document.TermsBlock) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(txt("TERMS & CONDITIONS", props.Text{Size: 8, Style: fontstyle.Bold, Color: muted}))),
	}
	for _, e := range t.Entries {
		rows = append(rows, row.New(float64(len(e.Lines))*lineHeightMM+2).Add(
			col.New(3).Add(txt(e.Label, props.Text{Size: 8, Style: fontstyle.Bold})),
			col.New(9).Add(txt(strings.Join(e.Lines, " "), props.Text{Size: 8})),
		))
	}
	return rows
}

// The core PDF fonts have no rupee glyph.
var coreFontSafe = strings.NewReplacer("₹", "Rs. ")

func txt(value string, p props.Text) core.Component {
	return text.New(coreFontSafe.Replace(value), p)
}
