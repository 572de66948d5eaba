package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
)

var htmlTemplate = template.Must(template.New("quotation").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Number}}</title>
<style>
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 10pt; color: #212529; }
section.page { page-break-after: always; }
section.page:last-child { page-break-after: auto; }
h1 { font-size: 16pt; margin: 0; }
table { width: 100%; border-collapse: collapse; margin: 4mm 0; }
th { background: #212529; color: #fff; text-align: left; padding: 2mm; }
td { border-bottom: 1px solid #dee2e6; padding: 1.5mm 2mm; vertical-align: top; }
td.num { text-align: right; white-space: nowrap; }
.muted { color: #6c757d; }
.grand td { font-weight: bold; border-top: 2px solid #212529; }
.words { font-style: italic; }
</style>
</head>
<body>
{{range .Pages}}<section class="page" data-page="{{.Number}}">
{{range .Blocks}}{{if .Header}}<header>
<h1>{{.Header.Title}}</h1>
<div>{{.Header.Company}}</div>
<div>No. <strong>{{.Header.Number}}</strong>{{if .Header.Revision}} Rev {{.Header.Revision}}{{end}} &middot; Date {{.Header.Date}}{{if .Header.ValidUntil}} &middot; Valid until {{.Header.ValidUntil}}{{end}}</div>
</header>
{{else if .Parties}}<table><tr>
<td><div class="muted">From</div><strong>{{.Parties.From.Name}}</strong><div>{{.Parties.From.Address}}</div></td>
<td><div class="muted">To</div><strong>{{.Parties.To.Name}}</strong><div>{{.Parties.To.Address}}</div>{{if .Parties.To.Contact}}<div>Attn: {{.Parties.To.Contact}}</div>{{end}}</td>
</tr></table>
{{else if .Items}}<table class="items">
<thead><tr>{{range .Items.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Items.Rows}}<tr>
<td>{{.Index}}</td>
<td>{{range .DescriptionLines}}<div>{{.}}</div>{{end}}{{range .Specifications}}<div class="muted">{{.}}</div>{{end}}</td>
<td class="num">{{.Quantity}}</td>
<td class="num">{{.UnitPriceText}}</td>
<td class="num">{{.LineTotalText}}</td>
</tr>{{end}}</tbody>
</table>
{{else if .Totals}}<table class="totals">
{{range .Totals.Lines}}<tr><td>{{.Label}}</td><td class="num">{{.Text}}</td></tr>
{{end}}<tr class="grand"><td>{{.Totals.GrandTotal.Label}}</td><td class="num">{{.Totals.GrandTotal.Text}}</td></tr>
</table>
<p class="words">{{.Totals.InWords}}</p>
{{else if .Schedule}}<h3>Payment Schedule</h3>
<p>{{.Schedule.Summary}}</p>
{{if .Schedule.Lines}}<table>{{range .Schedule.Lines}}<tr><td>{{.Sequence}}</td><td>{{.Description}}</td><td class="num">{{.Percentage}}</td><td class="num">{{.Text}}</td></tr>{{end}}</table>{{end}}
{{else if .Terms}}<h3>Terms &amp; Conditions</h3>
<dl>{{range .Terms.Entries}}<dt>{{.Label}}</dt><dd>{{range .Lines}}{{.}}<br>{{end}}</dd>{{end}}</dl>
{{end}}{{end}}</section>
{{end}}
</body>
</html>
`))

// RenderHTML writes doc as a printable HTML page, one section per page.
func RenderHTML(doc document.PrintableDocument) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("report: render html: %w", err)
	}
	return buf.String(), nil
}
