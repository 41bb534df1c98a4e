package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"

	"github.com/tutorly/tutorly/internal/finance"
)

var payslipTemplate = template.Must(template.New("payslip").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<head>
<meta charset="utf-8">
<title>Payslip teacher {{.TeacherID}} group {{.StudyGroupID}}</title>
<style>
body { font-family: sans-serif; font-size: 11px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 3px 6px; }
td.amount { text-align: end; font-variant-numeric: tabular-nums; }
tr.total td { font-weight: bold; }
</style>
</head>
<body>
<h1>Payslip</h1>
<p>Teacher {{.TeacherID}}, study group {{.StudyGroupID}}{{if .Period}}, {{.Period}}{{end}}</p>
<table>
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr{{if .Total}} class="total"{{end}}>{{range $i, $c := .Cells}}<td{{if eq $i $.AmountColumn}} class="amount"{{end}}>{{$c}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
<p>Generated {{.GeneratedAt}}</p>
</body>
</html>
`))

type payslipRow struct {
	Cells []string
	Total bool
}

type payslipView struct {
	Lang         string
	Dir          string
	TeacherID    int64
	StudyGroupID int64
	Period       string
	Header       []string
	Rows         []payslipRow
	AmountColumn int
	GeneratedAt  string
}

// Payslips renders teacher finances as PDF documents.
type Payslips struct {
	client *Client
	now    func() time.Time
}

// NewPayslips binds the renderer to a Gotenberg client.
func NewPayslips(client *Client) *Payslips {
	return &Payslips{client: client, now: time.Now}
}

// PayslipHTML renders the HTML document for tf. Rows mirror the CSV export.
func (p *Payslips) PayslipHTML(tf finance.TeacherFinance, tag language.Tag) ([]byte, error) {
	rows := finance.ExportRows(tf, tag)
	view := payslipView{
		Lang:         tag.String(),
		Dir:          "ltr",
		TeacherID:    tf.TeacherID,
		StudyGroupID: tf.StudyGroupID,
		Header:       rows[0],
		AmountColumn: len(rows[0]) - 1,
		GeneratedAt:  p.now().UTC().Format(time.RFC1123),
	}
	if base, _ := tag.Base(); base.String() == "ar" {
		view.Dir = "rtl"
	}
	if tf.Period.Start != nil && tf.Period.End != nil {
		view.Period = fmt.Sprintf("%s to %s", tf.Period.Start.UTC().Format(time.DateOnly), tf.Period.End.UTC().Format(time.DateOnly))
	}
	for _, cells := range rows[1:] {
		view.Rows = append(view.Rows, payslipRow{Cells: cells, Total: cells[0] != "session" && cells[0] != "month"})
	}

	var buf bytes.Buffer
	if err := payslipTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("report: render payslip: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPayslip converts the payslip of tf to PDF.
func (p *Payslips) RenderPayslip(ctx context.Context, tf finance.TeacherFinance, tag language.Tag) ([]byte, error) {
	html, err := p.PayslipHTML(tf, tag)
	if err != nil {
		return nil, err
	}
	return p.client.RenderHTML(ctx, html)
}
