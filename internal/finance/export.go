package finance

import (
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ExportRows formats a teacher finance into CSV-ready strings: a header, one row per
// session, one row per month, then the total, teacher share and service fee.
// Amounts are rounded to millimes the way RatePolicy.Split rounds, so the displayed
// total always equals teacher share plus service fee, then printed in the conventions
// of tag.
func ExportRows(tf TeacherFinance, tag language.Tag) [][]string {
	p := message.NewPrinter(tag)
	amount := func(d decimal.Decimal) string {
		return p.Sprint(number.Decimal(d.Round(3).InexactFloat64(), number.Scale(3)))
	}
	stats := func(ps PresenceStats) []string {
		return []string{
			strconv.Itoa(ps.Total),
			strconv.Itoa(ps.Present),
			strconv.Itoa(ps.AbsentVerified),
			strconv.Itoa(ps.Absent),
		}
	}

	out := make([][]string, 0, len(tf.Details)+len(tf.MonthlyBreakdown)+4)
	out = append(out, []string{"Type", "Period", "Session", "Sessions", "Students", "Present", "Absent verified", "Absent", "Amount"})
	for _, d := range tf.Details {
		row := []string{"session", d.Date.UTC().Format("2006-01-02"), strconv.FormatInt(d.SessionID, 10), "1"}
		row = append(row, stats(d.PresenceStats)...)
		out = append(out, append(row, amount(d.SessionTotal)))
	}
	for _, m := range tf.MonthlyBreakdown {
		row := []string{"month", m.Key, "", strconv.Itoa(m.SessionCount)}
		row = append(row, stats(m.PresenceStats)...)
		out = append(out, append(row, amount(m.TotalAmount)))
	}
	row := []string{"total", "", "", strconv.Itoa(tf.Summary.TotalSessions)}
	row = append(row, stats(tf.Summary.PresenceStats)...)
	out = append(out, append(row, amount(tf.TotalFinance)))
	out = append(out,
		[]string{"teacher_share", "", "", "", "", "", "", "", amount(tf.Summary.TeacherShare)},
		[]string{"service_fee", "", "", "", "", "", "", "", amount(tf.Summary.ServiceFee)},
	)
	return out
}
