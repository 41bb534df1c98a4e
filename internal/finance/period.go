package finance

import (
	"time"
)

// DateRange is an inclusive [Start, End] interval of instants.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// MonthRange returns the UTC bounds of a calendar month, the last nanosecond of the
// final day included.
func MonthRange(year int, month time.Month) DateRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return DateRange{Start: start, End: end}
}

// MonthKey formats the YYYY-MM bucket of an instant in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodKind selects how sessions are filtered by date.
type PeriodKind int

const (
	// PeriodAll applies no date filter.
	PeriodAll PeriodKind = iota
	// PeriodRange filters by an explicit inclusive range.
	PeriodRange
	// PeriodMonth filters by a calendar month.
	PeriodMonth
)

// Period is the date filter of a range aggregation.
type Period struct {
	Kind  PeriodKind
	Range DateRange
	Month time.Month
	Year  int
}

// AllTime returns the unfiltered period.
func AllTime() Period {
	return Period{Kind: PeriodAll}
}

// Between builds an explicit range period.
func Between(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, invalidf("start and end dates are both required")
	}
	if end.Before(start) {
		return Period{}, invalidf("end date %s precedes start date %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Period{Kind: PeriodRange, Range: DateRange{Start: start.UTC(), End: end.UTC()}}, nil
}

// InMonth builds a calendar month period.
func InMonth(month, year int) (Period, error) {
	if err := validateMonthYear(month, year); err != nil {
		return Period{}, err
	}
	m := time.Month(month)
	return Period{Kind: PeriodMonth, Month: m, Year: year, Range: MonthRange(year, m)}, nil
}

// Bounds returns the date filter, or nil when the period is unfiltered.
func (p Period) Bounds() *DateRange {
	if p.Kind == PeriodAll {
		return nil
	}
	r := p.Range
	return &r
}

func validateMonthYear(month, year int) error {
	if month < 1 || month > 12 {
		return invalidf("month must be between 1 and 12, got %d", month)
	}
	if year < 1900 || year > 9999 {
		return invalidf("year must be a 4-digit calendar year, got %d", year)
	}
	return nil
}
