package finance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TeacherFinanceQuery scopes a range aggregation.
type TeacherFinanceQuery struct {
	TeacherID    int64
	StudyGroupID int64
	Period       Period
}

// PeriodEcho is the date window reported back to the caller.
type PeriodEcho struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// RangeSummary carries totals, averages and the rates that produced them.
type RangeSummary struct {
	TotalSessions     int             `json:"totalSessions"`
	AveragePerSession decimal.Decimal `json:"averagePerSession"`
	BaseRate          decimal.Decimal `json:"baseRate"`
	PresenceRate      decimal.Decimal `json:"presenceRate"`
	PresenceStats     PresenceStats   `json:"presenceStats"`
	TeacherShare      decimal.Decimal `json:"teacherShare"`
	ServiceFee        decimal.Decimal `json:"serviceFee"`
}

// TeacherFinance is the itemized payroll of one teacher for one study group.
type TeacherFinance struct {
	TeacherID        int64                  `json:"teacher"`
	StudyGroupID     int64                  `json:"studyGroup"`
	Period           PeriodEcho             `json:"period"`
	Details          []SessionFinanceDetail `json:"details"`
	MonthlyBreakdown []MonthlyBreakdown     `json:"monthlyBreakdown"`
	TotalFinance     decimal.Decimal        `json:"totalFinance"`
	Summary          RangeSummary           `json:"summary"`
}

// BuildTeacherFinance aggregates sessions into per-session, per-month and grand totals.
// Sessions are processed in ascending date order; equal dates keep their input order.
func BuildTeacherFinance(q TeacherFinanceQuery, sessions []Session, calc Calculator) TeacherFinance {
	ordered := make([]Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	policy := calc.Policy()
	out := TeacherFinance{
		TeacherID:        q.TeacherID,
		StudyGroupID:     q.StudyGroupID,
		Details:          make([]SessionFinanceDetail, 0, len(ordered)),
		MonthlyBreakdown: []MonthlyBreakdown{},
		TotalFinance:     decimal.Zero,
	}

	months := make(map[string]*MonthlyBreakdown)
	keys := make([]string, 0)
	var stats PresenceStats

	for _, s := range ordered {
		res := calc.Session(s.Attendance)
		out.TotalFinance = out.TotalFinance.Add(res.Total)
		stats.Add(res.PresenceStats)

		key := MonthKey(s.Date)
		m, ok := months[key]
		if !ok {
			utc := s.Date.UTC()
			m = &MonthlyBreakdown{Key: key, Month: int(utc.Month()), Year: utc.Year(), TotalAmount: decimal.Zero}
			months[key] = m
			keys = append(keys, key)
		}
		m.TotalAmount = m.TotalAmount.Add(res.Total)
		m.SessionCount++
		m.PresenceStats.Add(res.PresenceStats)

		out.Details = append(out.Details, SessionFinanceDetail{
			SessionID:     s.ID,
			Date:          s.Date,
			Attendance:    calc.Breakdown(s.Attendance),
			PresenceStats: res.PresenceStats,
			SessionTotal:  res.Total,
		})
	}

	sort.Strings(keys)
	for _, key := range keys {
		out.MonthlyBreakdown = append(out.MonthlyBreakdown, *months[key])
	}

	out.Period = echoPeriod(q.Period, ordered)
	teacherShare, fee := policy.Split(out.TotalFinance)
	out.Summary = RangeSummary{
		TotalSessions:     len(ordered),
		AveragePerSession: average(out.TotalFinance, len(ordered)),
		BaseRate:          policy.BaseRate,
		PresenceRate:      policy.PresenceFraction,
		PresenceStats:     stats,
		TeacherShare:      teacherShare,
		ServiceFee:        fee,
	}
	return out
}

func echoPeriod(p Period, ordered []Session) PeriodEcho {
	if bounds := p.Bounds(); bounds != nil {
		start, end := bounds.Start, bounds.End
		return PeriodEcho{Start: &start, End: &end}
	}
	if len(ordered) == 0 {
		return PeriodEcho{}
	}
	start := ordered[0].Date
	end := ordered[len(ordered)-1].Date
	return PeriodEcho{Start: &start, End: &end}
}
