package finance

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlySummaryQuery scopes the multi-teacher summary.
type MonthlySummaryQuery struct {
	Month          int
	Year           int
	IncludeDetails bool
}

// Validate checks the month and year.
func (q MonthlySummaryQuery) Validate() error {
	return validateMonthYear(q.Month, q.Year)
}

// Range returns the inclusive bounds of the requested month.
func (q MonthlySummaryQuery) Range() DateRange {
	return MonthRange(q.Year, time.Month(q.Month))
}

// SummaryPeriod echoes the month being summarised.
type SummaryPeriod struct {
	Month     int       `json:"month"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// StudyGroupSummary is the per-study-group line under a teacher.
type StudyGroupSummary struct {
	StudyGroup        StudyGroup      `json:"studyGroup"`
	TotalAmount       decimal.Decimal `json:"totalMontant"`
	SessionCount      int             `json:"sessionCount"`
	PresenceStats     PresenceStats   `json:"presenceStats"`
	AveragePerSession decimal.Decimal `json:"averagePerSession"`
}

// MonthlyDetail is one audited session line of a teacher summary.
type MonthlyDetail struct {
	SessionID     int64           `json:"session"`
	Date          time.Time       `json:"date"`
	StudyGroup    StudyGroup      `json:"studyGroup"`
	Amount        decimal.Decimal `json:"montant"`
	PresenceStats PresenceStats   `json:"presenceStats"`
}

// TeacherMonthlySummary aggregates one teacher's month.
type TeacherMonthlySummary struct {
	Teacher           Teacher             `json:"teacher"`
	TotalAmount       decimal.Decimal     `json:"totalMontant"`
	SessionCount      int                 `json:"sessionCount"`
	PresenceStats     PresenceStats       `json:"presenceStats"`
	AveragePerSession decimal.Decimal     `json:"averagePerSession"`
	StudyGroups       []StudyGroupSummary `json:"studyGroups"`
	Details           []MonthlyDetail     `json:"details,omitempty"`
}

// GlobalStats spans every teacher of the month.
type GlobalStats struct {
	TotalStudents int           `json:"totalStudents"`
	PresenceStats PresenceStats `json:"presenceStats"`
}

// MonthlySummary is the nested month report across all teachers.
type MonthlySummary struct {
	Period            SummaryPeriod           `json:"period"`
	Teachers          []TeacherMonthlySummary `json:"teachers"`
	TotalAmount       decimal.Decimal         `json:"totalMontant"`
	TotalSessions     int                     `json:"totalSessions"`
	GlobalStats       GlobalStats             `json:"globalStats"`
	AveragePerSession decimal.Decimal         `json:"averagePerSession"`
}

type teacherAcc struct {
	summary TeacherMonthlySummary
	groups  map[int64]*StudyGroupSummary
}

// BuildMonthlySummary groups the month's sessions by teacher then study group.
// Accumulation is keyed by id; the output is ordered by teacher name and study group
// labels so that identical input always serialises identically.
func BuildMonthlySummary(q MonthlySummaryQuery, sessions []Session, calc Calculator) MonthlySummary {
	bounds := q.Range()
	ordered := make([]Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	out := MonthlySummary{
		Period:      SummaryPeriod{Month: q.Month, Year: q.Year, StartDate: bounds.Start, EndDate: bounds.End},
		Teachers:    []TeacherMonthlySummary{},
		TotalAmount: decimal.Zero,
	}

	teachers := make(map[int64]*teacherAcc)
	students := make(map[int64]struct{})

	for _, s := range ordered {
		if !bounds.Contains(s.Date) {
			continue
		}
		res := calc.Session(s.Attendance)
		group := s.StudyGroup
		teacher := group.Teacher
		if teacher.ID == 0 {
			teacher.ID = group.TeacherID
		}

		for _, rec := range s.Attendance {
			students[rec.StudentID] = struct{}{}
		}
		out.GlobalStats.PresenceStats.Add(res.PresenceStats)
		out.TotalAmount = out.TotalAmount.Add(res.Total)
		out.TotalSessions++

		acc, ok := teachers[teacher.ID]
		if !ok {
			acc = &teacherAcc{
				summary: TeacherMonthlySummary{Teacher: teacher, TotalAmount: decimal.Zero},
				groups:  make(map[int64]*StudyGroupSummary),
			}
			if q.IncludeDetails {
				acc.summary.Details = []MonthlyDetail{}
			}
			teachers[teacher.ID] = acc
		}
		acc.summary.TotalAmount = acc.summary.TotalAmount.Add(res.Total)
		acc.summary.SessionCount++
		acc.summary.PresenceStats.Add(res.PresenceStats)

		gs, ok := acc.groups[group.ID]
		if !ok {
			gs = &StudyGroupSummary{StudyGroup: group, TotalAmount: decimal.Zero}
			acc.groups[group.ID] = gs
		}
		gs.TotalAmount = gs.TotalAmount.Add(res.Total)
		gs.SessionCount++
		gs.PresenceStats.Add(res.PresenceStats)

		if q.IncludeDetails {
			acc.summary.Details = append(acc.summary.Details, MonthlyDetail{
				SessionID:     s.ID,
				Date:          s.Date,
				StudyGroup:    group,
				Amount:        res.Total,
				PresenceStats: res.PresenceStats,
			})
		}
	}

	for _, acc := range teachers {
		t := acc.summary
		t.AveragePerSession = average(t.TotalAmount, t.SessionCount)
		t.StudyGroups = make([]StudyGroupSummary, 0, len(acc.groups))
		for _, gs := range acc.groups {
			g := *gs
			g.AveragePerSession = average(g.TotalAmount, g.SessionCount)
			t.StudyGroups = append(t.StudyGroups, g)
		}
		sort.Slice(t.StudyGroups, func(i, j int) bool {
			return lessStudyGroup(t.StudyGroups[i].StudyGroup, t.StudyGroups[j].StudyGroup)
		})
		out.Teachers = append(out.Teachers, t)
	}
	sort.Slice(out.Teachers, func(i, j int) bool {
		return lessTeacher(out.Teachers[i].Teacher, out.Teachers[j].Teacher)
	})

	out.GlobalStats.TotalStudents = len(students)
	out.AveragePerSession = average(out.TotalAmount, out.TotalSessions)
	return out
}

func lessTeacher(a, b Teacher) bool {
	if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
		return c < 0
	}
	if c := strings.Compare(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

func lessStudyGroup(a, b StudyGroup) bool {
	for _, pair := range [][2]string{{a.Subject, b.Subject}, {a.Level, b.Level}, {a.ClassName, b.ClassName}} {
		if c := strings.Compare(pair[0], pair[1]); c != 0 {
			return c < 0
		}
	}
	return a.ID < b.ID
}
