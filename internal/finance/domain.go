package finance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorly/tutorly/internal/platform/httpx"
)

// AttendanceStatus enumerates per-student attendance outcomes for a session.
type AttendanceStatus string

const (
	// StatusPresent marks a student who attended.
	StatusPresent AttendanceStatus = "present"
	// StatusAbsent marks an unexcused absence.
	StatusAbsent AttendanceStatus = "absent"
	// StatusAbsentVerified marks an excused absence.
	StatusAbsentVerified AttendanceStatus = "absent_verified"
)

// Valid reports whether s is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusAbsentVerified:
		return true
	}
	return false
}

// ParseAttendanceStatus normalises and validates a status string.
func ParseAttendanceStatus(raw string) (AttendanceStatus, error) {
	s := AttendanceStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("finance: unknown attendance status %q: %w", raw, ErrInvalidArgument)
	}
	return s, nil
}

// SessionStatus tracks the lifecycle of a tutoring session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionInProgress, SessionCompleted:
		return true
	}
	return false
}

func (s SessionStatus) rank() int {
	switch s {
	case SessionInProgress:
		return 1
	case SessionCompleted:
		return 2
	default:
		return 0
	}
}

// Finalized reports whether attendance for the session is frozen.
func (s SessionStatus) Finalized() bool {
	return s == SessionCompleted
}

// Teacher is referenced by study groups; never owned by them.
type Teacher struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Subject   string `json:"subject,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Name returns the display name.
func (t Teacher) Name() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// StudyGroup is a recurring tutoring class taught by one teacher.
type StudyGroup struct {
	ID         int64   `json:"id"`
	Subject    string  `json:"subject"`
	Level      string  `json:"level"`
	ClassName  string  `json:"className"`
	TeacherID  int64   `json:"teacherId"`
	Teacher    Teacher `json:"-"`
	StudentIDs []int64 `json:"-"`
}

// Enrolled reports whether the student belongs to the group.
func (g StudyGroup) Enrolled(studentID int64) bool {
	for _, id := range g.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// AttendanceRecord is one student's status within a session.
type AttendanceRecord struct {
	StudentID   int64            `json:"studentId"`
	StudentName string           `json:"studentName,omitempty"`
	Status      AttendanceStatus `json:"status"`
}

// Session is one scheduled occurrence of a study group.
type Session struct {
	ID           int64
	Date         time.Time
	StudyGroupID int64
	Status       SessionStatus
	Attendance   []AttendanceRecord
	StudyGroup   StudyGroup
}

// FinanceKey identifies the single finance record per session, teacher and study group.
type FinanceKey struct {
	SessionID    int64
	TeacherID    int64
	StudyGroupID int64
}

// FinanceRecord is the persisted payroll amount for one session.
type FinanceRecord struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    int64           `json:"session"`
	TeacherID    int64           `json:"teacher"`
	StudyGroupID int64           `json:"studyGroup"`
	Amount       decimal.Decimal `json:"montant"`
	ComputedAt   time.Time       `json:"computedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Key returns the upsert key of the record.
func (r FinanceRecord) Key() FinanceKey {
	return FinanceKey{SessionID: r.SessionID, TeacherID: r.TeacherID, StudyGroupID: r.StudyGroupID}
}

// PresenceStats counts attendance records by status.
type PresenceStats struct {
	Total          int `json:"total"`
	Present        int `json:"present"`
	AbsentVerified int `json:"absent_verified"`
	Absent         int `json:"absent"`
}

// Count tallies a single record.
func (p *PresenceStats) Count(status AttendanceStatus) {
	p.Total++
	switch status {
	case StatusPresent:
		p.Present++
	case StatusAbsentVerified:
		p.AbsentVerified++
	case StatusAbsent:
		p.Absent++
	}
}

// Add accumulates other into p.
func (p *PresenceStats) Add(other PresenceStats) {
	p.Total += other.Total
	p.Present += other.Present
	p.AbsentVerified += other.AbsentVerified
	p.Absent += other.Absent
}

// StudentAmount is the per-student line of a session breakdown.
type StudentAmount struct {
	StudentID   int64            `json:"studentId"`
	StudentName string           `json:"studentName,omitempty"`
	Status      AttendanceStatus `json:"status"`
	Amount      decimal.Decimal  `json:"montant"`
}

// SessionFinanceDetail is the derived finance line for one session.
type SessionFinanceDetail struct {
	SessionID     int64           `json:"session"`
	Date          time.Time       `json:"date"`
	Attendance    []StudentAmount `json:"presences"`
	PresenceStats PresenceStats   `json:"presenceStats"`
	SessionTotal  decimal.Decimal `json:"totalSeance"`
}

// MonthlyBreakdown aggregates session totals for one calendar month.
type MonthlyBreakdown struct {
	Key           string          `json:"key"`
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	TotalAmount   decimal.Decimal `json:"totalMontant"`
	SessionCount  int             `json:"sessionCount"`
	PresenceStats PresenceStats   `json:"presenceStats"`
}

var (
	// ErrInvalidArgument reports malformed or missing input.
	ErrInvalidArgument = fmt.Errorf("finance: invalid argument: %w", httpx.ErrValidation)
	// ErrNotFound reports a missing session.
	ErrNotFound = fmt.Errorf("finance: not found: %w", httpx.ErrNotFound)
	// ErrSessionFinalized reports an attendance change on a completed session.
	ErrSessionFinalized = fmt.Errorf("finance: session finalized: %w", httpx.ErrConflict)
	// ErrInvalidTransition reports a backwards session status change.
	ErrInvalidTransition = fmt.Errorf("finance: invalid status transition: %w", httpx.ErrConflict)
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsInvalidArgument reports whether err stems from bad input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
