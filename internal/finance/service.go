package finance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// SessionReader resolves sessions with attendance, study group and teacher populated.
type SessionReader interface {
	// SessionsByStudyGroup returns the group's sessions taught by teacherID, ordered by
	// date then id. A nil range means no date filter.
	SessionsByStudyGroup(ctx context.Context, teacherID, studyGroupID int64, bounds *DateRange) ([]Session, error)
	// SessionsBetween returns every session inside the inclusive range, ordered by date then id.
	SessionsBetween(ctx context.Context, bounds DateRange) ([]Session, error)
	// SessionByID returns ErrNotFound when the session does not exist.
	SessionByID(ctx context.Context, id int64) (Session, error)
}

// FinanceWriter persists finance records.
type FinanceWriter interface {
	// UpsertFinanceRecord atomically creates or overwrites the record for key.
	UpsertFinanceRecord(ctx context.Context, key FinanceKey, amount decimal.Decimal, computedAt time.Time) (FinanceRecord, error)
}

// AttendanceWriter mutates session attendance and status.
type AttendanceWriter interface {
	ReplaceAttendance(ctx context.Context, sessionID int64, records []AttendanceRecord) error
	UpdateSessionStatus(ctx context.Context, sessionID int64, status SessionStatus) error
}

// Repository is the storage contract of the service.
type Repository interface {
	SessionReader
	FinanceWriter
	AttendanceWriter
}

// EventPublisher announces stored finance records to downstream consumers.
type EventPublisher interface {
	PublishFinanceRecorded(ctx context.Context, record FinanceRecord) error
}

// TaskEnqueuer schedules an asynchronous finance recomputation.
type TaskEnqueuer interface {
	EnqueueFinanceCalculation(ctx context.Context, sessionID int64) error
}

// Service exposes the finance operations.
type Service struct {
	repo      Repository
	calc      Calculator
	cache     *Cache
	logger    *slog.Logger
	publisher EventPublisher
	enqueuer  TaskEnqueuer
	flight    singleflight.Group
	now       func() time.Time
}

// NewService wires the repository, rate policy and optional cache.
func NewService(repo Repository, policy RatePolicy, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		calc:   NewCalculator(policy),
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// WithPublisher sets the event publisher used after each stored record.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// WithEnqueuer sets the queue used for asynchronous recomputation.
func (s *Service) WithEnqueuer(e TaskEnqueuer) *Service {
	s.enqueuer = e
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Policy returns the rate policy in effect.
func (s *Service) Policy() RatePolicy {
	return s.calc.Policy()
}

// TeacherStudyGroupFinance computes the itemized finance of a teacher's study group
// over the query period. No sessions yields a zero result, not an error.
func (s *Service) TeacherStudyGroupFinance(ctx context.Context, q TeacherFinanceQuery) (TeacherFinance, error) {
	if q.TeacherID <= 0 || q.StudyGroupID <= 0 {
		return TeacherFinance{}, invalidf("teacher and study group ids are required")
	}
	sessions, err := s.repo.SessionsByStudyGroup(ctx, q.TeacherID, q.StudyGroupID, q.Period.Bounds())
	if err != nil {
		return TeacherFinance{}, fmt.Errorf("finance: load sessions for study group %d: %w", q.StudyGroupID, err)
	}
	return BuildTeacherFinance(q, sessions, s.calc), nil
}

// MonthlySummary computes the multi-teacher summary of a calendar month.
func (s *Service) MonthlySummary(ctx context.Context, q MonthlySummaryQuery) (MonthlySummary, error) {
	if err := q.Validate(); err != nil {
		return MonthlySummary{}, err
	}
	loader := func(ctx context.Context) (any, error) {
		sessions, err := s.repo.SessionsBetween(ctx, q.Range())
		if err != nil {
			return MonthlySummary{}, fmt.Errorf("finance: load sessions for %04d-%02d: %w", q.Year, q.Month, err)
		}
		return BuildMonthlySummary(q, sessions, s.calc), nil
	}
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return MonthlySummary{}, err
		}
		return value.(MonthlySummary), nil
	}

	key, err := s.cache.BuildKey(ctx, keyMonthlySummary(q))
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("finance: build cache key: %w", err)
	}
	value, err, _ := s.flight.Do(key, func() (any, error) {
		var summary MonthlySummary
		if err := s.cache.FetchJSON(ctx, key, &summary, loader); err != nil {
			return MonthlySummary{}, err
		}
		return summary, nil
	})
	if err != nil {
		return MonthlySummary{}, err
	}
	return value.(MonthlySummary), nil
}

// RecordedDetails is the breakdown returned alongside a stored finance record.
type RecordedDetails struct {
	Date              time.Time       `json:"date"`
	PresenceStats     PresenceStats   `json:"presenceStats"`
	BaseRate          decimal.Decimal `json:"base_rate"`
	PresenceRate      decimal.Decimal `json:"presence_rate"`
	Total             decimal.Decimal `json:"total"`
	AveragePerStudent decimal.Decimal `json:"averagePerStudent"`
	Breakdown         []StudentAmount `json:"breakdown"`
}

// RecordedFinance is the result of RecordSessionFinance.
type RecordedFinance struct {
	Finance FinanceRecord   `json:"finance"`
	Details RecordedDetails `json:"details"`
}

// RecordSessionFinance computes one session's finance and upserts the single record
// keyed by session, teacher and study group. Repeated calls with unchanged attendance
// store the same amount; only computed_at moves.
func (s *Service) RecordSessionFinance(ctx context.Context, sessionID int64) (RecordedFinance, error) {
	if sessionID <= 0 {
		return RecordedFinance{}, invalidf("session id is required")
	}
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return RecordedFinance{}, fmt.Errorf("finance: load session %d: %w", sessionID, err)
	}
	res := s.calc.Session(session.Attendance)
	key := FinanceKey{
		SessionID:    session.ID,
		TeacherID:    session.StudyGroup.TeacherID,
		StudyGroupID: session.StudyGroupID,
	}
	record, err := s.repo.UpsertFinanceRecord(ctx, key, res.Total, s.now().UTC())
	if err != nil {
		return RecordedFinance{}, fmt.Errorf("finance: upsert record for session %d: %w", sessionID, err)
	}

	s.invalidate(ctx)
	if s.publisher != nil {
		if err := s.publisher.PublishFinanceRecorded(ctx, record); err != nil {
			s.logger.Warn("publish finance recorded", slog.Int64("session_id", sessionID), slog.Any("error", err))
		}
	}

	policy := s.calc.Policy()
	return RecordedFinance{
		Finance: record,
		Details: RecordedDetails{
			Date:              session.Date,
			PresenceStats:     res.PresenceStats,
			BaseRate:          policy.BaseRate,
			PresenceRate:      policy.PresenceFraction,
			Total:             res.Total,
			AveragePerStudent: average(res.Total, res.PresenceStats.Total),
			Breakdown:         s.calc.Breakdown(session.Attendance),
		},
	}, nil
}

// invalidate drops cached summaries. A failure only delays freshness until the TTL.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump finance cache", slog.Any("error", err))
	}
}

func (s *Service) enqueueRecalculation(ctx context.Context, sessionID int64) {
	if s.enqueuer == nil {
		return
	}
	if err := s.enqueuer.EnqueueFinanceCalculation(ctx, sessionID); err != nil {
		s.logger.Warn("enqueue finance calculation", slog.Int64("session_id", sessionID), slog.Any("error", err))
	}
}
