package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tutorly/tutorly/internal/platform/db"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const sessionSelect = `
SELECT s.id, s.session_date, s.status::text, s.study_group_id,
       g.subject, g.level, g.class_name, g.teacher_id,
       t.first_name, t.last_name, t.subject, t.phone
FROM sessions s
JOIN study_groups g ON g.id = s.study_group_id
JOIN teachers t ON t.id = g.teacher_id`

// PGRepository stores sessions, attendance and finance records in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository on the pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// SessionsByStudyGroup implements SessionReader.
func (r *PGRepository) SessionsByStudyGroup(ctx context.Context, teacherID, studyGroupID int64, bounds *DateRange) ([]Session, error) {
	query := sessionSelect + ` WHERE s.study_group_id = $1 AND g.teacher_id = $2`
	args := []any{studyGroupID, teacherID}
	if bounds != nil {
		query += ` AND s.session_date BETWEEN $3 AND $4`
		args = append(args, bounds.Start, bounds.End)
	}
	query += ` ORDER BY s.session_date, s.id`
	return r.querySessions(ctx, query, args...)
}

// SessionsBetween implements SessionReader.
func (r *PGRepository) SessionsBetween(ctx context.Context, bounds DateRange) ([]Session, error) {
	query := sessionSelect + ` WHERE s.session_date BETWEEN $1 AND $2 ORDER BY s.session_date, s.id`
	return r.querySessions(ctx, query, bounds.Start, bounds.End)
}

// SessionByID implements SessionReader. The study group's enrolment is populated.
func (r *PGRepository) SessionByID(ctx context.Context, id int64) (Session, error) {
	sessions, err := r.querySessions(ctx, sessionSelect+` WHERE s.id = $1`, id)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("%w: session %d", ErrNotFound, id)
	}
	session := sessions[0]

	rows, err := r.pool.Query(ctx, `SELECT student_id FROM study_group_students WHERE study_group_id = $1 ORDER BY student_id`, session.StudyGroupID)
	if err != nil {
		return Session{}, err
	}
	session.StudyGroup.StudentIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// UpsertFinanceRecord implements FinanceWriter with a single INSERT .. ON CONFLICT
// statement, so concurrent calls for one key never create two rows.
func (r *PGRepository) UpsertFinanceRecord(ctx context.Context, key FinanceKey, amount decimal.Decimal, computedAt time.Time) (FinanceRecord, error) {
	const query = `
INSERT INTO finance_records (id, session_id, teacher_id, study_group_id, amount, computed_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6)
ON CONFLICT (session_id, teacher_id, study_group_id)
DO UPDATE SET amount = EXCLUDED.amount, computed_at = EXCLUDED.computed_at, updated_at = now()
RETURNING id, session_id, teacher_id, study_group_id, amount::text, computed_at, created_at, updated_at`

	var (
		rec    FinanceRecord
		amtRaw string
	)
	err := r.pool.QueryRow(ctx, query, uuid.New(), key.SessionID, key.TeacherID, key.StudyGroupID, amount.String(), computedAt).
		Scan(&rec.ID, &rec.SessionID, &rec.TeacherID, &rec.StudyGroupID, &amtRaw, &rec.ComputedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return FinanceRecord{}, fmt.Errorf("%w: session %d", ErrNotFound, key.SessionID)
		}
		return FinanceRecord{}, err
	}
	rec.Amount, err = decimal.NewFromString(amtRaw)
	if err != nil {
		return FinanceRecord{}, fmt.Errorf("finance: parse stored amount %q: %w", amtRaw, err)
	}
	return rec, nil
}

// ReplaceAttendance implements AttendanceWriter. The session row is locked so a
// concurrent completion cannot slip in between the check and the write.
func (r *PGRepository) ReplaceAttendance(ctx context.Context, sessionID int64, records []AttendanceRecord) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status::text FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
		}
		if err != nil {
			return err
		}
		if SessionStatus(status).Finalized() {
			return fmt.Errorf("%w: session %d is %s", ErrSessionFinalized, sessionID, status)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM attendance_records WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, rec := range records {
			batch.Queue(`INSERT INTO attendance_records (session_id, position, student_id, status) VALUES ($1, $2, $3, $4::attendance_status)`,
				sessionID, i, rec.StudentID, string(rec.Status))
		}
		batch.Queue(`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.Code == pgUniqueViolation || pgErr.Code == pgForeignKeyViolation) {
				return invalidf("attendance rejected: %s", pgErr.Detail)
			}
			return err
		}
		return nil
	})
}

// UpdateSessionStatus implements AttendanceWriter.
func (r *PGRepository) UpdateSessionStatus(ctx context.Context, sessionID int64, status SessionStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET status = $2::session_status, updated_at = now() WHERE id = $1`, sessionID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	return nil
}

func (r *PGRepository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		var (
			s      Session
			status string
		)
		err := row.Scan(&s.ID, &s.Date, &status, &s.StudyGroupID,
			&s.StudyGroup.Subject, &s.StudyGroup.Level, &s.StudyGroup.ClassName, &s.StudyGroup.TeacherID,
			&s.StudyGroup.Teacher.FirstName, &s.StudyGroup.Teacher.LastName, &s.StudyGroup.Teacher.Subject, &s.StudyGroup.Teacher.Phone)
		s.Status = SessionStatus(status)
		s.StudyGroup.ID = s.StudyGroupID
		s.StudyGroup.Teacher.ID = s.StudyGroup.TeacherID
		s.Date = s.Date.UTC()
		return s, err
	})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}
	if err := r.attachAttendance(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PGRepository) attachAttendance(ctx context.Context, sessions []Session) error {
	ids := make([]int64, len(sessions))
	index := make(map[int64]int, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
		index[s.ID] = i
		sessions[i].Attendance = []AttendanceRecord{}
	}
	rows, err := r.pool.Query(ctx, `
SELECT a.session_id, a.student_id, st.first_name || ' ' || st.last_name, a.status::text
FROM attendance_records a
JOIN students st ON st.id = a.student_id
WHERE a.session_id = ANY($1)
ORDER BY a.session_id, a.position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sessionID int64
			rec       AttendanceRecord
			status    string
		)
		if err := rows.Scan(&sessionID, &rec.StudentID, &rec.StudentName, &status); err != nil {
			return err
		}
		rec.Status = AttendanceStatus(status)
		i := index[sessionID]
		sessions[i].Attendance = append(sessions[i].Attendance, rec)
	}
	return rows.Err()
}
