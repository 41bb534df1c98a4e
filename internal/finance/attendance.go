package finance

import (
	"context"
	"fmt"
)

// RecordAttendance replaces a session's attendance list. Every student must be
// enrolled in the session's study group and appear once; completed sessions are frozen.
// A finance recomputation is queued afterwards.
func (s *Service) RecordAttendance(ctx context.Context, sessionID int64, records []AttendanceRecord) error {
	if sessionID <= 0 {
		return invalidf("session id is required")
	}
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("finance: load session %d: %w", sessionID, err)
	}
	if session.Status.Finalized() {
		return fmt.Errorf("%w: session %d is %s", ErrSessionFinalized, sessionID, session.Status)
	}
	if err := validateAttendance(session.StudyGroup, records); err != nil {
		return err
	}
	if err := s.repo.ReplaceAttendance(ctx, sessionID, records); err != nil {
		return fmt.Errorf("finance: replace attendance for session %d: %w", sessionID, err)
	}
	s.invalidate(ctx)
	s.enqueueRecalculation(ctx, sessionID)
	return nil
}

// UpdateSessionStatus moves a session forward through pending, in_progress and
// completed. Completing a session queues its finance recomputation.
func (s *Service) UpdateSessionStatus(ctx context.Context, sessionID int64, status SessionStatus) error {
	if sessionID <= 0 {
		return invalidf("session id is required")
	}
	if !status.Valid() {
		return invalidf("unknown session status %q", status)
	}
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("finance: load session %d: %w", sessionID, err)
	}
	if status.rank() < session.Status.rank() {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, session.Status, status)
	}
	if status == session.Status {
		return nil
	}
	if err := s.repo.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		return fmt.Errorf("finance: update status of session %d: %w", sessionID, err)
	}
	if status == SessionCompleted {
		s.enqueueRecalculation(ctx, sessionID)
	}
	return nil
}

func validateAttendance(group StudyGroup, records []AttendanceRecord) error {
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if !rec.Status.Valid() {
			return invalidf("student %d: unknown attendance status %q", rec.StudentID, rec.Status)
		}
		if _, dup := seen[rec.StudentID]; dup {
			return invalidf("student %d listed more than once", rec.StudentID)
		}
		seen[rec.StudentID] = struct{}{}
		if !group.Enrolled(rec.StudentID) {
			return invalidf("student %d is not enrolled in study group %d", rec.StudentID, group.ID)
		}
	}
	return nil
}
