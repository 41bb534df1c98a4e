package finance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttendanceReplacesList(t *testing.T) {
	repo := newMemoryRepo(marchSession())
	enqueuer := &stubEnqueuer{}
	svc := NewService(repo, DefaultRatePolicy(), nil, discardLogger()).WithEnqueuer(enqueuer)

	err := svc.RecordAttendance(context.Background(), 42, []AttendanceRecord{
		{StudentID: 1, Status: StatusPresent},
		{StudentID: 4, Status: StatusAbsentVerified},
	})
	require.NoError(t, err)

	stored, err := repo.SessionByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, stored.Attendance, 2)
	assert.Equal(t, []int64{42}, enqueuer.sessions)
}

func TestRecordAttendanceValidation(t *testing.T) {
	repo := newMemoryRepo(marchSession())
	svc := NewService(repo, DefaultRatePolicy(), nil, discardLogger())
	ctx := context.Background()

	cases := map[string][]AttendanceRecord{
		"not enrolled":   {{StudentID: 77, Status: StatusPresent}},
		"duplicate":      {{StudentID: 1, Status: StatusPresent}, {StudentID: 1, Status: StatusAbsent}},
		"unknown status": {{StudentID: 2, Status: "late"}},
	}
	for name, records := range cases {
		t.Run(name, func(t *testing.T) {
			err := svc.RecordAttendance(ctx, 42, records)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	stored, err := repo.SessionByID(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, stored.Attendance, 5, "rejected writes leave attendance untouched")

	assert.ErrorIs(t, svc.RecordAttendance(ctx, 0, nil), ErrInvalidArgument)
	assert.ErrorIs(t, svc.RecordAttendance(ctx, 404, nil), ErrNotFound)
}

func TestRecordAttendanceRejectsFinalizedSession(t *testing.T) {
	session := marchSession()
	session.Status = SessionCompleted
	svc := NewService(newMemoryRepo(session), DefaultRatePolicy(), nil, discardLogger())

	err := svc.RecordAttendance(context.Background(), 42, []AttendanceRecord{{StudentID: 1, Status: StatusAbsent}})
	assert.ErrorIs(t, err, ErrSessionFinalized)
}

func TestUpdateSessionStatusTransitions(t *testing.T) {
	session := marchSession()
	session.Status = SessionPending
	repo := newMemoryRepo(session)
	enqueuer := &stubEnqueuer{}
	svc := NewService(repo, DefaultRatePolicy(), nil, discardLogger()).WithEnqueuer(enqueuer)
	ctx := context.Background()

	require.NoError(t, svc.UpdateSessionStatus(ctx, 42, SessionInProgress))
	assert.Empty(t, enqueuer.sessions)

	require.NoError(t, svc.UpdateSessionStatus(ctx, 42, SessionCompleted))
	assert.Equal(t, []int64{42}, enqueuer.sessions)

	require.NoError(t, svc.UpdateSessionStatus(ctx, 42, SessionCompleted), "repeating the current status is a no-op")
	assert.Len(t, enqueuer.sessions, 1)

	assert.ErrorIs(t, svc.UpdateSessionStatus(ctx, 42, SessionPending), ErrInvalidTransition)
	assert.ErrorIs(t, svc.UpdateSessionStatus(ctx, 42, "cancelled"), ErrInvalidArgument)
	assert.ErrorIs(t, svc.UpdateSessionStatus(ctx, 404, SessionCompleted), ErrNotFound)
}
