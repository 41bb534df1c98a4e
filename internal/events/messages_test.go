package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorly/tutorly/internal/finance"
)

func TestFinanceRecordedMessage(t *testing.T) {
	record := finance.FinanceRecord{
		ID:           uuid.New(),
		SessionID:    12,
		TeacherID:    3,
		StudyGroupID: 7,
		Amount:       decimal.RequireFromString("22.75"),
		ComputedAt:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
	}
	msg := NewFinanceRecordedMessage(record)
	assert.NotEqual(t, uuid.Nil, msg.EventID)
	assert.Equal(t, time.UTC, msg.ComputedAt.Location())

	body, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"amount":22.75`)
	assert.Contains(t, string(body), `"computed_at":"2024-03-04T09:00:00Z"`)

	decoded, err := FinanceRecordedFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, record.ID, decoded.RecordID)
	assert.True(t, record.Amount.Equal(decoded.Amount))
}

func TestInvalidMessageJSON(t *testing.T) {
	_, err := FinanceRecordedFromJSON([]byte(`{"session_id":"x"}`))
	assert.Error(t, err)
}
