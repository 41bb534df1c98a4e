package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorly/tutorly/internal/finance"
)

// RoutingKeyFinanceRecorded is published after every stored finance record.
const RoutingKeyFinanceRecorded = "finance.recorded"

// FinanceRecordedMessage is the body of a finance.recorded event.
type FinanceRecordedMessage struct {
	EventID      uuid.UUID       `json:"event_id"`
	RecordID     uuid.UUID       `json:"record_id"`
	SessionID    int64           `json:"session_id"`
	TeacherID    int64           `json:"teacher_id"`
	StudyGroupID int64           `json:"study_group_id"`
	Amount       decimal.Decimal `json:"amount"`
	ComputedAt   time.Time       `json:"computed_at"`
}

// NewFinanceRecordedMessage builds the event for a stored record.
func NewFinanceRecordedMessage(record finance.FinanceRecord) FinanceRecordedMessage {
	return FinanceRecordedMessage{
		EventID:      uuid.New(),
		RecordID:     record.ID,
		SessionID:    record.SessionID,
		TeacherID:    record.TeacherID,
		StudyGroupID: record.StudyGroupID,
		Amount:       record.Amount,
		ComputedAt:   record.ComputedAt.UTC(),
	}
}

func (m FinanceRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FinanceRecordedFromJSON(data []byte) (FinanceRecordedMessage, error) {
	var m FinanceRecordedMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
