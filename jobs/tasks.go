package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFinanceCalculate recomputes and stores the finance record of one session.
	TaskFinanceCalculate = "finance:calculate"
	// TaskFinanceSummaryWarmup pre-populates the monthly summary cache.
	TaskFinanceSummaryWarmup = "finance:summary_warmup"
)

// FinanceCalculatePayload identifies the session to recompute.
type FinanceCalculatePayload struct {
	SessionID int64 `json:"session_id"`
}

// NewFinanceCalculateTask constructs an Asynq task for a session recomputation.
func NewFinanceCalculateTask(sessionID int64) (*asynq.Task, error) {
	body, err := json.Marshal(FinanceCalculatePayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFinanceCalculate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// FinanceSummaryWarmupPayload carries scheduling metadata.
type FinanceSummaryWarmupPayload struct {
	// Months is how many calendar months, counting back from the current one, are warmed.
	Months       int       `json:"months"`
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// NewFinanceSummaryWarmupTask constructs an Asynq task for the summary warmup.
func NewFinanceSummaryWarmupTask(months int) (*asynq.Task, error) {
	body, err := json.Marshal(FinanceSummaryWarmupPayload{Months: months})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFinanceSummaryWarmup, body, asynq.Queue(QueueDefault)), nil
}
