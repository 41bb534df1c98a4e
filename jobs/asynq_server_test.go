package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec
}

func TestHealthReportsQueueInfo(t *testing.T) {
	rec := serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Failed: 1, Processed: 9}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Processed: 9, Failed: 1}, body)
}

func TestHealthWithoutInspector(t *testing.T) {
	rec := serveHealth(t, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"processed":0,"failed":0}`, rec.Body.String())
}

func TestHealthInspectorFailure(t *testing.T) {
	rec := serveHealth(t, stubInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFinanceTasks(t *testing.T) {
	task, err := NewFinanceCalculateTask(42)
	require.NoError(t, err)
	assert.Equal(t, TaskFinanceCalculate, task.Type())
	assert.JSONEq(t, `{"session_id":42}`, string(task.Payload()))

	warm, err := NewFinanceSummaryWarmupTask(3)
	require.NoError(t, err)
	var payload FinanceSummaryWarmupPayload
	require.NoError(t, json.Unmarshal(warm.Payload(), &payload))
	assert.Equal(t, 3, payload.Months)
}

func TestNilClientRefusesEnqueue(t *testing.T) {
	var c *Client
	assert.Error(t, c.EnqueueFinanceCalculation(context.Background(), 1))
}
