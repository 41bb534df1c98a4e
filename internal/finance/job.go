package finance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/tutorly/tutorly/internal/jobs"
	"github.com/tutorly/tutorly/jobs"
)

// CalculateJob processes finance:calculate tasks.
type CalculateJob struct {
	service *Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewCalculateJob constructs a job handler.
func NewCalculateJob(service *Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CalculateJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalculateJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *CalculateJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	var payload jobs.FinanceCalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.SessionID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics.Track(jobs.TaskFinanceCalculate)
	defer func() { err = tracker.End(err) }()

	res, err := j.service.RecordSessionFinance(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			j.logger.Warn("finance calculate: session gone", slog.Int64("session_id", payload.SessionID))
			return asynq.SkipRetry
		}
		j.logger.Error("finance calculate", slog.Int64("session_id", payload.SessionID), slog.Any("error", err))
		return err
	}
	j.logger.Info("finance calculated",
		slog.Int64("session_id", payload.SessionID),
		slog.String("amount", res.Finance.Amount.String()))
	return nil
}

// SummaryWarmupJob pre-computes monthly summaries so the first dashboard hit of the
// day is served from cache.
type SummaryWarmupJob struct {
	service *Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(service *Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryWarmupJob{
		service: service,
		logger:  logger.With(slog.String("job", jobs.TaskFinanceSummaryWarmup)),
		metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes summary warmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	var payload jobs.FinanceSummaryWarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Months <= 0 {
		payload.Months = 2
	}

	tracker := j.metrics.Track(jobs.TaskFinanceSummaryWarmup)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	queries := warmupQueries(j.clock(), payload.Months)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			// Bound each month so one slow scan cannot hold the worker slot.
			monthCtx, cancel := context.WithTimeout(gctx, 20*time.Second)
			defer cancel()
			_, err := j.service.MonthlySummary(monthCtx, q)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		j.logger.Error("warm monthly summaries", slog.Any("error", err))
		return err
	}
	j.metrics.AddWarmedSummaries(len(queries))
	j.logger.Info("completed summary warmup", slog.Int("summaries", len(queries)), slog.Duration("duration", time.Since(start)))
	return nil
}

// warmupQueries lists the current month and the months before it, each with and
// without details.
func warmupQueries(now time.Time, months int) []MonthlySummaryQuery {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]MonthlySummaryQuery, 0, months*2)
	for i := 0; i < months; i++ {
		m := first.AddDate(0, -i, 0)
		for _, details := range []bool{false, true} {
			out = append(out, MonthlySummaryQuery{Month: int(m.Month()), Year: m.Year(), IncludeDetails: details})
		}
	}
	return out
}
