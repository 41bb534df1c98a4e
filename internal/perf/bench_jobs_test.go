package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/tutorly/tutorly/internal/jobs"
	"github.com/tutorly/tutorly/jobs"
)

func TestFinanceJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Session recomputations are short and almost always succeed.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track(jobs.TaskFinanceCalculate)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending calculate tracker: %v", err)
		}
	}

	// A nightly warmup scans several months.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track(jobs.TaskFinanceSummaryWarmup)
		time.Sleep(20 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending warmup tracker: %v", err)
		}
	}
	metrics.AddWarmedSummaries(4)

	// Deleted sessions or a lost connection fail a few calculations.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track(jobs.TaskFinanceCalculate)
		if err := tracker.End(errors.New("connection reset")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "tutorly_jobs_total", map[string]string{"job": jobs.TaskFinanceCalculate, "status": "success"})
	failure := metricValue(t, families, "tutorly_jobs_total", map[string]string{"job": jobs.TaskFinanceCalculate, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("calculate success ratio too low: %f", ratio)
	}
	if failed := metricValue(t, families, "tutorly_jobs_failures_total", map[string]string{"job": jobs.TaskFinanceCalculate}); failed != 3 {
		t.Fatalf("expected 3 recorded failures, got %f", failed)
	}
	if warmed := metricValue(t, families, "tutorly_finance_summaries_warmed_total", nil); warmed != 4 {
		t.Fatalf("expected 4 warmed summaries, got %f", warmed)
	}

	warmupDuration := histogramMean(t, families, "tutorly_job_duration_seconds", map[string]string{"job": jobs.TaskFinanceSummaryWarmup})
	if warmupDuration > 2.0 {
		t.Fatalf("warmup duration above budget: %f", warmupDuration)
	}
	calcDuration := histogramMean(t, families, "tutorly_job_duration_seconds", map[string]string{"job": jobs.TaskFinanceCalculate})
	if calcDuration > 0.5 {
		t.Fatalf("calculate duration above budget: %f", calcDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
