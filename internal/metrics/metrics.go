package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"prodsum/internal/pipeline"
	"prodsum/internal/services"
)

const namespace = "prodsum"

// Stage results recorded in stage_runs_total.
const (
	ResultSkipped  = "skipped"
	ResultProduced = "produced"
	ResultFailed   = "failed"
)

// Recorder collects metrics for one process on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	artifacts     *prometheus.GaugeVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

var _ pipeline.Observer = (*Recorder)(nil)

// New registers the pipeline collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage state machine transitions by target state.",
		}, []string{"stage", "to"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by result.",
		}, []string{"stage", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of stage executions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"stage"}),
		artifacts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_artifacts",
			Help:      "Metadata entries held by each stage directory.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by status and failure kind.",
		}, []string{"status", "failure_kind"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the most recent run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful run.",
		}),
	}
	reg.MustRegister(r.transitions, r.stageRuns, r.stageDuration, r.artifacts, r.runs, r.runDuration, r.lastSuccess)
	return r
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// StageTransition counts the transition and any failure it carries.
func (r *Recorder) StageTransition(_ context.Context, t pipeline.Transition) {
	r.transitions.WithLabelValues(t.Stage, t.To.String()).Inc()
	if t.To == pipeline.StateFailed {
		r.stageRuns.WithLabelValues(t.Stage, ResultFailed).Inc()
	}
}

// ObserveOutcome records a stage that finished without error.
func (r *Recorder) ObserveOutcome(out pipeline.Outcome) {
	result := ResultProduced
	if out.Skipped {
		result = ResultSkipped
	}
	r.stageRuns.WithLabelValues(out.Stage, result).Inc()
	r.stageDuration.WithLabelValues(out.Stage).Observe(out.Duration.Seconds())
	r.artifacts.WithLabelValues(out.Stage).Set(float64(len(out.Keys)))
}

// ObserveRun records the end of a run.
func (r *Recorder) ObserveRun(started, finished time.Time, runErr error) {
	r.runDuration.Set(finished.Sub(started).Seconds())
	if runErr != nil {
		r.runs.WithLabelValues("failed", services.FailureKind(runErr)).Inc()
		return
	}
	r.runs.WithLabelValues("succeeded", "").Inc()
	r.lastSuccess.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically so node-exporter never reads a partial scrape.
func (r *Recorder) WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
