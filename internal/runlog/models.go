package runlog

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle of a journaled run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusAbandoned marks runs that never finished, e.g. after a crash.
	StatusAbandoned Status = "abandoned"
)

// Run is one journaled pipeline invocation.
type Run struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Years       []int          `json:"years"`
	Forced      bool           `json:"forced"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at,omitzero"`
	Error       string         `json:"error,omitempty"`
	FailureKind string         `json:"failure_kind,omitempty"`
	Stages      []StageOutcome `json:"stages,omitempty"`
}

// Duration is zero while the run is still open.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageOutcome is the journaled summary of one stage in a run.
type StageOutcome struct {
	Stage     string        `json:"stage"`
	Skipped   bool          `json:"skipped"`
	ColdStart bool          `json:"cold_start"`
	Forced    bool          `json:"forced"`
	Artifacts int           `json:"artifacts"`
	Added     int           `json:"added"`
	Removed   int           `json:"removed"`
	Snapshot  string        `json:"snapshot,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// TransitionRecord is a stored state change.
type TransitionRecord struct {
	RunID string    `json:"run_id"`
	Stage string    `json:"stage"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

func encodeYears(years []int) string {
	parts := make([]string, 0, len(years))
	for _, y := range years {
		parts = append(parts, strconv.Itoa(y))
	}
	return strings.Join(parts, ",")
}

func decodeYears(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var years []int
	for _, part := range strings.Split(raw, ",") {
		if y, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			years = append(years, y)
		}
	}
	return years
}
