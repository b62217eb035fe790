package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"prodsum/internal/pipeline"
	"prodsum/internal/runlog"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Status", statusError, "failed at 2024-01-01", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Status:", "[ERROR] failed at 2024-01-01")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStateUsesLabelsAndStateColors(t *testing.T) {
	if got := renderState("backing_up", false); got != "Backing Up" {
		t.Fatalf("renderState = %q", got)
	}
	if got := renderState("", false); got != "-" {
		t.Fatalf("empty state = %q", got)
	}
	got := renderState(string(pipeline.StateFailed), true)
	if !strings.HasPrefix(got, ansiRed) || !strings.Contains(got, "Failed") || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("failed state should render red, got %q", got)
	}
	if got := renderState(string(pipeline.StateUnchanged), true); !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("unchanged state should render green, got %q", got)
	}
}

func TestRunStatusKind(t *testing.T) {
	cases := map[runlog.Status]statusKind{
		runlog.StatusSucceeded: statusOK,
		runlog.StatusFailed:    statusError,
		runlog.StatusRunning:   statusWarn,
		runlog.StatusAbandoned: statusWarn,
	}
	for status, want := range cases {
		if got := runStatusKind(status); got != want {
			t.Fatalf("%s: kind = %v, want %v", status, got, want)
		}
	}
}

func TestOutcomeResult(t *testing.T) {
	if got := outcomeResult(pipeline.Outcome{Skipped: true}, false); got != "unchanged" {
		t.Fatalf("skipped = %q", got)
	}
	if got := outcomeResult(pipeline.Outcome{ColdStart: true}, false); got != "created" {
		t.Fatalf("cold start = %q", got)
	}
	got := outcomeResult(pipeline.Outcome{Removed: []string{"abc"}}, true)
	if !strings.HasPrefix(got, ansiYellow) || !strings.Contains(got, "updated") {
		t.Fatalf("an update that dropped keys should render yellow, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
