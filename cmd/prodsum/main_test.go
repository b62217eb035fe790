package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"prodsum/internal/config"
	"prodsum/internal/pipeline"
	"prodsum/internal/pipelinerun"
	"prodsum/internal/runlog"
	"prodsum/internal/services"
)

func TestStatusOnEmptyTree(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Configuration ==")
	requireContains(t, out, "2020-2021, 2023")
	requireContains(t, out, "no runs recorded")
	requireContains(t, out, "access-db")
	requireContains(t, out, "parquet")
}

func TestStatusJSONIncludesLastRun(t *testing.T) {
	env := setupCLITestEnv(t)
	seedRun(t, env, "run-ok", nil)

	out, _, err := runCLI(t, []string{"status", "--offline", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var report struct {
		ConfigExists bool `json:"config_exists"`
		Directories  []struct {
			Name string `json:"name"`
		} `json:"directories"`
		LastRun *struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"last_run"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !report.ConfigExists {
		t.Fatal("expected config_exists=true")
	}
	if len(report.Directories) != 4 {
		t.Fatalf("expected 4 directories, got %d", len(report.Directories))
	}
	if report.LastRun == nil || report.LastRun.ID != "run-ok" || report.LastRun.Status != "succeeded" {
		t.Fatalf("unexpected last run: %+v", report.LastRun)
	}
}

func TestHistoryListsRunsNewestFirst(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	seedRun(t, env, "aaaaaaaa-first", nil)
	seedRun(t, env, "bbbbbbbb-second", errors.New("download failed"))

	out, _, err = runCLI(t, []string{"history", "--json", "--limit", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var runs []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history json: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].ID != "bbbbbbbb-second" || runs[0].Status != "failed" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "aaaaaaaa")
	requireContains(t, out, "bbbbbbbb")
	requireContains(t, out, "failed")
}

func TestSnapshotsRejectsUnknownDirectory(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"snapshots", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown directory")
	}
	out, _, err := runCLI(t, []string{"snapshots", "export"}, env.configPath)
	if err != nil {
		t.Fatalf("snapshots export: %v", err)
	}
	requireContains(t, out, "No snapshots")
}

func TestRunRejectsYearsBeforeFirstReport(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run", "--years", "1998"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "pipeline.years")
}

var seedClock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seedRun(t *testing.T, env *cliTestEnv, id string, runErr error) {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := runlog.Open(cfg.JournalPath(), nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer store.Close()

	seedClock = seedClock.Add(time.Minute)
	ctx := context.Background()
	if err := store.BeginRun(ctx, id, cfg.Pipeline.Years, false, seedClock); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := store.FinishRun(ctx, id, seedClock.Add(time.Second), runErr); err != nil {
		t.Fatalf("finish run: %v", err)
	}
}

func TestTestNotifyRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err == nil {
		t.Fatal("expected error without a topic")
	}
	requireContains(t, err.Error(), "notifications.ntfy_topic")
}

func TestHistoryShowLabelsStates(t *testing.T) {
	env := setupCLITestEnv(t)
	seedRun(t, env, "cccccccc-transitions", nil)

	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := runlog.Open(cfg.JournalPath(), nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "cccccccc-transitions")
	store.StageTransition(ctx, pipeline.Transition{Stage: "convert", From: pipeline.StateChecking, To: pipeline.StateBackingUp, At: seedClock})
	store.StageTransition(ctx, pipeline.Transition{Stage: "convert", From: pipeline.StateBackingUp, To: pipeline.StateProducing, At: seedClock})
	store.Close()

	out, _, err := runCLI(t, []string{"history", "show", "cccc"}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "cccccccc-transitions")
	requireContains(t, out, "Backing Up")
	requireContains(t, out, "Producing")

	out, _, err = runCLI(t, []string{"history", "show", "cccccccc-transitions", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history show --json: %v", err)
	}
	var detail struct {
		Run         struct{ ID string } `json:"run"`
		Transitions []struct {
			To string `json:"to"`
		} `json:"transitions"`
	}
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if detail.Run.ID != "cccccccc-transitions" || len(detail.Transitions) != 2 || detail.Transitions[0].To != "backing_up" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	if _, _, err := runCLI(t, []string{"history", "show", "zzzz"}, env.configPath); !errors.Is(err, runlog.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestVersionFlag(t *testing.T) {
	out, _, err := runCLI(t, []string{"--version"}, "")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	requireContains(t, out, "prodsum version "+version)
}

func TestQuietFlagIsGlobal(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history", "--quiet"}, env.configPath)
	if err != nil {
		t.Fatalf("history --quiet: %v", err)
	}
	requireContains(t, out, "No runs recorded")
	if _, _, err := runCLI(t, []string{"-q", "snapshots", "export"}, env.configPath); err != nil {
		t.Fatalf("-q snapshots: %v", err)
	}
}

func TestRunPayloadCarriesFailureKind(t *testing.T) {
	cause := services.Wrap(services.ErrIntegrity, "verify", "load metadata", "export", nil)
	payload := newRunPayload(pipelinerun.Report{RunID: "r1"}, cause)
	if payload.FailureKind != "integrity" || payload.Error == "" || payload.RunID != "r1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if ok := newRunPayload(pipelinerun.Report{}, nil); ok.Error != "" || ok.FailureKind != "" {
		t.Fatalf("successful run should carry no error: %+v", ok)
	}
}

func TestFailureHint(t *testing.T) {
	cases := map[string]error{
		"previous_versions": services.Wrap(services.ErrIntegrity, "verify", "", "", nil),
		"config validate":   services.Wrap(services.ErrConfiguration, "run", "", "", nil),
		"ODBC":              services.Wrap(services.ErrExternalTool, "convert", "", "", nil),
		"lock is released":  fmt.Errorf("%w: busy", pipelinerun.ErrLocked),
		"unchanged stages":  services.Wrap(services.ErrTransient, "fetch", "", "", nil),
	}
	for want, err := range cases {
		requireContains(t, failureHint(err), want)
	}
	if hint := failureHint(errors.New("plain")); hint != "" {
		t.Fatalf("unexpected hint %q", hint)
	}
}
