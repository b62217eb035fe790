package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"prodsum/internal/backup"
	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
)

type recorder struct {
	mu    sync.Mutex
	moves []pipeline.Transition
}

func (r *recorder) StageTransition(_ context.Context, t pipeline.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves = append(r.moves, t)
}

func (r *recorder) path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := make([]string, 0, len(r.moves))
	for _, t := range r.moves {
		parts = append(parts, t.To.String())
	}
	return strings.Join(parts, ">")
}

// fakeStage produces one text file per key of inputs.
type fakeStage struct {
	dir      string
	inputs   map[string]int
	produced int
	failWith error
}

func (f *fakeStage) stage() pipeline.Stage[stagemeta.ArchiveRecord] {
	return pipeline.Stage[stagemeta.ArchiveRecord]{
		Name:      "fake",
		Dir:       f.dir,
		Extension: "txt",
		Candidate: func(context.Context) (stagemeta.Set[stagemeta.ArchiveRecord], error) {
			set := stagemeta.Set[stagemeta.ArchiveRecord]{}
			for key, year := range f.inputs {
				set[key] = stagemeta.ArchiveRecord{
					Year:      year,
					Path:      filepath.Join(f.dir, key[:4]+".txt"),
					Timestamp: "2024-01-01T00:00:00Z",
				}
			}
			return set, nil
		},
		Produce: func(_ context.Context, in pipeline.Input[stagemeta.ArchiveRecord]) error {
			if f.failWith != nil {
				return f.failWith
			}
			f.produced++
			for _, entry := range in.Candidate.Ordered() {
				if err := os.WriteFile(entry.Record.Path, []byte(entry.Hash), 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func env(obs pipeline.Observer, clock *time.Time) pipeline.Env {
	return pipeline.Env{
		Logger:   logging.NewNop(),
		Observer: obs,
		Now: func() time.Time {
			*clock = clock.Add(time.Second)
			return *clock
		},
	}
}

var (
	keyA = strings.Repeat("a", 64)
	keyB = strings.Repeat("b", 64)
)

func TestRunStageColdStartThenUnchanged(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeStage{dir: filepath.Join(t.TempDir(), "stage"), inputs: map[string]int{keyA: 2021}}
	rec := &recorder{}

	out, err := pipeline.RunStage(context.Background(), env(rec, &clock), fake.stage())
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if out.Skipped || !out.ColdStart || fake.produced != 1 {
		t.Fatalf("expected cold-start production, got %+v produced=%d", out, fake.produced)
	}
	if got := rec.path(); got != "checking>backing_up>producing>persisting>idle" {
		t.Fatalf("unexpected transitions %q", got)
	}
	if _, err := os.Stat(stagemeta.PathIn(fake.dir)); err != nil {
		t.Fatalf("metadata not persisted: %v", err)
	}

	rec = &recorder{}
	out, err = pipeline.RunStage(context.Background(), env(rec, &clock), fake.stage())
	if err != nil {
		t.Fatalf("second RunStage: %v", err)
	}
	if !out.Skipped || fake.produced != 1 {
		t.Fatalf("expected skip, got %+v produced=%d", out, fake.produced)
	}
	if got := rec.path(); got != "checking>unchanged>idle" {
		t.Fatalf("unexpected transitions %q", got)
	}
}

func TestRunStageChangedKeysRotatePreviousGeneration(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeStage{dir: filepath.Join(t.TempDir(), "stage"), inputs: map[string]int{keyA: 2021}}
	if _, err := pipeline.RunStage(context.Background(), env(nil, &clock), fake.stage()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	fake.inputs = map[string]int{keyB: 2021}
	out, err := pipeline.RunStage(context.Background(), env(nil, &clock), fake.stage())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if out.Skipped || out.Snapshot == "" {
		t.Fatalf("expected rotation, got %+v", out)
	}
	if len(out.Added) != 1 || out.Added[0] != keyB || len(out.Removed) != 1 || out.Removed[0] != keyA {
		t.Fatalf("unexpected diff: added=%v removed=%v", out.Added, out.Removed)
	}
	if _, err := os.Stat(filepath.Join(out.Snapshot, "aaaa.txt")); err != nil {
		t.Fatalf("previous artifact not in snapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fake.dir, "aaaa.txt")); !os.IsNotExist(err) {
		t.Fatalf("previous artifact left in stage, stat err=%v", err)
	}
	snaps, err := backup.List(backup.Root(fake.dir))
	if err != nil || len(snaps) != 1 {
		t.Fatalf("expected one snapshot, got %v err=%v", snaps, err)
	}
}

func TestRunStageForceReruns(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeStage{dir: filepath.Join(t.TempDir(), "stage"), inputs: map[string]int{keyA: 2021}}
	if _, err := pipeline.RunStage(context.Background(), env(nil, &clock), fake.stage()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	forced := env(nil, &clock)
	forced.Force = true
	out, err := pipeline.RunStage(context.Background(), forced, fake.stage())
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if out.Skipped || !out.Forced || fake.produced != 2 {
		t.Fatalf("expected forced production, got %+v produced=%d", out, fake.produced)
	}
}

func TestRunStageProducerFailureLeavesNoMetadata(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	boom := services.Wrap(services.ErrExternalTool, "fake", "produce", "driver missing", nil)
	fake := &fakeStage{dir: filepath.Join(t.TempDir(), "stage"), inputs: map[string]int{keyA: 2021}, failWith: boom}
	rec := &recorder{}

	_, err := pipeline.RunStage(context.Background(), env(rec, &clock), fake.stage())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if got := rec.path(); got != "checking>backing_up>producing>failed" {
		t.Fatalf("unexpected transitions %q", got)
	}
	last := rec.moves[len(rec.moves)-1]
	if last.Err == nil || !last.To.Terminal() {
		t.Fatalf("failed transition should carry the error: %+v", last)
	}
	if _, err := os.Stat(stagemeta.PathIn(fake.dir)); !os.IsNotExist(err) {
		t.Fatalf("metadata must not be written after a failed producer, stat err=%v", err)
	}
}

func TestRunStageMalformedMetadataFailsBeforeBackup(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := filepath.Join(t.TempDir(), "stage")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(stagemeta.PathIn(dir), []byte("[oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fake := &fakeStage{dir: dir, inputs: map[string]int{keyA: 2021}}
	rec := &recorder{}
	_, err := pipeline.RunStage(context.Background(), env(rec, &clock), fake.stage())
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if got := rec.path(); got != "checking>failed" || fake.produced != 0 {
		t.Fatalf("unexpected transitions %q produced=%d", got, fake.produced)
	}
}

func TestVerifyMetadata(t *testing.T) {
	good := t.TempDir()
	bad := t.TempDir()
	missing := filepath.Join(t.TempDir(), "absent")
	archive := filepath.Join(good, "2021.zip")
	if err := os.WriteFile(archive, []byte("zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	set := stagemeta.Set[stagemeta.ArchiveRecord]{
		keyA: {Year: 2021, Path: archive, Timestamp: "2024-01-01T00:00:00Z"},
	}
	if err := stagemeta.Save(stagemeta.PathIn(good), set); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.WriteFile(stagemeta.PathIn(bad), []byte(`{"zz": {"year": 2021}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := pipeline.VerifyMetadata(
		pipeline.Verify[stagemeta.ArchiveRecord]("fetch", good),
		pipeline.Verify[stagemeta.TableRecord]("convert", missing),
	); err != nil {
		t.Fatalf("expected valid tree, got %v", err)
	}
	err := pipeline.VerifyMetadata(
		pipeline.Verify[stagemeta.ArchiveRecord]("fetch", good),
		pipeline.Verify[stagemeta.ArchiveRecord]("aggregate", bad),
	)
	if !errors.Is(err, services.ErrIntegrity) || !strings.Contains(err.Error(), "aggregate") {
		t.Fatalf("expected aggregate integrity error, got %v", err)
	}

	if err := os.Remove(archive); err != nil {
		t.Fatalf("remove: %v", err)
	}
	err = pipeline.VerifyMetadata(pipeline.Verify[stagemeta.ArchiveRecord]("fetch", good))
	if !errors.Is(err, services.ErrIntegrity) || !strings.Contains(err.Error(), "2021.zip") {
		t.Fatalf("expected missing artifact integrity error, got %v", err)
	}
}

func TestStateLabel(t *testing.T) {
	if got := pipeline.StateBackingUp.Label(); got != "Backing Up" {
		t.Fatalf("Label = %q", got)
	}
}
