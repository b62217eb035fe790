package pipelinerun_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"prodsum/internal/accessdb"
	"prodsum/internal/backup"
	"prodsum/internal/config"
	"prodsum/internal/contenthash"
	"prodsum/internal/frame"
	"prodsum/internal/logging"
	"prodsum/internal/notifications"
	"prodsum/internal/pipelinerun"
	"prodsum/internal/runlog"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
	"prodsum/internal/testsupport"
)

func mustColumn(t *testing.T, name string, kind frame.Kind, values ...any) frame.Column {
	t.Helper()
	c, err := frame.NewColumn(name, kind, values...)
	if err != nil {
		t.Fatalf("NewColumn %s: %v", name, err)
	}
	return c
}

func mustFrame(t *testing.T, cols ...frame.Column) *frame.Frame {
	t.Helper()
	f, err := frame.New(cols...)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

type recordingNotifier struct {
	summaries []notifications.RunSummary
}

func (r *recordingNotifier) NotifyRunFinished(_ context.Context, summary notifications.RunSummary) error {
	r.summaries = append(r.summaries, summary)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

type fixture struct {
	cfg      *config.Config
	server   *testsupport.ArchiveServer
	source   *testsupport.TableSource
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := testsupport.NewArchiveServer(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithBaseURL(server.BaseURL()),
		testsupport.WithYears(2021),
		testsupport.WithMetricsTextfile("prodsum.prom"),
	)
	cfg.Transform.ProductionColumnsToKeep = []string{"name", "operator_num", "API_num", "Prod_days", "oil_prod", "gas_prod"}
	cfg.Transform.ProductionColumnsFillZero = []string{"oil_prod", "gas_prod"}
	cfg.Transform.CompletionsColumnsToKeep = []string{"API_num", "county"}
	cfg.Transform.CompletionsColumnsFillZero = []string{"county"}

	f := &fixture{
		cfg:      cfg,
		server:   server,
		source:   testsupport.NewTableSource(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	f.putYear(t, 2021, "db-2021")
	return f
}

// putYear publishes a report year's archive, whose database holds content,
// and registers the tables read from it.
func (f *fixture) putYear(t *testing.T, year int, content string) {
	t.Helper()
	stem := fmt.Sprintf("co %d summary", year)
	f.server.Set(stem+".zip", testsupport.ZipArchive(t, map[string]string{stem + ".mdb": content}))

	f.source.Put(stem, accessdb.TableProduction, mustFrame(t,
		mustColumn(t, "api_county_code", frame.KindString, "1", "1", "2"),
		mustColumn(t, "api_seq_num", frame.KindString, "10", "10", "20"),
		mustColumn(t, "sidetrack_num", frame.KindString, "0", "0", "0"),
		mustColumn(t, "name", frame.KindString, "Op A", "Op A", "Op B"),
		mustColumn(t, "operator_num", frame.KindInt, 1, 1, 2),
		mustColumn(t, "Prod_days", frame.KindInt, 200, 100, 0),
		mustColumn(t, "oil_prod", frame.KindFloat, 10.0, 20.0, nil),
		mustColumn(t, "gas_prod", frame.KindFloat, 30.0, 30.0, nil),
	))
	f.source.Put(stem, accessdb.TableCompletions, mustFrame(t,
		mustColumn(t, "API_num", frame.KindString, "05-001-00010-00"),
		mustColumn(t, "county", frame.KindString, "ADAMS"),
	))
}

func (f *fixture) run(t *testing.T, force bool) (pipelinerun.Report, error) {
	t.Helper()
	return pipelinerun.Run(context.Background(), f.cfg, pipelinerun.Options{
		Force:    force,
		Logger:   logging.NewNop(),
		Source:   f.source,
		Notifier: f.notifier,
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
}

func TestRunProducesExportsAndJournal(t *testing.T) {
	f := newFixture(t)

	report, err := f.run(t, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected three stage outcomes, got %+v", report.Outcomes)
	}
	for _, out := range report.Outcomes {
		if out.Skipped || !out.ColdStart {
			t.Fatalf("first run should cold start every stage: %+v", out)
		}
	}

	data, err := os.ReadFile(filepath.Join(f.cfg.Paths.ExportDir, "2021.csv"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one active well:\n%s", data)
	}
	if !strings.HasPrefix(lines[1], "05-001-00010-00,") || !strings.HasSuffix(lines[1], ",ADAMS") {
		t.Fatalf("unexpected well row %q", lines[1])
	}

	journal := testsupport.MustOpenJournal(t, f.cfg)
	run, err := journal.Get(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if run.Status != runlog.StatusSucceeded || len(run.Stages) != 3 {
		t.Fatalf("unexpected journaled run %+v", run)
	}
	transitions, err := journal.Transitions(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(transitions) == 0 || transitions[0].Stage != "fetch" || transitions[0].To != "checking" {
		t.Fatalf("unexpected transitions %+v", transitions)
	}

	prom, err := os.ReadFile(f.cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), `prodsum_runs_total{failure_kind="",status="succeeded"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", prom)
	}

	if len(f.notifier.summaries) != 1 || f.notifier.summaries[0].Err != nil || len(f.notifier.summaries[0].Stages) != 3 {
		t.Fatalf("unexpected notification %+v", f.notifier.summaries)
	}

	again, err := f.run(t, false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, out := range again.Outcomes {
		if !out.Skipped {
			t.Fatalf("unchanged inputs should skip every stage: %+v", out)
		}
	}
	if reads := f.source.Reads(); len(reads) != 2 {
		t.Fatalf("expected the tables to be read once, got %v", reads)
	}
}

func TestForceRerunsAndPrunesSnapshots(t *testing.T) {
	f := newFixture(t)
	f.cfg.Backup.KeepSnapshots = 1

	if _, err := f.run(t, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 2; i++ {
		report, err := f.run(t, true)
		if err != nil {
			t.Fatalf("forced Run %d: %v", i, err)
		}
		for _, out := range report.Outcomes {
			if out.Skipped || !out.Forced {
				t.Fatalf("forced run should execute every stage: %+v", out)
			}
		}
	}

	for _, status := range pipelinerun.Inspect(f.cfg) {
		if status.Error != "" {
			t.Fatalf("%s: %s", status.Name, status.Error)
		}
		if status.Snapshots != 1 {
			t.Fatalf("%s: expected retention to keep one snapshot, got %d", status.Name, status.Snapshots)
		}
		if !status.HasMetadata || status.Artifacts != 1 || len(status.Years) != 1 || status.Years[0] != 2021 {
			t.Fatalf("%s: unexpected status %+v", status.Name, status)
		}
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(f.cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	_, err = f.run(t, false)
	if !errors.Is(err, pipelinerun.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if f.server.Hits("co 2021 summary.zip") != 0 {
		t.Fatal("a locked run must not download anything")
	}
}

func TestCorruptMetadataAbortsBeforeFetch(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.WriteFile(stagemeta.PathIn(f.cfg.Paths.ParquetDir), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	report, err := f.run(t, false)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if len(report.Outcomes) != 0 {
		t.Fatalf("no stage should run, got %+v", report.Outcomes)
	}
	if f.server.Hits("co 2021 summary.zip") != 0 {
		t.Fatal("metadata verification must precede downloads")
	}

	journal := testsupport.MustOpenJournal(t, f.cfg)
	runs, err := journal.Recent(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Recent: %v %v", runs, err)
	}
	if runs[0].Status != runlog.StatusFailed || runs[0].FailureKind != "integrity" {
		t.Fatalf("unexpected journaled failure %+v", runs[0])
	}
	if len(f.notifier.summaries) != 1 || !errors.Is(f.notifier.summaries[0].Err, services.ErrIntegrity) {
		t.Fatalf("expected failure notification, got %+v", f.notifier.summaries)
	}
}

func TestMissingArtifactAbortsBeforeFetch(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run(t, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := os.Remove(filepath.Join(f.cfg.Paths.ExportDir, "2021.csv")); err != nil {
		t.Fatalf("remove export: %v", err)
	}
	hits := f.server.Hits("co 2021 summary.zip")

	report, err := f.run(t, false)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if !strings.Contains(err.Error(), "2021.csv") {
		t.Fatalf("error should name the missing export: %v", err)
	}
	if len(report.Outcomes) != 0 {
		t.Fatalf("no stage should run, got %+v", report.Outcomes)
	}
	if f.server.Hits("co 2021 summary.zip") != hits {
		t.Fatal("artifact verification must precede downloads")
	}

	journal := testsupport.MustOpenJournal(t, f.cfg)
	runs, err := journal.Recent(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Recent: %v %v", runs, err)
	}
	if runs[0].Status != runlog.StatusFailed || runs[0].FailureKind != "integrity" {
		t.Fatalf("unexpected journaled failure %+v", runs[0])
	}
}

func TestChangedYearIsTheOnlyOneReconverted(t *testing.T) {
	f := newFixture(t)
	f.cfg.Pipeline.Years = []int{2021, 2022}
	f.putYear(t, 2022, "db-2022")

	if _, err := f.run(t, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reads := f.source.Reads(); len(reads) != 4 {
		t.Fatalf("expected both years converted, got %v", reads)
	}

	f.putYear(t, 2022, "db-2022 revised")
	report, err := f.run(t, false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, out := range report.Outcomes {
		if out.Skipped {
			t.Fatalf("a changed archive should rerun every stage: %+v", out)
		}
	}
	reads := f.source.Reads()
	if len(reads) != 6 {
		t.Fatalf("expected only 2022 to be read again, got %v", reads)
	}
	for _, key := range reads[4:] {
		if !strings.HasPrefix(key, "co 2022 summary|") {
			t.Fatalf("unexpected table read %q in %v", key, reads)
		}
	}

	snaps, err := backup.List(backup.Root(f.cfg.Paths.ParquetDir))
	if err != nil || len(snaps) != 1 {
		t.Fatalf("expected one parquet snapshot: %v %v", snaps, err)
	}
	hasher := contenthash.New(contenthash.SHA256)
	for _, table := range accessdb.Tables() {
		name := table.ParquetName(2021)
		current, err := hasher.File(filepath.Join(f.cfg.Paths.ParquetDir, name))
		if err != nil {
			t.Fatalf("hash current %s: %v", name, err)
		}
		previous, err := hasher.File(filepath.Join(snaps[0].Path, name))
		if err != nil {
			t.Fatalf("hash snapshot %s: %v", name, err)
		}
		if current != previous {
			t.Fatalf("%s was not restored byte for byte from the snapshot", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(f.cfg.Paths.ExportDir, "2022.csv"))
	if err != nil {
		t.Fatalf("read 2022 export: %v", err)
	}
	if !strings.Contains(string(data), "05-001-00010-00,") {
		t.Fatalf("unexpected 2022 export:\n%s", data)
	}
}

func TestSnapshotsKeepEveryGenerationSelfContained(t *testing.T) {
	const runs = 3
	f := newFixture(t)
	f.cfg.Backup.KeepSnapshots = 0

	for i := 0; i < runs; i++ {
		f.putYear(t, 2021, fmt.Sprintf("db-2021 generation %d", i))
		if _, err := f.run(t, false); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	for _, dir := range pipelinerun.StageDirs(f.cfg) {
		fields := []string{stagemeta.FieldPath}
		if dir.Name == "parquet" {
			fields = []string{stagemeta.FieldProductionPath, stagemeta.FieldCompletionsPath}
		}
		snaps, err := backup.List(backup.Root(dir.Path))
		if err != nil {
			t.Fatalf("%s: List: %v", dir.Name, err)
		}
		if len(snaps) != runs-1 {
			t.Fatalf("%s: expected %d snapshots, got %d", dir.Name, runs-1, len(snaps))
		}
		for _, snap := range snaps {
			raw, exists, err := stagemeta.LoadRaw(stagemeta.PathIn(snap.Path))
			if err != nil || !exists || len(raw) != 1 {
				t.Fatalf("%s/%s: metadata %v exists=%v err=%v", dir.Name, snap.Name, raw, exists, err)
			}
			for hash, record := range raw {
				for _, field := range fields {
					value, _ := record[field].(string)
					if filepath.Dir(value) != snap.Path {
						t.Fatalf("%s/%s: record %s %s=%q points outside the snapshot", dir.Name, snap.Name, hash, field, value)
					}
					if _, err := os.Stat(value); err != nil {
						t.Fatalf("%s/%s: %s: %v", dir.Name, snap.Name, field, err)
					}
				}
				if _, ok := record[stagemeta.FieldDBPath]; ok {
					t.Fatalf("%s/%s: snapshot records keep no upstream db_path", dir.Name, snap.Name)
				}
			}
		}
	}
}
