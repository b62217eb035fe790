package pipelinerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"prodsum/internal/accessdb"
	"prodsum/internal/aggregate"
	"prodsum/internal/backup"
	"prodsum/internal/config"
	"prodsum/internal/contenthash"
	"prodsum/internal/convert"
	"prodsum/internal/export"
	"prodsum/internal/fetch"
	"prodsum/internal/logging"
	"prodsum/internal/metrics"
	"prodsum/internal/notifications"
	"prodsum/internal/pipeline"
	"prodsum/internal/preflight"
	"prodsum/internal/runlog"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
	"prodsum/internal/wells"
)

// keepRunLogs run logs survive age-based retention so an idle schedule still
// leaves the last few runs inspectable.
const keepRunLogs = 5

// ErrLocked is returned when another process holds the data tree lock.
var ErrLocked = errors.New("data directory locked")

// Options configures a single run. Zero values use the production wiring.
type Options struct {
	Force bool
	// Quiet keeps the per-run log file but writes nothing to stderr.
	Quiet bool
	// Logger replaces the per-run file logger built from config.
	Logger *slog.Logger
	// Source replaces the ODBC Access reader.
	Source     accessdb.Source
	HTTPClient *http.Client
	// Notifier replaces the ntfy service built from config.
	Notifier notifications.Service
	Now      func() time.Time
}

// Report summarizes a finished run.
type Report struct {
	RunID    string             `json:"run_id"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished"`
	LogPath  string             `json:"log_path,omitempty"`
	Outcomes []pipeline.Outcome `json:"outcomes"`
	Pruned   []string           `json:"pruned,omitempty"`
}

// Run executes fetch, convert and aggregate for cfg.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (Report, error) {
	if cfg == nil {
		return Report{}, fmt.Errorf("config is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return Report{}, services.Wrap(services.ErrConfiguration, "run", "ensure directories", "", err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return Report{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return Report{}, fmt.Errorf("%w: another prodsum run is already using %s", ErrLocked, cfg.Paths.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	report := Report{RunID: uuid.NewString(), Started: now()}
	logger := opts.Logger
	if logger == nil {
		var logErr error
		logger, report.LogPath, logErr = logging.NewFromConfig(cfg, report.Started, opts.Quiet)
		if logErr != nil {
			return report, fmt.Errorf("init logger: %w", logErr)
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
			Dir:        cfg.Paths.LogDir,
			Pattern:    logging.RunLogPattern,
			Exclude:    []string{report.LogPath},
			KeepNewest: keepRunLogs,
		})
	}
	ctx = services.WithRunID(ctx, report.RunID)
	logger = logger.With(logging.String(logging.FieldRunID, report.RunID))

	journal, err := runlog.Open(cfg.JournalPath(), logger)
	if err != nil {
		return report, fmt.Errorf("open run journal: %w", err)
	}
	defer journal.Close()
	if _, err := journal.AbandonStale(ctx, report.Started); err != nil {
		return report, err
	}
	if err := journal.BeginRun(ctx, report.RunID, cfg.Pipeline.Years, opts.Force, report.Started); err != nil {
		return report, err
	}

	recorder := metrics.New()
	runErr := execute(ctx, cfg, opts, logger, journal, recorder, now, &report)

	report.Finished = now()
	if err := journal.FinishRun(context.WithoutCancel(ctx), report.RunID, report.Finished, runErr); err != nil {
		logging.WarnWithContext(logger, "journal finish failed", "journal_write_failed",
			logging.String(logging.FieldErrorHint, "check permissions on "+cfg.JournalPath()),
			logging.String(logging.FieldImpact, "history shows this run as running"),
			logging.Error(err),
		)
	}
	recorder.ObserveRun(report.Started, report.Finished, runErr)
	if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logging.WarnWithContext(logger, "metrics textfile not written", "metrics_write_failed",
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path"),
			logging.String(logging.FieldImpact, "node-exporter keeps serving the previous run"),
			logging.Error(err),
		)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if err := notifier.NotifyRunFinished(context.WithoutCancel(ctx), runSummary(cfg, report, runErr)); err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.Error(err),
		)
	}

	if runErr != nil {
		logging.Critical(logger, "pipeline run failed",
			logging.String(logging.FieldEventType, "run_failed"),
			logging.String("failure_kind", services.FailureKind(runErr)),
			logging.Error(runErr),
		)
		return report, runErr
	}
	logger.Info("pipeline run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Duration("duration", report.Finished.Sub(report.Started)),
		logging.Int("stages", len(report.Outcomes)),
	)
	return report, nil
}

func runSummary(cfg *config.Config, report Report, runErr error) notifications.RunSummary {
	summary := notifications.RunSummary{
		RunID:    report.RunID,
		Years:    cfg.Pipeline.Years,
		Duration: report.Finished.Sub(report.Started),
		Err:      runErr,
	}
	for _, out := range report.Outcomes {
		summary.Stages = append(summary.Stages, notifications.StageSummary{
			Stage:   out.Stage,
			Skipped: out.Skipped,
			Added:   len(out.Added),
			Removed: len(out.Removed),
		})
	}
	return summary
}

func execute(
	ctx context.Context,
	cfg *config.Config,
	opts Options,
	logger *slog.Logger,
	journal *runlog.Store,
	recorder *metrics.Recorder,
	now func() time.Time,
	report *Report,
) error {
	if err := preflight.Err(preflight.RunAll(ctx, cfg)); err != nil {
		return err
	}
	if err := pipeline.VerifyMetadata(metadataChecks(cfg)...); err != nil {
		return err
	}

	stages, err := buildStages(cfg, opts, logger, now)
	if err != nil {
		return err
	}
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Any("years", cfg.Pipeline.Years),
		logging.Bool("force", opts.Force),
		logging.String("data_dir", cfg.Paths.DataDir),
	)

	env := pipeline.Env{
		Logger:   logger,
		Observer: pipeline.Observers{journal, recorder},
		Force:    opts.Force,
		Now:      now,
	}
	steps := []func() (pipeline.Outcome, error){
		func() (pipeline.Outcome, error) { return pipeline.RunStage(ctx, env, stages.fetch.Definition()) },
		func() (pipeline.Outcome, error) { return pipeline.RunStage(ctx, env, stages.convert.Definition()) },
		func() (pipeline.Outcome, error) { return pipeline.RunStage(ctx, env, stages.aggregate.Definition()) },
	}
	for _, step := range steps {
		out, err := step()
		if err != nil {
			return err
		}
		report.Outcomes = append(report.Outcomes, out)
		recorder.ObserveOutcome(out)
		if err := journal.RecordOutcome(ctx, report.RunID, out); err != nil {
			logging.WarnWithContext(logger, "journal outcome failed", "journal_write_failed",
				logging.String(logging.FieldStage, out.Stage),
				logging.String(logging.FieldErrorHint, "check permissions on "+journal.Path()),
				logging.String(logging.FieldImpact, "run history is incomplete"),
				logging.Error(err),
			)
		}
	}

	for _, dir := range StageDirs(cfg) {
		pruned := backup.Prune(backup.Root(dir.Path), cfg.Backup.KeepSnapshots, logger)
		report.Pruned = append(report.Pruned, pruned.Removed...)
	}
	return nil
}

type stageSet struct {
	fetch     *fetch.Stage
	convert   *convert.Stage
	aggregate *aggregate.Stage
}

func buildStages(cfg *config.Config, opts Options, logger *slog.Logger, now func() time.Time) (stageSet, error) {
	alg, err := contenthash.ParseAlgorithm(cfg.Pipeline.HashAlgorithm)
	if err != nil {
		return stageSet{}, services.Wrap(services.ErrConfiguration, "run", "hash algorithm", "", err)
	}
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return stageSet{}, services.Wrap(services.ErrConfiguration, "run", "export format", "", err)
	}
	source := opts.Source
	if source == nil {
		driver, err := accessdb.ParseDriver(cfg.Convert.AccessDriver)
		if err != nil {
			return stageSet{}, services.Wrap(services.ErrConfiguration, "run", "access driver", "", err)
		}
		source = accessdb.NewSQLSource(driver)
	}

	fetchOpts := []fetch.Option{fetch.WithClock(now)}
	if opts.HTTPClient != nil {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(opts.HTTPClient))
	}
	aggregator := wells.Aggregator{
		Columns: wells.Columns{
			ProductionKeep:      cfg.Transform.ProductionColumnsToKeep,
			ProductionFillZero:  cfg.Transform.ProductionColumnsFillZero,
			CompletionsKeep:     cfg.Transform.CompletionsColumnsToKeep,
			CompletionsFillZero: cfg.Transform.CompletionsColumnsFillZero,
		},
		RemoveInactive: cfg.Transform.RemoveCO2Wells,
	}
	return stageSet{
		fetch:     fetch.New(cfg, contenthash.New(alg), logger, fetchOpts...),
		convert:   convert.New(cfg.Paths.AccessDBDir, cfg.Paths.ParquetDir, source, logger),
		aggregate: aggregate.New(cfg.Paths.ParquetDir, cfg.Paths.ExportDir, format, aggregator, logger),
	}, nil
}

func metadataChecks(cfg *config.Config) []pipeline.Check {
	return []pipeline.Check{
		pipeline.Verify[stagemeta.ArchiveRecord](fetch.Name, cfg.Paths.ZipDir),
		pipeline.Verify[stagemeta.ArchiveRecord](fetch.Name, cfg.Paths.AccessDBDir),
		pipeline.Verify[stagemeta.TableRecord](convert.Name, cfg.Paths.ParquetDir),
		pipeline.Verify[stagemeta.ArchiveRecord](aggregate.Name, cfg.Paths.ExportDir),
	}
}
