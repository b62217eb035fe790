package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

const runColumns = "id, status, years, forced, started_at, finished_at, error_message, failure_kind"

// BeginRun records a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, id string, years []int, forced bool, started time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, status, years, forced, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, StatusRunning, encodeYears(years), boolInt(forced), formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun closes a run. A nil runErr marks it succeeded.
func (s *Store) FinishRun(ctx context.Context, id string, finished time.Time, runErr error) error {
	status := StatusSucceeded
	var message, kind string
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
		kind = services.FailureKind(runErr)
	}
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ?, failure_kind = ? WHERE id = ?`,
		status, formatTime(finished), nullableString(message), nullableString(kind), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// AbandonStale marks runs still flagged running as abandoned. Callers hold the
// run lock, so any such row belongs to a process that died.
func (s *Store) AbandonStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE status = ?`,
		StatusAbandoned, formatTime(now), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", err)
	}
	if n > 0 {
		s.logger.Warn("abandoned unfinished runs",
			logging.Int64("count", n),
			logging.String(logging.FieldEventType, "runs_abandoned"),
			logging.String(logging.FieldErrorHint, "a previous run exited without finishing"),
			logging.String(logging.FieldImpact, "history shows those runs as abandoned"),
		)
	}
	return n, nil
}

// RecordOutcome stores the summary of a finished stage.
func (s *Store) RecordOutcome(ctx context.Context, runID string, out pipeline.Outcome) error {
	_, err := s.exec(ctx,
		`INSERT OR REPLACE INTO stage_outcomes (
            run_id, stage, skipped, cold_start, forced, artifacts, added, removed, snapshot, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, out.Stage, boolInt(out.Skipped), boolInt(out.ColdStart), boolInt(out.Forced),
		len(out.Keys), len(out.Added), len(out.Removed), nullableString(out.Snapshot), out.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record %s outcome: %w", out.Stage, err)
	}
	return nil
}

// Get loads one run with its stage outcomes.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	if run.Stages, err = s.outcomes(ctx, id); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Recent returns the newest runs first. limit <= 0 returns all of them.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list runs: %w", err)
	}
	_ = rows.Close()

	for i := range runs {
		if runs[i].Stages, err = s.outcomes(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) outcomes(ctx context.Context, runID string) ([]StageOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, skipped, cold_start, forced, artifacts, added, removed, snapshot, duration_ms
         FROM stage_outcomes WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []StageOutcome
	for rows.Next() {
		var (
			o                          StageOutcome
			skipped, coldStart, forced int
			snapshot                   sql.NullString
			durationMS                 int64
		)
		if err := rows.Scan(&o.Stage, &skipped, &coldStart, &forced, &o.Artifacts, &o.Added, &o.Removed, &snapshot, &durationMS); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Skipped = skipped != 0
		o.ColdStart = coldStart != 0
		o.Forced = forced != 0
		o.Snapshot = snapshot.String
		o.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		status      string
		years       string
		forced      int
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		message     sql.NullString
		kind        sql.NullString
	)
	if err := scanner.Scan(&run.ID, &status, &years, &forced, &startedRaw, &finishedRaw, &message, &kind); err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	run.Years = decodeYears(years)
	run.Forced = forced != 0
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	run.Error = message.String
	run.FailureKind = kind.String
	return run, nil
}
