package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"prodsum/internal/backup"
	"prodsum/internal/logging"
	"prodsum/internal/services"
	"prodsum/internal/stagecache"
	"prodsum/internal/stagemeta"
)

// Stage describes one cached pipeline step producing artifacts of record type R.
type Stage[R stagemeta.Record] struct {
	Name        string
	Dir         string
	BackupRoot  string
	Extension   string
	PathFields  []string
	StripFields []string

	// Candidate computes the prospective metadata for the current inputs.
	Candidate func(ctx context.Context) (stagemeta.Set[R], error)
	// Produce writes the artifacts described by the candidate into Dir.
	Produce func(ctx context.Context, in Input[R]) error
}

// Input is handed to Produce after the previous generation was rotated away.
type Input[R stagemeta.Record] struct {
	Candidate stagemeta.Set[R]
	Backup    backup.Result
}

// Env carries per-run collaborators shared by every stage.
type Env struct {
	Logger   *slog.Logger
	Observer Observer
	Force    bool
	Now      func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Outcome summarizes a stage execution.
type Outcome struct {
	Stage     string        `json:"stage"`
	Skipped   bool          `json:"skipped"`
	ColdStart bool          `json:"cold_start"`
	Forced    bool          `json:"forced"`
	Keys      []string      `json:"keys"`
	Added     []string      `json:"added,omitempty"`
	Removed   []string      `json:"removed,omitempty"`
	Snapshot  string        `json:"snapshot,omitempty"`
	Duration  time.Duration `json:"duration"`
}

type runner struct {
	ctx    context.Context
	env    Env
	stage  string
	state  State
	logger *slog.Logger
}

func (r *runner) move(to State, err error) {
	from := r.state
	r.state = to
	r.logger.Debug("stage transition",
		logging.String("from", from.String()),
		logging.String("to", to.String()),
	)
	if r.env.Observer != nil {
		r.env.Observer.StageTransition(r.ctx, Transition{Stage: r.stage, From: from, To: to, At: r.env.now(), Err: err})
	}
}

func (r *runner) fail(step string, err error) error {
	r.move(StateFailed, err)
	logging.ErrorWithContext(r.logger, "stage failed", "stage_failure",
		logging.String("step", step),
		logging.String("failure_kind", services.FailureKind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	return fmt.Errorf("%s stage: %s: %w", r.stage, step, err)
}

// RunStage drives one stage through check, backup, produce and persist.
// Metadata is written only after Produce succeeds, so a failed producer leaves
// the stage without metadata and the next run treats it as a cold start.
func RunStage[R stagemeta.Record](ctx context.Context, env Env, st Stage[R]) (Outcome, error) {
	ctx = services.WithStage(ctx, st.Name)
	r := &runner{
		ctx:    ctx,
		env:    env,
		stage:  st.Name,
		state:  StateIdle,
		logger: logging.WithContext(ctx, env.Logger),
	}
	started := env.now()
	out := Outcome{Stage: st.Name}

	if st.Candidate == nil || st.Produce == nil {
		return out, r.fail("configure", services.Wrap(services.ErrConfiguration, st.Name, "configure", "stage has no candidate or producer", nil))
	}

	r.logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_dir", st.Dir),
	)
	r.move(StateChecking, nil)

	candidate, err := st.Candidate(ctx)
	if err != nil {
		return out, r.fail("compute candidate", err)
	}
	metaPath := stagemeta.PathIn(st.Dir)
	cmp, err := stagecache.Changed(candidate, metaPath)
	if err != nil {
		return out, r.fail("compare metadata", err)
	}
	out.Keys = candidate.Keys()
	out.ColdStart = cmp.ColdStart
	out.Added = cmp.Added
	out.Removed = cmp.Removed

	if !cmp.Changed && !env.Force {
		r.move(StateUnchanged, nil)
		r.move(StateIdle, nil)
		out.Skipped = true
		out.Duration = env.now().Sub(started)
		r.logger.Info("stage unchanged; skipping",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.Int("artifacts", len(out.Keys)),
		)
		return out, nil
	}
	out.Forced = !cmp.Changed && env.Force

	r.move(StateBackingUp, nil)
	rotated, err := backup.Rotate(ctx, backup.Options{
		StageDir:    st.Dir,
		BackupRoot:  st.BackupRoot,
		Extension:   st.Extension,
		PathFields:  st.PathFields,
		StripFields: st.StripFields,
		Now:         env.Now,
	}, r.logger)
	if err != nil {
		return out, r.fail("rotate previous generation", err)
	}
	out.Snapshot = rotated.Snapshot

	r.move(StateProducing, nil)
	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return out, r.fail("produce", services.Wrap(services.ErrTransient, st.Name, "create stage dir", st.Dir, err))
	}
	if err := st.Produce(ctx, Input[R]{Candidate: candidate, Backup: rotated}); err != nil {
		return out, r.fail("produce", err)
	}

	r.move(StatePersisting, nil)
	if err := stagemeta.Save(metaPath, candidate); err != nil {
		return out, r.fail("persist metadata", err)
	}

	r.move(StateIdle, nil)
	out.Duration = env.now().Sub(started)
	r.logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("artifacts", len(out.Keys)),
		logging.Bool("cold_start", out.ColdStart),
		logging.Bool("forced", out.Forced),
		logging.String("snapshot", out.Snapshot),
		logging.Duration("duration", out.Duration),
	)
	return out, nil
}

func failureHint(err error) string {
	switch services.FailureKind(err) {
	case "integrity":
		return "inspect or remove the offending metadata.json and rerun"
	case "configuration", "validation":
		return "fix the configuration and rerun"
	case "external_tool":
		return "check the Access ODBC driver installation"
	case "not_found":
		return "confirm the report year is published"
	default:
		if strings.Contains(strings.ToLower(err.Error()), "context canceled") {
			return "run was interrupted; rerun to resume"
		}
		return "rerun; completed stages are skipped"
	}
}
