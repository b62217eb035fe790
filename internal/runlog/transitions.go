package runlog

import (
	"context"
	"database/sql"
	"fmt"

	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
)

var _ pipeline.Observer = (*Store)(nil)

// StageTransition journals a state change for the run carried by ctx.
// Transitions outside a run are ignored. Journal failures are logged and
// never interrupt the pipeline.
func (s *Store) StageTransition(ctx context.Context, t pipeline.Transition) {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return
	}
	var message string
	if t.Err != nil {
		message = t.Err.Error()
	}
	_, err := s.exec(ctx,
		`INSERT INTO stage_transitions (run_id, stage, from_state, to_state, at, error_message)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID, t.Stage, t.From.String(), t.To.String(), formatTime(t.At), nullableString(message),
	)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "journal transition failed", "journal_write_failed",
			logging.String(logging.FieldErrorHint, "check permissions on "+s.path),
			logging.String(logging.FieldImpact, "run history is incomplete"),
			logging.Error(err),
		)
	}
}

// Transitions returns the state changes of a run in the order they happened.
func (s *Store) Transitions(ctx context.Context, runID string) ([]TransitionRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, from_state, to_state, at, error_message
         FROM stage_transitions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var (
			rec     TransitionRecord
			at      sql.NullString
			message sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.From, &rec.To, &at, &message); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		rec.At = parseTime(at)
		rec.Error = message.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
