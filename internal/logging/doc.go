// Package logging assembles structured slog loggers and formatting helpers used
// across the pipeline.
//
// It owns the console/JSON handlers, maps the configured level names (including
// critical) onto slog levels, and exposes context-aware helpers so stage code can
// tag log lines with the run ID, stage and report year. A run writes human
// readable lines to stderr and JSON lines to a per-run file in paths.log_dir.
//
// Prefer these constructors over hand-rolled slog setup so every component emits
// records with the same shape.
package logging
