// Package logs reads the per-run JSON log files written under paths.log_dir.
//
// Latest locates the newest run log, Tail reads its last lines or follows it
// from an offset, and Entry/Filter decode and select individual records so
// `prodsum logs` can narrow output by level, stage, year or run ID.
package logs
