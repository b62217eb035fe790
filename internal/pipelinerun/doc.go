// Package pipelinerun assembles and executes one prodsum pipeline run.
//
// Run holds an exclusive lock on the data tree for its whole duration, opens
// the per-run log and the journal, runs preflight checks, verifies every
// persisted metadata file, then executes fetch, convert and aggregate in
// order. The first failing stage ends the run. Snapshot retention and the
// metrics textfile are handled after the stages finish.
//
// Inspect reports the per-directory state used by the status command without
// taking the lock.
package pipelinerun
