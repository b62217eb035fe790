// Package runlog journals pipeline runs in SQLite.
//
// Each run gets a row in runs, every stage state change a row in
// stage_transitions, and each finished stage a row in stage_outcomes.
// The Store implements pipeline.Observer so it can be attached directly to
// the orchestrator; the CLI history command reads the same tables back.
package runlog
