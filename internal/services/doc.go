// Package services defines shared utilities consumed by the pipeline stages.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and report years for
//     logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (transient I/O, metadata integrity, configuration, external driver) for
//     the run journal and CLI output.
//
// Use these helpers when wiring stage logic so error handling and observability
// stay uniform across the pipeline.
package services
