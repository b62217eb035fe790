// Package main hosts the prodsum CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the fetch/convert/aggregate pipeline,
// reports per-directory state, lists snapshots and journaled runs, reads run
// logs back, and scaffolds configuration. It centralizes configuration resolution and the
// YAML overlay flags so subcommands can focus on presentation.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
