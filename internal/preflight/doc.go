// Package preflight provides readiness checks for the data tree and the
// archive server prodsum depends on.
//
// These checks run in two contexts:
//   - pipelinerun calls RunAll before any stage executes. A failed check
//     aborts the run before metadata or artifacts are touched.
//   - The CLI "prodsum status" command uses individual check functions
//     (CheckDirectoryAccess, CheckArchiveServer) to display health.
package preflight
