// Package aggregate is the final pipeline stage: it builds the per-well
// production summaries from the converted tables and exports them.
package aggregate
