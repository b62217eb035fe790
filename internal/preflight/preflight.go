package preflight

import (
	"context"
	"fmt"
	"strings"

	"prodsum/internal/config"
	"prodsum/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the local checks a pipeline run needs. Network checks are
// left to the fetch stage itself.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Zip directory", cfg.Paths.ZipDir),
		CheckDirectoryAccess("Access database directory", cfg.Paths.AccessDBDir),
		CheckDirectoryAccess("Parquet directory", cfg.Paths.ParquetDir),
		CheckDirectoryAccess("Export directory", cfg.Paths.ExportDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if cfg.Metrics.TextfilePath != "" {
		results = append(results, CheckFileTarget("Metrics textfile", cfg.Metrics.TextfilePath))
	}
	return results
}

// Err folds failed results into a configuration error, or nil when all passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", fmt.Sprintf("%d check(s) failed", len(failed)),
		fmt.Errorf("%s", strings.Join(failed, "; ")))
}
