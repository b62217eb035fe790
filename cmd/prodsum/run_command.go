package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"prodsum/internal/pipeline"
	"prodsum/internal/pipelinerun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var years []int
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, convert and aggregate the configured report years",
		Long: "Run downloads each report year's archive, converts the Access tables to Parquet\n" +
			"and writes one per-well summary per year. Stages whose inputs did not change\n" +
			"are skipped; previous artifacts are kept under previous_versions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(years) > 0 {
				selected := slices.Clone(years)
				slices.Sort(selected)
				cfg.Pipeline.Years = slices.Compact(selected)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			report, runErr := pipelinerun.Run(cmd.Context(), cfg, pipelinerun.Options{Force: force, Quiet: ctx.quiet()})
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, newRunPayload(report, runErr)); err != nil {
					return err
				}
				return runErr
			}

			out := cmd.OutOrStdout()
			if len(report.Outcomes) > 0 {
				fmt.Fprintln(out, renderOutcomes(report.Outcomes, shouldColorize(out)))
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(out, "Run %s finished in %s\n", report.RunID, formatDuration(report.Finished.Sub(report.Started)))
			if len(report.Pruned) > 0 {
				fmt.Fprintf(out, "Pruned %d old snapshot(s)\n", len(report.Pruned))
			}
			if report.LogPath != "" {
				fmt.Fprintf(out, "Log: %s\n", report.LogPath)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&years, "years", nil, "Report years to process (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-run every stage even when inputs are unchanged")
	return cmd
}

func renderOutcomes(outcomes []pipeline.Outcome, colorize bool) string {
	rows := make([][]string, 0, len(outcomes))
	for _, out := range outcomes {
		rows = append(rows, []string{
			out.Stage,
			outcomeResult(out, colorize),
			strconv.Itoa(len(out.Keys)),
			strconv.Itoa(len(out.Added)),
			strconv.Itoa(len(out.Removed)),
			orDash(out.Snapshot),
			formatDuration(out.Duration),
		})
	}
	return renderTable(
		[]string{"Stage", "Result", "Artifacts", "Added", "Removed", "Snapshot", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	)
}

func outcomeResult(out pipeline.Outcome, colorize bool) string {
	var result string
	switch {
	case out.Skipped:
		result = "unchanged"
	case out.ColdStart:
		result = "created"
	case out.Forced:
		result = "forced"
	default:
		result = "updated"
	}
	return colorizeText(result, outcomeKind(out), colorize)
}
