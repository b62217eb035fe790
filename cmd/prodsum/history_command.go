package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"prodsum/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled pipeline runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			journal, err := runlog.Open(cfg.JournalPath(), nil)
			if err != nil {
				return err
			}
			defer journal.Close()

			runs, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if runs == nil {
					runs = []runlog.Run{}
				}
				return writeJSON(cmd, runs)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					formatTime(run.StartedAt),
					colorizeText(string(run.Status), runStatusKind(run.Status), colorize),
					formatYears(run.Years),
					yesNo(run.Forced),
					formatDuration(run.Duration()),
					stageSummary(run.Stages),
					orDash(run.FailureKind),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Status", "Years", "Forced", "Duration", "Stages", "Failure"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show (0 for all)")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's stage transitions",
		Long:  "Show prints every state a stage passed through during a run. The run ID\nmay be shortened to any unique prefix, such as the one history prints.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			journal, err := runlog.Open(cfg.JournalPath(), nil)
			if err != nil {
				return err
			}
			defer journal.Close()

			run, err := findRun(cmd, journal, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			transitions, err := journal.Transitions(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if transitions == nil {
					transitions = []runlog.TransitionRecord{}
				}
				return writeJSON(cmd, runDetailPayload{Run: run, Transitions: transitions})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Run %s %s (%s)\n", run.ID, colorizeText(string(run.Status), runStatusKind(run.Status), colorize), formatYears(run.Years))
			if run.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", run.Error)
			}
			if len(transitions) == 0 {
				fmt.Fprintln(out, "No transitions recorded")
				return nil
			}
			rows := make([][]string, 0, len(transitions))
			for _, tr := range transitions {
				rows = append(rows, []string{
					formatTime(tr.At),
					tr.Stage,
					renderState(tr.From, colorize),
					renderState(tr.To, colorize),
					orDash(tr.Error),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"At", "Stage", "From", "To", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

// findRun resolves an exact run ID or a unique prefix of one.
func findRun(cmd *cobra.Command, journal *runlog.Store, id string) (runlog.Run, error) {
	run, err := journal.Get(cmd.Context(), id)
	if err == nil || !errors.Is(err, runlog.ErrRunNotFound) {
		return run, err
	}
	runs, err := journal.Recent(cmd.Context(), 0)
	if err != nil {
		return runlog.Run{}, err
	}
	var match *runlog.Run
	for i := range runs {
		if !strings.HasPrefix(runs[i].ID, id) {
			continue
		}
		if match != nil {
			return runlog.Run{}, fmt.Errorf("run prefix %q is ambiguous", id)
		}
		match = &runs[i]
	}
	if match == nil || id == "" {
		return runlog.Run{}, fmt.Errorf("%s: %w", id, runlog.ErrRunNotFound)
	}
	return journal.Get(cmd.Context(), match.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stageSummary(stages []runlog.StageOutcome) string {
	if len(stages) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		result := "ran"
		if s.Skipped {
			result = "skipped"
		}
		parts = append(parts, s.Stage+":"+result)
	}
	return strings.Join(parts, " ")
}
