package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prodsum/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		raw    bool
		file   string
		filter logs.Filter
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the most recent run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(file)
			if path == "" {
				path, err = logs.Latest(cfg.Paths.LogDir)
				if err != nil {
					if errors.Is(err, logs.ErrNoRunLogs) {
						fmt.Fprintln(cmd.OutOrStdout(), "No run logs yet")
						return nil
					}
					return err
				}
			}

			runCtx := cmd.Context()
			if follow {
				var stop context.CancelFunc
				runCtx, stop = signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}

			out := cmd.OutOrStdout()
			opts := logs.TailOptions{Offset: -1, Limit: lines}
			if !filter.Empty() || lines <= 0 {
				// Filters apply after reading, so start from the top.
				opts = logs.TailOptions{Offset: 0}
			}
			result, err := logs.Tail(runCtx, path, opts)
			if err != nil {
				return err
			}
			printLogLines(out, selectLines(result.Lines, filter, raw, lines))

			offset := result.Offset
			for follow {
				next, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: time.Second})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				printLogLines(out, selectLines(next.Lines, filter, raw, 0))
				offset = next.Offset
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records unchanged")
	cmd.Flags().StringVar(&file, "file", "", "Read this log file instead of the latest run log")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error, critical)")
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "Only records for this stage")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only records for this run ID")
	cmd.Flags().IntVar(&filter.Year, "year", 0, "Only records for this report year")
	return cmd
}

func selectLines(lines []string, filter logs.Filter, raw bool, keep int) []string {
	selected := make([]string, 0, len(lines))
	for _, line := range lines {
		entry, ok := logs.ParseEntry(line)
		if !ok {
			if filter.Empty() {
				selected = append(selected, line)
			}
			continue
		}
		if !filter.Match(entry) {
			continue
		}
		if raw {
			selected = append(selected, line)
		} else {
			selected = append(selected, entry.Format())
		}
	}
	if keep > 0 && len(selected) > keep {
		selected = selected[len(selected)-keep:]
	}
	return selected
}

func printLogLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
