package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"prodsum/internal/backup"
	"prodsum/internal/logging"
	"prodsum/internal/pipelinerun"
)

type snapshotListing struct {
	Directory string            `json:"directory"`
	Stage     string            `json:"stage"`
	Snapshots []backup.Snapshot `json:"snapshots"`
}

func newSnapshotsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots [directory|stage]",
		Short: "List previous artifact generations kept under previous_versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs := pipelinerun.StageDirs(cfg)
			if len(args) == 1 {
				name := strings.TrimSpace(args[0])
				dir, ok := pipelinerun.FindStageDir(cfg, name)
				if !ok {
					names := make([]string, 0, len(dirs))
					for _, d := range dirs {
						names = append(names, d.Name)
					}
					return fmt.Errorf("unknown directory %q (expected one of %s)", name, strings.Join(names, ", "))
				}
				dirs = []pipelinerun.StageDir{dir}
			}

			listings := make([]snapshotListing, 0, len(dirs))
			for _, dir := range dirs {
				snaps, err := backup.List(backup.Root(dir.Path))
				if err != nil {
					return fmt.Errorf("list %s snapshots: %w", dir.Name, err)
				}
				if snaps == nil {
					snaps = []backup.Snapshot{}
				}
				listings = append(listings, snapshotListing{Directory: dir.Name, Stage: dir.Stage, Snapshots: snaps})
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, listings)
			}

			var rows [][]string
			for _, listing := range listings {
				for _, snap := range listing.Snapshots {
					rows = append(rows, []string{
						listing.Directory,
						snap.Name,
						formatTime(snap.Time),
						strconv.Itoa(snap.Files),
						logging.FormatBytes(snap.Size),
						formatYears(snap.Years),
					})
				}
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No snapshots")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Directory", "Snapshot", "Created", "Files", "Size", "Years"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
