package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"prodsum/internal/accessdb"
	"prodsum/internal/config"
	"prodsum/internal/deps"
	"prodsum/internal/pipelinerun"
	"prodsum/internal/preflight"
	"prodsum/internal/runlog"
)

type statusReport struct {
	ConfigPath   string                  `json:"config_path"`
	ConfigExists bool                    `json:"config_exists"`
	Directories  []pipelinerun.DirStatus `json:"directories"`
	LastRun      *runlog.Run             `json:"last_run,omitempty"`
	Checks       []preflight.Result      `json:"checks"`
	Dependencies []deps.Status           `json:"dependencies"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stage directories, the last run and health checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := collectStatus(cmd.Context(), cfg, offline)
			if err != nil {
				return err
			}
			report.ConfigPath = ctx.configPath
			report.ConfigExists = ctx.configExists
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Configuration", colorize)
			lines = append(lines, renderStatusLine("Config file", statusInfo, report.ConfigPath, colorize))
			if !report.ConfigExists {
				lines = append(lines, renderStatusLine("Config defaults", statusWarn, "file not found; defaults in use", colorize))
			}
			lines = append(lines, renderStatusLine("Report years", statusInfo, formatYears(cfg.Pipeline.Years), colorize))
			lines = append(lines, renderStatusLine("Export format", statusInfo, cfg.Export.Format, colorize))
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Last run", colorize)...)
			lines = append(lines, lastRunLine(report.LastRun, colorize))
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Health", colorize)...)
			for _, check := range report.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusWarn
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			for _, dep := range report.Dependencies {
				lines = append(lines, dependencyLine(dep, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderDirectories(report.Directories))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the archive server reachability check")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, offline bool) (statusReport, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return statusReport{}, err
	}
	report := statusReport{
		Directories: pipelinerun.Inspect(cfg),
		Checks:      preflight.RunAll(ctx, cfg),
	}
	if !offline {
		report.Checks = append(report.Checks, preflight.CheckArchiveServer(ctx, cfg.Fetch.BaseURL))
	}

	report.Dependencies = deps.CheckBinaries(deps.Requirements())
	if driver, err := accessdb.ParseDriver(cfg.Convert.AccessDriver); err == nil {
		report.Dependencies = append(report.Dependencies, deps.CheckODBCDriver(ctx, deps.ODBCInstaller, driver.ODBCName()))
	}

	journal, err := runlog.Open(cfg.JournalPath(), nil)
	if err != nil {
		return statusReport{}, err
	}
	defer journal.Close()
	runs, err := journal.Recent(ctx, 1)
	if err != nil {
		return statusReport{}, err
	}
	if len(runs) == 1 {
		report.LastRun = &runs[0]
	}
	return report, nil
}

func lastRunLine(run *runlog.Run, colorize bool) string {
	if run == nil {
		return renderStatusLine("Status", statusInfo, "no runs recorded", colorize)
	}
	kind := runStatusKind(run.Status)
	detail := fmt.Sprintf("%s at %s", run.Status, formatTime(run.StartedAt))
	if run.Error != "" {
		detail += " (" + run.Error + ")"
	}
	return renderStatusLine("Status", kind, detail, colorize)
}

func renderDirectories(dirs []pipelinerun.DirStatus) string {
	rows := make([][]string, 0, len(dirs))
	for _, dir := range dirs {
		artifacts := strconv.Itoa(dir.Artifacts)
		if !dir.HasMetadata {
			artifacts = "-"
		}
		if dir.Error != "" {
			artifacts = "error: " + dir.Error
		}
		rows = append(rows, []string{
			dir.Name,
			dir.Stage,
			artifacts,
			formatYears(dir.Years),
			orDash(dir.Updated),
			strconv.Itoa(dir.Snapshots),
			dir.Path,
		})
	}
	return renderTable(
		[]string{"Directory", "Stage", "Artifacts", "Years", "Updated", "Snapshots", "Path"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func dependencyLine(dep deps.Status, colorize bool) string {
	if dep.Available {
		detail := dep.Command
		if dep.Description != "" {
			detail = dep.Description
		}
		return renderStatusLine(dep.Name, statusOK, detail, colorize)
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
	}
	return renderStatusLine(dep.Name, kind, dep.Detail, colorize)
}
