package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"prodsum/internal/pipeline"
	"prodsum/internal/runlog"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

const (
	statusLabelWidth = 28
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	return colorizeText(base, kind, colorize)
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func colorizeText(text string, kind statusKind, colorize bool) string {
	if !colorize || text == "" {
		return text
	}
	color := ansiBlue
	switch kind {
	case statusOK:
		color = ansiGreen
	case statusWarn:
		color = ansiYellow
	case statusError:
		color = ansiRed
	}
	return color + text + ansiReset
}

// runStatusKind grades a journaled run. Abandoned runs were interrupted
// without reaching FinishRun.
func runStatusKind(status runlog.Status) statusKind {
	switch status {
	case runlog.StatusSucceeded:
		return statusOK
	case runlog.StatusFailed:
		return statusError
	case runlog.StatusRunning, runlog.StatusAbandoned:
		return statusWarn
	default:
		return statusInfo
	}
}

// stateKind grades a stage state from the orchestration state machine.
func stateKind(state pipeline.State) statusKind {
	switch state {
	case pipeline.StateFailed:
		return statusError
	case pipeline.StateUnchanged, pipeline.StateIdle:
		return statusOK
	case pipeline.StateBackingUp:
		return statusWarn
	default:
		return statusInfo
	}
}

func outcomeKind(out pipeline.Outcome) statusKind {
	switch {
	case out.Skipped:
		return statusInfo
	case len(out.Removed) > 0:
		return statusWarn
	default:
		return statusOK
	}
}

// renderState prints a journaled state by its human label ("Backing Up").
func renderState(state string, colorize bool) string {
	if state == "" {
		return "-"
	}
	s := pipeline.State(state)
	return colorizeText(s.Label(), stateKind(s), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiDim + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
