package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"prodsum/internal/pipelinerun"
	"prodsum/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			if hint := failureHint(err); hint != "" {
				fmt.Fprintln(os.Stderr, "hint:", hint)
			}
		}
		os.Exit(1)
	}
}

// failureHint suggests the next step for a failed command.
func failureHint(err error) string {
	if errors.Is(err, pipelinerun.ErrLocked) {
		return "wait for the other run to finish; the lock is released when it exits"
	}
	switch services.FailureKind(err) {
	case "integrity":
		return "a metadata.json disagrees with its directory; restore from previous_versions or remove the stage directory to rebuild it"
	case "configuration":
		return "check the file with `prodsum config validate`"
	case "external_tool":
		return "`prodsum status` lists the ODBC driver and system tools"
	case "transient":
		return "rerun later; unchanged stages are skipped"
	case "not_found":
		return "run the upstream stage first with `prodsum run`"
	default:
		return ""
	}
}
