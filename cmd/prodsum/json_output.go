package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"prodsum/internal/pipelinerun"
	"prodsum/internal/runlog"
	"prodsum/internal/services"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runPayload is `prodsum run --json`. A failed run still reports the stages
// that finished before the failure.
type runPayload struct {
	pipelinerun.Report
	Error       string `json:"error,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`
}

func newRunPayload(report pipelinerun.Report, runErr error) runPayload {
	payload := runPayload{Report: report}
	if runErr != nil {
		payload.Error = runErr.Error()
		payload.FailureKind = services.FailureKind(runErr)
	}
	return payload
}

// runDetailPayload is `prodsum history show --json`.
type runDetailPayload struct {
	Run         runlog.Run                `json:"run"`
	Transitions []runlog.TransitionRecord `json:"transitions"`
}
