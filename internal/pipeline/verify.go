package pipeline

import (
	"fmt"

	"prodsum/internal/stagemeta"
)

// Check validates one persisted metadata file.
type Check struct {
	Stage string
	Path  string
	load  func(path string) error
}

// Verify builds a Check that decodes dir's metadata as records of type R and
// confirms every artifact they name is on disk.
func Verify[R stagemeta.Record](stage, dir string) Check {
	return Check{
		Stage: stage,
		Path:  stagemeta.PathIn(dir),
		load: func(path string) error {
			set, exists, err := stagemeta.Load[R](path)
			if err != nil || !exists {
				return err
			}
			return set.VerifyArtifacts()
		},
	}
}

// VerifyMetadata loads every persisted metadata file before any stage runs so a
// corrupt file, or one naming a missing artifact, aborts the run without
// touching artifacts. Missing metadata files pass.
func VerifyMetadata(checks ...Check) error {
	for _, check := range checks {
		if check.load == nil {
			continue
		}
		if err := check.load(check.Path); err != nil {
			return fmt.Errorf("%s metadata: %w", check.Stage, err)
		}
	}
	return nil
}
