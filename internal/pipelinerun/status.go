package pipelinerun

import (
	"time"

	"prodsum/internal/aggregate"
	"prodsum/internal/backup"
	"prodsum/internal/config"
	"prodsum/internal/convert"
	"prodsum/internal/fetch"
	"prodsum/internal/stagemeta"
)

// StageDir names one directory managed by the pipeline.
type StageDir struct {
	Name  string `json:"name"`
	Stage string `json:"stage"`
	Path  string `json:"path"`
}

// StageDirs lists the managed directories in pipeline order.
func StageDirs(cfg *config.Config) []StageDir {
	return []StageDir{
		{Name: "zip", Stage: fetch.Name, Path: cfg.Paths.ZipDir},
		{Name: "access-db", Stage: fetch.Name, Path: cfg.Paths.AccessDBDir},
		{Name: "parquet", Stage: convert.Name, Path: cfg.Paths.ParquetDir},
		{Name: "export", Stage: aggregate.Name, Path: cfg.Paths.ExportDir},
	}
}

// FindStageDir resolves a directory by name or owning stage. A stage that
// owns several directories resolves to the first.
func FindStageDir(cfg *config.Config, name string) (StageDir, bool) {
	for _, dir := range StageDirs(cfg) {
		if dir.Name == name || dir.Stage == name {
			return dir, true
		}
	}
	return StageDir{}, false
}

// DirStatus is the persisted state of one managed directory.
type DirStatus struct {
	StageDir
	HasMetadata bool   `json:"has_metadata"`
	Artifacts   int    `json:"artifacts"`
	Years       []int  `json:"years"`
	Updated     string `json:"updated,omitempty"`
	Snapshots   int    `json:"snapshots"`
	Error       string `json:"error,omitempty"`
}

// Inspect reads metadata and snapshots of every managed directory. Problems
// are reported per directory rather than returned.
func Inspect(cfg *config.Config) []DirStatus {
	dirs := StageDirs(cfg)
	out := make([]DirStatus, 0, len(dirs))
	for _, dir := range dirs {
		var status DirStatus
		if dir.Name == "parquet" {
			status = inspect[stagemeta.TableRecord](dir)
		} else {
			status = inspect[stagemeta.ArchiveRecord](dir)
		}
		snaps, err := backup.List(backup.Root(dir.Path))
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
		status.Snapshots = len(snaps)
		out = append(out, status)
	}
	return out
}

func inspect[R stagemeta.Record](dir StageDir) DirStatus {
	status := DirStatus{StageDir: dir}
	set, exists, err := stagemeta.Load[R](stagemeta.PathIn(dir.Path))
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.HasMetadata = exists
	status.Artifacts = len(set)
	status.Years = set.Years()
	var latest time.Time
	for _, rec := range set {
		ts, err := stagemeta.ParseTimestamp(timestampOf(rec))
		if err == nil && ts.After(latest) {
			latest = ts
		}
	}
	if !latest.IsZero() {
		status.Updated = stagemeta.Timestamp(latest)
	}
	return status
}

func timestampOf(rec any) string {
	switch r := rec.(type) {
	case stagemeta.ArchiveRecord:
		return r.Timestamp
	case stagemeta.TableRecord:
		return r.Timestamp
	default:
		return ""
	}
}
