package backup

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"prodsum/internal/logging"
	"prodsum/internal/stagemeta"
)

// Snapshot describes one previous generation of a stage.
type Snapshot struct {
	Name  string    `json:"name"`
	Path  string    `json:"path"`
	Time  time.Time `json:"time"`
	Files int       `json:"files"`
	Size  int64     `json:"size"`
	Years []int     `json:"years"`

	seq int
}

// PruneResult contains the outcome of a retention pass.
type PruneResult struct {
	Removed []string
	Errors  []PruneError
}

// PruneError pairs a snapshot path with its removal error.
type PruneError struct {
	Path  string
	Error error
}

// List returns the snapshots under backupRoot, oldest first. Directories whose
// names do not follow SnapshotLayout are ignored.
func List(backupRoot string) ([]Snapshot, error) {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	snapshots := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stamp, seq, ok := parseSnapshotName(entry.Name())
		if !ok {
			continue
		}
		snap := Snapshot{Name: entry.Name(), Path: filepath.Join(backupRoot, entry.Name()), Time: stamp, seq: seq}
		files, err := os.ReadDir(snap.Path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if !file.Type().IsRegular() {
				continue
			}
			snap.Files++
			if info, err := file.Info(); err == nil {
				snap.Size += info.Size()
			}
		}
		snap.Years = snapshotYears(snap.Path)
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].Time.Equal(snapshots[j].Time) {
			return snapshots[i].Time.Before(snapshots[j].Time)
		}
		return snapshots[i].seq < snapshots[j].seq
	})
	return snapshots, nil
}

// Prune keeps the newest keep snapshots and removes the rest. keep <= 0 keeps
// everything.
func Prune(backupRoot string, keep int, logger *slog.Logger) PruneResult {
	result := PruneResult{}
	if keep <= 0 {
		return result
	}
	snapshots, err := List(backupRoot)
	if err != nil {
		result.Errors = append(result.Errors, PruneError{Path: backupRoot, Error: err})
		return result
	}
	if len(snapshots) <= keep {
		return result
	}
	for _, snap := range snapshots[:len(snapshots)-keep] {
		if err := os.RemoveAll(snap.Path); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: snap.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove old snapshot",
					logging.String("path", snap.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "snapshot_prune_failed"),
					logging.String(logging.FieldErrorHint, "check stage directory permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, snap.Path)
		if logger != nil {
			logger.Info("removed old snapshot",
				logging.String("path", snap.Path),
				logging.String("size", logging.FormatBytes(snap.Size)),
				logging.String(logging.FieldEventType, "snapshot_pruned"),
			)
		}
	}
	return result
}

func parseSnapshotName(name string) (time.Time, int, bool) {
	if len(name) < len(SnapshotLayout) {
		return time.Time{}, 0, false
	}
	stamp, err := time.ParseInLocation(SnapshotLayout, name[:len(SnapshotLayout)], time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}
	suffix := name[len(SnapshotLayout):]
	if suffix == "" {
		return stamp, 0, true
	}
	if !strings.HasPrefix(suffix, "-") {
		return time.Time{}, 0, false
	}
	seq, err := strconv.Atoi(suffix[1:])
	if err != nil || seq <= 0 {
		return time.Time{}, 0, false
	}
	return stamp, seq, true
}

// snapshotYears reads the years named by a snapshot's metadata. Unreadable
// metadata yields no years; List is informational.
func snapshotYears(dir string) []int {
	raw, exists, err := stagemeta.LoadRaw(stagemeta.PathIn(dir))
	if err != nil || !exists {
		return nil
	}
	seen := map[int]struct{}{}
	var years []int
	for _, record := range raw {
		value, ok := record["year"]
		if !ok {
			continue
		}
		year, ok := asInt(value)
		if !ok {
			continue
		}
		if _, dup := seen[year]; dup {
			continue
		}
		seen[year] = struct{}{}
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return int(n), err == nil
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
