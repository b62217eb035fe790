package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"prodsum/internal/fileutil"
	"prodsum/internal/logging"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
)

// DirName is the snapshot root inside every stage directory.
const DirName = "previous_versions"

// SnapshotLayout names snapshot directories (UTC, second resolution).
const SnapshotLayout = "20060102-150405"

// Options describes one rotation.
type Options struct {
	StageDir    string
	BackupRoot  string
	Extension   string
	PathFields  []string
	StripFields []string
	Now         func() time.Time
}

// Result reports what a rotation did. Snapshot is empty when the stage had no
// metadata and was wiped instead.
type Result struct {
	Snapshot string
	Wiped    bool
	Moved    []string
	Removed  []string
	Metadata stagemeta.Raw
}

// Root returns the default snapshot root for a stage directory.
func Root(stageDir string) string {
	return filepath.Join(stageDir, DirName)
}

func (o Options) normalized() Options {
	o.StageDir = filepath.Clean(o.StageDir)
	if strings.TrimSpace(o.BackupRoot) == "" {
		o.BackupRoot = Root(o.StageDir)
	}
	o.Extension = strings.TrimPrefix(strings.TrimSpace(o.Extension), ".")
	if len(o.PathFields) == 0 {
		o.PathFields = []string{stagemeta.FieldPath}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Rotate moves the current generation of a stage into a new snapshot before the
// stage is overwritten. With metadata present, path fields are rewritten to point
// into the snapshot, StripFields are dropped, the rewritten metadata.json is
// written into the snapshot and every artifact (files with Extension plus files
// named by a path field) is moved there. Without metadata the stage's artifact
// and json files are deleted. Subdirectories are never touched.
//
// A move failure aborts the rotation; files already moved stay in the snapshot.
func Rotate(ctx context.Context, opts Options, logger *slog.Logger) (Result, error) {
	opts = opts.normalized()
	logger = logging.NewComponentLogger(logger, "backup")

	metaPath := stagemeta.PathIn(opts.StageDir)
	raw, exists, err := stagemeta.LoadRaw(metaPath)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return wipe(opts, logger)
	}

	files, err := artifactFiles(opts, raw)
	if err != nil {
		return Result{}, err
	}

	snapshot, err := createSnapshotDir(opts.BackupRoot, opts.Now().UTC())
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "backup", "create snapshot", opts.BackupRoot, err)
	}
	result := Result{Snapshot: snapshot, Metadata: rewrite(raw, snapshot, opts)}

	if err := stagemeta.SaveRaw(stagemeta.PathIn(snapshot), result.Metadata); err != nil {
		return result, err
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		src := filepath.Join(opts.StageDir, name)
		dst := filepath.Join(snapshot, name)
		if err := fileutil.MoveFile(src, dst); err != nil {
			logging.ErrorWithContext(logger, "backup move failed; stage directory is partially rotated", "backup_move_failed",
				logging.String("path", src),
				logging.String("snapshot", snapshot),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the snapshot and restore moved files before rerunning"),
			)
			return result, services.Wrap(services.ErrTransient, "backup", "move artifact", src, err)
		}
		result.Moved = append(result.Moved, dst)
	}

	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return result, services.Wrap(services.ErrTransient, "backup", "remove metadata", metaPath, err)
	}

	logger.Info("stage rotated into snapshot",
		logging.String("stage_dir", opts.StageDir),
		logging.String("snapshot", snapshot),
		logging.Int("moved", len(result.Moved)),
		logging.String(logging.FieldEventType, "backup_rotated"),
	)
	return result, nil
}

func wipe(opts Options, logger *slog.Logger) (Result, error) {
	result := Result{Wiped: true}
	entries, err := os.ReadDir(opts.StageDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, services.Wrap(services.ErrTransient, "backup", "list stage", opts.StageDir, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !matchesExtension(entry.Name(), opts.Extension, "json") {
			continue
		}
		path := filepath.Join(opts.StageDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return result, services.Wrap(services.ErrTransient, "backup", "wipe", path, err)
		}
		result.Removed = append(result.Removed, path)
	}
	if len(result.Removed) > 0 {
		logging.WarnWithContext(logger, "stage had no metadata; artifacts wiped", "backup_wiped",
			logging.String("stage_dir", opts.StageDir),
			logging.Int("removed", len(result.Removed)),
			logging.String(logging.FieldImpact, "files without provenance were discarded"),
			logging.String(logging.FieldErrorHint, "none; the stage is rebuilt from upstream"),
		)
	}
	return result, nil
}

// artifactFiles lists the base names that belong to the current generation. Every
// file named by a path field must exist in the stage directory.
func artifactFiles(opts Options, raw stagemeta.Raw) ([]string, error) {
	set := make(map[string]struct{})
	entries, err := os.ReadDir(opts.StageDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "backup", "list stage", opts.StageDir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && matchesExtension(entry.Name(), opts.Extension) {
			set[entry.Name()] = struct{}{}
		}
	}
	for hash, record := range raw {
		for _, field := range opts.PathFields {
			value, ok := record[field].(string)
			if !ok || strings.TrimSpace(value) == "" {
				return nil, services.Wrap(services.ErrIntegrity, "backup", "read metadata",
					fmt.Sprintf("record %s has no %s", hash, field), nil)
			}
			name := filepath.Base(value)
			if _, err := os.Stat(filepath.Join(opts.StageDir, name)); err != nil {
				return nil, services.Wrap(services.ErrIntegrity, "backup", "locate artifact",
					fmt.Sprintf("record %s names %s which is not in %s", hash, name, opts.StageDir), err)
			}
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		if name == stagemeta.FileName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func rewrite(raw stagemeta.Raw, snapshot string, opts Options) stagemeta.Raw {
	out := make(stagemeta.Raw, len(raw))
	for hash, record := range raw {
		next := make(map[string]any, len(record))
		for k, v := range record {
			next[k] = v
		}
		for _, field := range opts.StripFields {
			delete(next, field)
		}
		for _, field := range opts.PathFields {
			if value, ok := next[field].(string); ok {
				next[field] = filepath.Join(snapshot, filepath.Base(value))
			}
		}
		out[hash] = next
	}
	return out
}

func createSnapshotDir(root string, now time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	base := now.Format(SnapshotLayout)
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = base + "-" + strconv.Itoa(i)
		}
		path := filepath.Join(root, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
}

func matchesExtension(name string, exts ...string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, want := range exts {
		if want != "" && strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
