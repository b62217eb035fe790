package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"prodsum/internal/fileutil"
	"prodsum/internal/logging"
)

// TempDirName is the scratch directory fetch downloads into before promotion.
const TempDirName = "temp"

// Result contains the outcome of a staging operation.
type Result struct {
	Moved   []string
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Dir returns the scratch directory inside a stage directory.
func Dir(stageDir string) string {
	return filepath.Join(stageDir, TempDirName)
}

// Prepare empties dir of leftovers from an interrupted run and recreates it.
func Prepare(dir string, logger *slog.Logger) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("staging directory is empty")
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 && logger != nil {
		logger.Info("discarding leftover staging files",
			logging.String("path", dir),
			logging.Int("entries", len(entries)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear staging directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging directory %s: %w", dir, err)
	}
	return nil
}

// Promote moves every regular file in from whose extension matches ext into to.
// Existing files in to are replaced. A failed move stops promotion; files that
// were already moved stay in to.
func Promote(ctx context.Context, from, to, ext string, logger *slog.Logger) (Result, error) {
	result := Result{}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")

	entries, err := os.ReadDir(from)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("list staging directory %s: %w", from, err)
	}
	if err := os.MkdirAll(to, 0o755); err != nil {
		return result, fmt.Errorf("create %s: %w", to, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ext != "" && !strings.EqualFold(strings.TrimPrefix(filepath.Ext(entry.Name()), "."), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		src := filepath.Join(from, name)
		dst := filepath.Join(to, name)
		if err := fileutil.MoveFile(src, dst); err != nil {
			return result, fmt.Errorf("promote %s: %w", name, err)
		}
		result.Moved = append(result.Moved, dst)
	}
	if logger != nil && len(result.Moved) > 0 {
		logger.Debug("promoted staged files",
			logging.String("from", from),
			logging.String("to", to),
			logging.Int("files", len(result.Moved)),
		)
	}
	return result, nil
}

// Discard removes a scratch directory. Failures are reported, not returned; a
// leftover directory is cleared again by the next Prepare.
func Discard(dir string, logger *slog.Logger) Result {
	result := Result{}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return result
	}
	if err := os.RemoveAll(dir); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		if logger != nil {
			logger.Warn("failed to remove staging directory",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
		return result
	}
	result.Removed = append(result.Removed, dir)
	return result
}
