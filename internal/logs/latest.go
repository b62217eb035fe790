package logs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"prodsum/internal/logging"
)

// ErrNoRunLogs reports a log directory without any run log files.
var ErrNoRunLogs = errors.New("no run logs found")

// RunLogs lists run log files in dir, oldest first. Names embed a UTC
// timestamp so lexical order is chronological.
func RunLogs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, logging.RunLogPattern))
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	files := matches[:0]
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat run log: %w", err)
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Latest returns the newest run log in dir.
func Latest(dir string) (string, error) {
	files, err := RunLogs(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoRunLogs, dir)
	}
	return files[len(files)-1], nil
}
