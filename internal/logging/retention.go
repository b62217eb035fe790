package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionTarget selects the files in Dir whose names match Pattern.
// Exclude lists paths that are never removed (the active run log). The
// KeepNewest most recent matches survive regardless of age.
type RetentionTarget struct {
	Dir        string
	Pattern    string
	Exclude    []string
	KeepNewest int
}

type retentionCandidate struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs deletes matching files last modified more than retentionDays
// ago and returns the removed paths. Zero or negative retentionDays keeps
// everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) []string {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	excluded := exclusionSet(targets)

	var removed []string
	for _, target := range targets {
		candidates := collectCandidates(target)
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].modTime.After(candidates[j].modTime)
		})
		for i, candidate := range candidates {
			if i < target.KeepNewest || !candidate.modTime.Before(cutoff) {
				continue
			}
			if _, skip := excluded[candidate.path]; skip {
				continue
			}
			if err := os.Remove(candidate.path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", candidate.path),
					Error(err),
					String(FieldErrorHint, "check ownership of paths.log_dir"),
					String(FieldImpact, "old run log stays on disk"),
				)
				continue
			}
			removed = append(removed, candidate.path)
		}
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("old run logs pruned",
			String(FieldEventType, "log_pruned"),
			Int("count", len(removed)),
			Int("retention_days", retentionDays),
		)
	}
	return removed
}

func exclusionSet(targets []RetentionTarget) map[string]struct{} {
	set := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path == "" {
				continue
			}
			set[absolute(path)] = struct{}{}
		}
	}
	return set
}

func collectCandidates(target RetentionTarget) []retentionCandidate {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []retentionCandidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if matched, err := filepath.Match(pattern, entry.Name()); err != nil || !matched {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, retentionCandidate{
			path:    absolute(filepath.Join(dir, entry.Name())),
			modTime: info.ModTime(),
		})
	}
	return out
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
