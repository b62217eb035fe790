package stagemeta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"prodsum/internal/contenthash"
	"prodsum/internal/fileutil"
	"prodsum/internal/services"
)

// FileName is the metadata file at the root of every stage directory.
const FileName = "metadata.json"

// Record is a typed metadata value.
type Record interface {
	ReportYear() int
	Validate() error
	// ArtifactPaths lists the files the record vouches for.
	ArtifactPaths() []string
}

// Set maps content hashes to records. Its key set is exactly the set of
// artifacts valid for a stage.
type Set[R Record] map[string]R

// Keys returns the hashes in sorted order.
func (s Set[R]) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Years returns the distinct report years in ascending order.
func (s Set[R]) Years() []int {
	seen := make(map[int]struct{}, len(s))
	years := make([]int, 0, len(s))
	for _, record := range s {
		year := record.ReportYear()
		if _, ok := seen[year]; ok {
			continue
		}
		seen[year] = struct{}{}
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

// Ordered returns (hash, record) pairs sorted by year then hash.
func (s Set[R]) Ordered() []Entry[R] {
	entries := make([]Entry[R], 0, len(s))
	for key, record := range s {
		entries = append(entries, Entry[R]{Hash: key, Record: record})
	}
	sort.Slice(entries, func(i, j int) bool {
		yi, yj := entries[i].Record.ReportYear(), entries[j].Record.ReportYear()
		if yi != yj {
			return yi < yj
		}
		return entries[i].Hash < entries[j].Hash
	})
	return entries
}

// Entry pairs a hash with its record.
type Entry[R Record] struct {
	Hash   string
	Record R
}

// PathIn returns the metadata file location for a stage directory.
func PathIn(dir string) string {
	return filepath.Join(dir, FileName)
}

// Validate checks every key and record.
func (s Set[R]) Validate() error {
	for _, key := range s.Keys() {
		if !contenthash.Valid(key) {
			return fmt.Errorf("key %q is not a lowercase hex digest", key)
		}
		if err := s[key].Validate(); err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
	}
	return nil
}

// Load reads and validates a persisted metadata file. A missing file returns
// exists=false with no error; anything unreadable or invalid is an integrity error.
func Load[R Record](path string) (Set[R], bool, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, services.Wrap(services.ErrTransient, "metadata", "read", path, err)
	}
	set := Set[R]{}
	if err := json.Unmarshal(payload, &set); err != nil {
		return nil, true, services.Wrap(services.ErrIntegrity, "metadata", "decode", path, err)
	}
	if set == nil {
		return nil, true, services.Wrap(services.ErrIntegrity, "metadata", "decode", path+" holds null", nil)
	}
	if err := set.Validate(); err != nil {
		return nil, true, services.Wrap(services.ErrIntegrity, "metadata", "validate", path, err)
	}
	return set, true, nil
}

// VerifyArtifacts checks that every file a record points at is present. A
// missing file is an integrity error: the metadata no longer describes the
// directory.
func (s Set[R]) VerifyArtifacts() error {
	for _, entry := range s.Ordered() {
		for _, path := range entry.Record.ArtifactPaths() {
			info, err := os.Stat(path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				return services.Wrap(services.ErrIntegrity, "metadata", "verify artifacts",
					fmt.Sprintf("year %d artifact %s is missing", entry.Record.ReportYear(), path), err)
			case err != nil:
				return services.Wrap(services.ErrTransient, "metadata", "verify artifacts", path, err)
			case info.IsDir():
				return services.Wrap(services.ErrIntegrity, "metadata", "verify artifacts",
					fmt.Sprintf("year %d artifact %s is a directory", entry.Record.ReportYear(), path), nil)
			}
		}
	}
	return nil
}

// Save validates set and writes it atomically with sorted keys.
func Save[R Record](path string, set Set[R]) error {
	if set == nil {
		set = Set[R]{}
	}
	if err := set.Validate(); err != nil {
		return services.Wrap(services.ErrIntegrity, "metadata", "validate", path, err)
	}
	payload, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	payload = append(payload, '\n')
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "metadata", "write", path, err)
	}
	return nil
}

// Raw is the untyped form used when rewriting a generation for a snapshot.
type Raw map[string]map[string]any

// LoadRaw reads a metadata file without binding it to a record type.
func LoadRaw(path string) (Raw, bool, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, services.Wrap(services.ErrTransient, "metadata", "read", path, err)
	}
	raw := Raw{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, true, services.Wrap(services.ErrIntegrity, "metadata", "decode", path, err)
	}
	return raw, true, nil
}

// SaveRaw writes raw metadata atomically.
func SaveRaw(path string, raw Raw) error {
	payload, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	payload = append(payload, '\n')
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "metadata", "write", path, err)
	}
	return nil
}
