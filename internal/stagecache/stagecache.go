// Package stagecache decides whether a stage's on-disk output is stale by
// comparing the key set of freshly computed metadata with the persisted one.
// Only hashes matter: identical bytes imply identical derived output, so records
// that differ only in paths or timestamps are not a change.
package stagecache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"

	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
)

// Result describes the comparison outcome.
type Result struct {
	Changed   bool
	ColdStart bool
	Added     []string
	Removed   []string
}

// Changed compares a typed candidate set against the persisted metadata file.
func Changed[R stagemeta.Record](candidate stagemeta.Set[R], persistedPath string) (Result, error) {
	return Compare(candidate.Keys(), persistedPath)
}

// Compare reports whether candidate differs from the key set stored at
// persistedPath. A missing file is a cold start and always a change. A file that
// cannot be parsed is an integrity error; the caller must abort rather than treat
// the stage as unchanged.
func Compare(candidate []string, persistedPath string) (Result, error) {
	persisted, exists, err := LoadKeys(persistedPath)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		added := append([]string(nil), candidate...)
		sort.Strings(added)
		return Result{Changed: true, ColdStart: true, Added: added}, nil
	}

	want := make(map[string]struct{}, len(candidate))
	for _, key := range candidate {
		want[key] = struct{}{}
	}
	have := make(map[string]struct{}, len(persisted))
	for _, key := range persisted {
		have[key] = struct{}{}
	}

	var res Result
	for key := range want {
		if _, ok := have[key]; !ok {
			res.Added = append(res.Added, key)
		}
	}
	for key := range have {
		if _, ok := want[key]; !ok {
			res.Removed = append(res.Removed, key)
		}
	}
	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	res.Changed = len(res.Added) > 0 || len(res.Removed) > 0
	return res, nil
}

// LoadKeys reads only the hash keys of a metadata file.
func LoadKeys(path string) ([]string, bool, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, services.Wrap(services.ErrTransient, "stage cache", "read metadata", path, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, true, services.Wrap(services.ErrIntegrity, "stage cache", "decode metadata", path, err)
	}
	if doc == nil {
		return nil, true, services.Wrap(services.ErrIntegrity, "stage cache", "decode metadata", path+" holds null", nil)
	}
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, true, nil
}
