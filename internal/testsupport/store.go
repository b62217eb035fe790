package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"prodsum/internal/accessdb"
	"prodsum/internal/config"
	"prodsum/internal/frame"
	"prodsum/internal/logging"
	"prodsum/internal/runlog"
)

// MustOpenJournal opens the run journal for cfg and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(cfg.JournalPath(), logging.NewNop())
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// TableSource is an accessdb.Source serving fixed frames keyed by database
// file stem and table. It records every read.
type TableSource struct {
	mu     sync.Mutex
	tables map[string]*frame.Frame
	reads  []string
}

var _ accessdb.Source = (*TableSource)(nil)

// NewTableSource returns an empty source.
func NewTableSource() *TableSource {
	return &TableSource{tables: map[string]*frame.Frame{}}
}

// Put registers the frame returned for a database stem and table.
func (s *TableSource) Put(stem string, table accessdb.Table, f *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[stem+"|"+string(table)] = f
}

// Reads lists "stem|table" for each ReadTable call.
func (s *TableSource) Reads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reads...)
}

func (s *TableSource) ReadTable(_ context.Context, dbPath string, table accessdb.Table) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stem := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	key := stem + "|" + string(table)
	s.reads = append(s.reads, key)
	f, ok := s.tables[key]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", key)
	}
	return f, nil
}
