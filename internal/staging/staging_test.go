package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"prodsum/internal/logging"
)

func TestPrepareClearsLeftovers(t *testing.T) {
	dir := Dir(t.TempDir())
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "partial.zip"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Prepare(dir, logging.NewNop()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty staging dir, got %d entries", len(entries))
	}
}

func TestPrepareRejectsBlankPath(t *testing.T) {
	if err := Prepare("  ", nil); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestPromoteMovesMatchingFiles(t *testing.T) {
	root := t.TempDir()
	from := Dir(root)
	for _, name := range []string{"b.zip", "a.ZIP", "notes.txt"} {
		if err := os.MkdirAll(from, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(from, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "b.zip"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := Promote(context.Background(), from, root, ".zip", logging.NewNop())
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if len(result.Moved) != 2 || result.Moved[0] != filepath.Join(root, "a.ZIP") {
		t.Fatalf("unexpected moved list: %v", result.Moved)
	}
	data, err := os.ReadFile(filepath.Join(root, "b.zip"))
	if err != nil || string(data) != "b.zip" {
		t.Fatalf("expected promoted file to replace old copy, got %q err=%v", data, err)
	}
	if _, err := os.Stat(filepath.Join(from, "notes.txt")); err != nil {
		t.Fatalf("non-matching file should stay staged: %v", err)
	}
}

func TestPromoteMissingSourceIsNoop(t *testing.T) {
	result, err := Promote(context.Background(), filepath.Join(t.TempDir(), "absent"), t.TempDir(), "zip", nil)
	if err != nil || len(result.Moved) != 0 {
		t.Fatalf("expected no-op, got %+v err=%v", result, err)
	}
}

func TestDiscard(t *testing.T) {
	dir := Dir(t.TempDir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	result := Discard(dir, logging.NewNop())
	if len(result.Removed) != 1 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected dir removed, stat err=%v", err)
	}
	if again := Discard(dir, nil); len(again.Removed) != 0 {
		t.Fatalf("second discard should be a no-op: %+v", again)
	}
}
