package frame

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func mustColumn(t *testing.T, name string, kind Kind, values ...any) Column {
	t.Helper()
	col, err := NewColumn(name, kind, values...)
	if err != nil {
		t.Fatalf("NewColumn(%s): %v", name, err)
	}
	return col
}

func mustFrame(t *testing.T, cols ...Column) *Frame {
	t.Helper()
	f, err := New(cols...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestNewRejectsRaggedAndDuplicateColumns(t *testing.T) {
	a := mustColumn(t, "a", KindInt, 1, 2)
	b := mustColumn(t, "b", KindInt, 1)
	if _, err := New(a, b); !errors.Is(err, ErrShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
	if _, err := New(a, a); !errors.Is(err, ErrShape) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := NewColumn("x", KindInt, "nope"); err == nil {
		t.Fatal("expected kind error")
	}
}

func TestParquetRoundTripKeepsKindsAndNulls(t *testing.T) {
	f := mustFrame(t,
		mustColumn(t, "API_num", KindString, "05-001-00001-00", nil),
		mustColumn(t, "Prod_days", KindInt, 31, nil),
		mustColumn(t, "GOR", KindFloat, math.Inf(1), 0.25),
		mustColumn(t, "active", KindBool, true, nil),
	)
	path := filepath.Join(t.TempDir(), "t.parquet")
	if err := WriteParquetFile(path, f); err != nil {
		t.Fatalf("WriteParquetFile: %v", err)
	}
	got, err := ReadParquetFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadParquetFile: %v", err)
	}
	if !reflect.DeepEqual(got.Names(), f.Names()) {
		t.Fatalf("Names = %v", got.Names())
	}
	for _, col := range f.Columns() {
		back, _ := got.Column(col.Name)
		if back.Kind != col.Kind {
			t.Fatalf("%s kind = %s, want %s", col.Name, back.Kind, col.Kind)
		}
		if !reflect.DeepEqual(back.Values, col.Values) {
			t.Fatalf("%s values = %v, want %v", col.Name, back.Values, col.Values)
		}
	}
}

func TestColumnText(t *testing.T) {
	col := mustColumn(t, "c", KindFloat, 12.0, 1.5, nil)
	if s, _ := col.Text(0); s != "12" {
		t.Fatalf("Text(0) = %q", s)
	}
	if s, _ := col.Text(1); s != "1.5" {
		t.Fatalf("Text(1) = %q", s)
	}
	if _, ok := col.Text(2); ok {
		t.Fatal("null should not render")
	}
}

func TestWriteParquetFileLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2021.parquet")
	f := mustFrame(t, mustColumn(t, "API_num", KindString, "05-001-00001-00"))
	for i := 0; i < 2; i++ {
		if err := WriteParquetFile(path, f); err != nil {
			t.Fatalf("WriteParquetFile #%d: %v", i+1, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "2021.parquet" {
		t.Fatalf("unexpected directory contents %v", entries)
	}
}

func TestWriteParquetLeavesWriterOpen(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "t.parquet"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f := mustFrame(t, mustColumn(t, "Prod_days", KindInt, 31))
	if err := WriteParquet(file, f); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("caller Close after WriteParquet: %v", err)
	}
}
