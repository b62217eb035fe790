package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prodsum/internal/export"
	"prodsum/internal/frame"
	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
	"prodsum/internal/wells"
)

func column(t *testing.T, name string, kind frame.Kind, values ...any) frame.Column {
	t.Helper()
	c, err := frame.NewColumn(name, kind, values...)
	if err != nil {
		t.Fatalf("NewColumn: %v", err)
	}
	return c
}

func writeTables(t *testing.T, dir string, year int, oil, gas float64) stagemeta.TableRecord {
	t.Helper()
	prod, err := frame.New(
		column(t, "api_county_code", frame.KindString, "1", "2"),
		column(t, "api_seq_num", frame.KindString, "10", "20"),
		column(t, "sidetrack_num", frame.KindString, "0", "0"),
		column(t, "name", frame.KindString, "Op A", "Op B"),
		column(t, "operator_num", frame.KindInt, 1, 2),
		column(t, "Prod_days", frame.KindInt, 300, 0),
		column(t, "oil_prod", frame.KindFloat, oil, 0.0),
		column(t, "gas_prod", frame.KindFloat, gas, 0.0),
	)
	if err != nil {
		t.Fatalf("production frame: %v", err)
	}
	comp, err := frame.New(
		column(t, "API_num", frame.KindString, "05-001-00010-00"),
		column(t, "county", frame.KindString, "ADAMS"),
	)
	if err != nil {
		t.Fatalf("completions frame: %v", err)
	}
	rec := stagemeta.TableRecord{
		Year:            year,
		ProductionPath:  filepath.Join(dir, fmt.Sprintf("production_%d.parquet", year)),
		CompletionsPath: filepath.Join(dir, fmt.Sprintf("completions_%d.parquet", year)),
		Timestamp:       "2024-01-01T00:00:00Z",
	}
	if err := frame.WriteParquetFile(rec.ProductionPath, prod); err != nil {
		t.Fatalf("write production: %v", err)
	}
	if err := frame.WriteParquetFile(rec.CompletionsPath, comp); err != nil {
		t.Fatalf("write completions: %v", err)
	}
	return rec
}

func aggregator() wells.Aggregator {
	return wells.Aggregator{
		Columns: wells.Columns{
			ProductionKeep:      []string{"name", "operator_num", "API_num", "Prod_days", "oil_prod", "gas_prod"},
			ProductionFillZero:  []string{"oil_prod", "gas_prod"},
			CompletionsKeep:     []string{"API_num", "county"},
			CompletionsFillZero: []string{"county"},
		},
		RemoveInactive: true,
	}
}

func TestAggregateWritesOneExportPerYear(t *testing.T) {
	root := t.TempDir()
	parquetDir := filepath.Join(root, "parquet")
	exportDir := filepath.Join(root, "export")
	if err := os.MkdirAll(parquetDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	set := stagemeta.Set[stagemeta.TableRecord]{
		// GOR 0.3 sits on the heavy oil ceiling; 0.6 is light oil.
		strings.Repeat("1", 64): writeTables(t, parquetDir, 2021, 10, 3),
		strings.Repeat("2", 64): writeTables(t, parquetDir, 2022, 10, 6),
	}
	if err := stagemeta.Save(stagemeta.PathIn(parquetDir), set); err != nil {
		t.Fatalf("save: %v", err)
	}

	stage := New(parquetDir, exportDir, export.FormatCSV, aggregator(), logging.NewNop())
	out, err := pipeline.RunStage(context.Background(), pipeline.Env{Logger: logging.NewNop()}, stage.Definition())
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if len(out.Keys) != 2 {
		t.Fatalf("keys = %v", out.Keys)
	}

	data, err := os.ReadFile(filepath.Join(exportDir, "2021.csv"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one active well, got %q", data)
	}
	if !strings.HasPrefix(lines[0], "API_num,") || !strings.HasSuffix(lines[0], ",well_type,county") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "05-001-00010-00") || !strings.Contains(lines[1], ",0.3,Heavy Oil,") || !strings.HasSuffix(lines[1], "ADAMS") {
		t.Fatalf("unexpected row %q", lines[1])
	}
	data, err = os.ReadFile(filepath.Join(exportDir, "2022.csv"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), ",0.6,Light Oil,") {
		t.Fatalf("expected light oil well in 2022 export, got %q", data)
	}

	set2, _, err := stagemeta.Load[stagemeta.ArchiveRecord](stagemeta.PathIn(exportDir))
	if err != nil {
		t.Fatalf("load export metadata: %v", err)
	}
	if rec := set2[strings.Repeat("2", 64)]; rec.Path != filepath.Join(exportDir, "2022.csv") {
		t.Fatalf("unexpected export record %+v", rec)
	}
}

func TestAggregateWithoutTables(t *testing.T) {
	root := t.TempDir()
	stage := New(filepath.Join(root, "parquet"), filepath.Join(root, "export"), export.FormatCSV, aggregator(), nil)
	if _, err := stage.Candidate(context.Background()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
