package accessdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"prodsum/internal/frame"
	"prodsum/internal/services"
)

type fakeRows struct {
	names []string
	data  [][]any
	pos   int
	err   error
}

func (r *fakeRows) Columns() ([]string, error) { return r.names, nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func TestDriverStrings(t *testing.T) {
	if got := DriverX64.ConnectionString(`C:\db\co.mdb`); got != `Driver={Microsoft Access Driver (*.mdb, *.accdb)};DBQ=C:\db\co.mdb;` {
		t.Fatalf("x64 connection string = %q", got)
	}
	if got := DriverX32.ODBCName(); got != "{Microsoft Access Driver (*.mdb)}" {
		t.Fatalf("x32 name = %q", got)
	}
	if _, err := ParseDriver("arm"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if d, err := ParseDriver(" X32 "); err != nil || d != DriverX32 {
		t.Fatalf("ParseDriver = %q, %v", d, err)
	}
}

func TestTableNames(t *testing.T) {
	if got := TableProduction.ParquetName(2021); got != "Colorado Annual Production_2021.parquet" {
		t.Fatalf("ParquetName = %q", got)
	}
	if got := TableCompletions.Query(); got != `SELECT * FROM "Colorado Well Completions"` {
		t.Fatalf("Query = %q", got)
	}
}

func TestScanRowsInfersKinds(t *testing.T) {
	when := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	rows := &fakeRows{
		names: []string{"api_county_code", "Prod_days", "oil_prod", "flag", "first_prod_date", "empty"},
		data: [][]any{
			{[]byte("001"), int32(31), int64(5), true, when, nil},
			{"123", nil, 2.5, false, nil, nil},
		},
	}
	f, err := ScanRows(rows)
	if err != nil {
		t.Fatalf("ScanRows: %v", err)
	}
	kinds := map[string]frame.Kind{
		"api_county_code": frame.KindString,
		"Prod_days":       frame.KindInt,
		"oil_prod":        frame.KindFloat,
		"flag":            frame.KindBool,
		"first_prod_date": frame.KindString,
		"empty":           frame.KindString,
	}
	for name, want := range kinds {
		col, ok := f.Column(name)
		if !ok || col.Kind != want {
			t.Fatalf("%s kind = %v, want %v", name, col.Kind, want)
		}
	}
	if f.Value("api_county_code", 0) != "001" {
		t.Fatalf("bytes not converted: %v", f.Value("api_county_code", 0))
	}
	if f.Value("oil_prod", 0) != 5.0 {
		t.Fatalf("int not widened: %#v", f.Value("oil_prod", 0))
	}
	if f.Value("first_prod_date", 0) != "2021-03-04" {
		t.Fatalf("date = %v", f.Value("first_prod_date", 0))
	}
	if f.Value("Prod_days", 1) != nil {
		t.Fatal("null lost")
	}
}

func TestScanRowsMixedTypesFallBackToText(t *testing.T) {
	rows := &fakeRows{names: []string{"c"}, data: [][]any{{int64(1)}, {"x"}}}
	f, err := ScanRows(rows)
	if err != nil {
		t.Fatalf("ScanRows: %v", err)
	}
	col, _ := f.Column("c")
	if col.Kind != frame.KindString || col.Values[0] != "1" {
		t.Fatalf("unexpected column %+v", col)
	}
}

func TestScanRowsPropagatesIterationError(t *testing.T) {
	boom := errors.New("cursor lost")
	if _, err := ScanRows(&fakeRows{names: []string{"a"}, err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected iteration error, got %v", err)
	}
}

func TestReadTableOpenFailureIsExternalToolError(t *testing.T) {
	src := NewSQLSource(DriverX64)
	src.open = func(string, string) (*sql.DB, error) { return nil, errors.New("driver not registered") }
	_, err := src.ReadTable(context.Background(), "/tmp/co.mdb", TableProduction)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
