package wells

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"prodsum/internal/frame"
)

// Engine is an in-memory DuckDB database holding one aggregation run's
// tables. Raw tables are read straight from the converted Parquet files.
type Engine struct {
	db *sql.DB
}

// OpenEngine starts an empty in-memory database with the well macros
// installed.
func OpenEngine(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// Views and tables live in one database; a single connection keeps the
	// statement order of a run.
	db.SetMaxOpenConns(1)
	e := &Engine{db: db}
	for _, stmt := range macros() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("install macro: %w", err)
		}
	}
	return e, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

func macros() []string {
	return []string{
		apiPartMacro,
		fmt.Sprintf(`CREATE OR REPLACE MACRO api_num(county, seq, sidetrack) AS
	'%s-' || api_part(county, 3) || '-' || api_part(seq, 5) || '-' || api_part(sidetrack, 2)`, StatePrefix),
		`CREATE OR REPLACE MACRO ieee_div(n, d) AS CASE
	WHEN n IS NULL OR d IS NULL THEN NULL
	WHEN isnan(CAST(n AS DOUBLE)) OR isnan(CAST(d AS DOUBLE)) THEN CAST('NaN' AS DOUBLE)
	WHEN d = 0 AND n > 0 THEN CAST('Infinity' AS DOUBLE)
	WHEN d = 0 AND n < 0 THEN CAST('-Infinity' AS DOUBLE)
	WHEN d = 0 THEN CAST('NaN' AS DOUBLE)
	ELSE CAST(n AS DOUBLE) / CAST(d AS DOUBLE)
END`,
		classifyMacro(),
		hasProductionDaysMacro,
	}
}

// ColumnType is one column of a table or Parquet file as DuckDB sees it.
type ColumnType struct {
	Name string
	Type string
}

// Numeric reports whether the column supports sum and arithmetic.
func (c ColumnType) Numeric() bool {
	switch t := strings.ToUpper(c.Type); {
	case strings.HasSuffix(t, "INT"), strings.HasSuffix(t, "INTEGER"):
		return true
	case t == "DOUBLE", t == "FLOAT", t == "REAL", strings.HasPrefix(t, "DECIMAL"):
		return true
	default:
		return false
	}
}

// Integer reports whether the column holds whole numbers.
func (c ColumnType) Integer() bool {
	t := strings.ToUpper(c.Type)
	return strings.HasSuffix(t, "INT") || strings.HasSuffix(t, "INTEGER")
}

// zero is the SQL literal that fills nulls of this column's type.
func (c ColumnType) zero() string {
	switch t := strings.ToUpper(c.Type); {
	case c.Numeric():
		return "CAST(0 AS " + t + ")"
	case t == "BOOLEAN":
		return "false"
	default:
		return "'0'"
	}
}

// Schema lists the columns a relation exposes, in order.
func (e *Engine) Schema(ctx context.Context, relation string) ([]ColumnType, error) {
	rows, err := e.db.QueryContext(ctx, "SELECT * FROM "+relation+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", relation, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", relation, err)
	}
	out := make([]ColumnType, len(types))
	for i, ct := range types {
		out[i] = ColumnType{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}
	return out, rows.Err()
}

func (e *Engine) exec(ctx context.Context, query string) error {
	_, err := e.db.ExecContext(ctx, query)
	return err
}

// Frame runs a query and materializes its result.
func (e *Engine) Frame(ctx context.Context, query string, args ...any) (*frame.Frame, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return frame.FromRows(rows)
}

// parquetSource reads a Parquet file with its row position exposed as
// file_row_number, which keeps first-appearance order stable.
func parquetSource(path string) string {
	return "read_parquet(" + quoteLiteral(path) + ", file_row_number = true)"
}

const rowNumberColumn = "file_row_number"

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
