package accessdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"prodsum/internal/frame"
	"prodsum/internal/services"
)

// Driver selects the Microsoft Access ODBC driver build.
type Driver string

const (
	DriverX64 Driver = "x64"
	DriverX32 Driver = "x32"
)

// ParseDriver accepts the configuration spelling of a driver.
func ParseDriver(value string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(value))) {
	case DriverX64:
		return DriverX64, nil
	case DriverX32:
		return DriverX32, nil
	default:
		return "", fmt.Errorf("unknown access driver %q (want x64 or x32)", value)
	}
}

// ODBCName is the driver name registered by the Access runtime.
func (d Driver) ODBCName() string {
	switch d {
	case DriverX64:
		return "{Microsoft Access Driver (*.mdb, *.accdb)}"
	case DriverX32:
		return "{Microsoft Access Driver (*.mdb)}"
	default:
		panic(fmt.Sprintf("accessdb: unhandled driver %q", string(d)))
	}
}

// ConnectionString opens the database at path.
func (d Driver) ConnectionString(path string) string {
	return "Driver=" + d.ODBCName() + ";DBQ=" + path + ";"
}

// Table is one of the two tables shipped in every annual archive.
type Table string

const (
	TableProduction  Table = "Colorado Annual Production"
	TableCompletions Table = "Colorado Well Completions"
)

// Tables lists the tables converted per database.
func Tables() []Table { return []Table{TableProduction, TableCompletions} }

// ParquetName is the converted file name for a report year.
func (t Table) ParquetName(year int) string {
	return fmt.Sprintf("%s_%d.parquet", string(t), year)
}

// Query selects every row of the table.
func (t Table) Query() string {
	return `SELECT * FROM "` + strings.ReplaceAll(string(t), `"`, `""`) + `"`
}

// Source reads whole tables out of an Access database.
type Source interface {
	ReadTable(ctx context.Context, dbPath string, table Table) (*frame.Frame, error)
}

// SQLSource reads tables through a database/sql driver. The odbc driver must
// be registered by the binary.
type SQLSource struct {
	DriverName string
	Driver     Driver
	open       func(driverName, dsn string) (*sql.DB, error)
}

// NewSQLSource returns a source using the "odbc" database/sql driver.
func NewSQLSource(driver Driver) *SQLSource {
	return &SQLSource{DriverName: "odbc", Driver: driver, open: sql.Open}
}

// ReadTable loads table from the database at dbPath.
func (s *SQLSource) ReadTable(ctx context.Context, dbPath string, table Table) (*frame.Frame, error) {
	open := s.open
	if open == nil {
		open = sql.Open
	}
	db, err := open(s.DriverName, s.Driver.ConnectionString(dbPath))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "convert", "open database", dbPath, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, table.Query())
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "convert", "query "+string(table), dbPath, err)
	}
	defer rows.Close()

	f, err := ScanRows(rows)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "convert", "read "+string(table), dbPath, err)
	}
	return f, nil
}

// Rows is the subset of *sql.Rows ScanRows needs.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanRows drains rows into a frame. Column kinds are inferred from the first
// non-null value: integers, floats, booleans and text map directly, byte
// slices become text and timestamps become ISO-8601 strings. Columns that are
// entirely null are text.
func ScanRows(rows Rows) (*frame.Frame, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	raw := make([][]any, len(names))
	cells := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range cells {
		ptrs[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, cell := range cells {
			raw[i] = append(raw[i], canonical(cell))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]frame.Column, len(names))
	for i, name := range names {
		kind := inferKind(raw[i])
		values, err := coerce(raw[i], kind)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols[i] = frame.Column{Name: name, Kind: kind, Values: values}
	}
	return frame.New(cols...)
}

func canonical(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format("2006-01-02T15:04:05")
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func inferKind(values []any) frame.Kind {
	kind := frame.KindString
	found := false
	for _, v := range values {
		var k frame.Kind
		switch v.(type) {
		case nil:
			continue
		case int64:
			k = frame.KindInt
		case float64:
			k = frame.KindFloat
		case bool:
			k = frame.KindBool
		default:
			return frame.KindString
		}
		if !found {
			kind, found = k, true
			continue
		}
		if k != kind {
			if (k == frame.KindFloat && kind == frame.KindInt) || (k == frame.KindInt && kind == frame.KindFloat) {
				kind = frame.KindFloat
				continue
			}
			return frame.KindString
		}
	}
	return kind
}

var errMixed = errors.New("mixed value types")

func coerce(values []any, kind frame.Kind) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		switch kind {
		case frame.KindFloat:
			switch n := v.(type) {
			case int64:
				out[i] = float64(n)
			case float64:
				out[i] = n
			default:
				return nil, errMixed
			}
		case frame.KindString:
			if s, ok := v.(string); ok {
				out[i] = s
			} else {
				out[i] = fmt.Sprint(v)
			}
		default:
			out[i] = v
		}
	}
	return out, nil
}
