package frame

import (
	"errors"
	"fmt"
)

// ErrShape is returned for mismatched lengths or duplicate names.
var ErrShape = errors.New("frame shape mismatch")

// Frame is an immutable, column-oriented table read from or written to
// Arrow, Parquet and SQL result sets.
type Frame struct {
	columns []Column
	index   map[string]int
	rows    int
}

// New assembles a frame. All columns must share one length and have unique names.
func New(columns ...Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if _, dup := f.index[col.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrShape, col.Name)
		}
		if i == 0 {
			f.rows = col.Len()
		} else if col.Len() != f.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrShape, col.Name, col.Len(), f.rows)
		}
		f.index[col.Name] = i
		f.columns = append(f.columns, col)
	}
	return f, nil
}

// Len is the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width is the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Names lists column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, col := range f.columns {
		names[i] = col.Name
	}
	return names
}

// Columns returns the columns in order. Callers must not modify the values.
func (f *Frame) Columns() []Column { return f.columns }

// Column looks up a column by name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.columns[i], true
}

// Value returns the cell at (name, row), or nil when the column is absent.
func (f *Frame) Value(name string, row int) any {
	col, ok := f.Column(name)
	if !ok {
		return nil
	}
	return col.Values[row]
}
