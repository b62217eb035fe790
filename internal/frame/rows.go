package frame

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// FromRows drains a SQL result set into a frame. Column kinds come from the
// driver's type names; integer types narrower than 64 bits widen to int64 and
// decimals become float64. rows is not closed.
func FromRows(rows *sql.Rows) (*Frame, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), Kind: sqlKind(ct.DatabaseTypeName())}
	}

	cells := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, cell := range cells {
			v, err := sqlValue(cols[i].Kind, cell)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", cols[i].Name, err)
			}
			cols[i].Values = append(cols[i].Values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return New(cols...)
}

func sqlKind(typeName string) Kind {
	name := strings.ToUpper(typeName)
	switch {
	case name == "BOOLEAN" || name == "BOOL":
		return KindBool
	case name == "DOUBLE" || name == "FLOAT" || name == "REAL" || strings.HasPrefix(name, "DECIMAL"):
		return KindFloat
	case strings.HasSuffix(name, "INT") || strings.HasSuffix(name, "INTEGER"):
		// TINYINT, SMALLINT, INTEGER, BIGINT and their unsigned forms.
		if name == "HUGEINT" || name == "UHUGEINT" || name == "UBIGINT" {
			return KindFloat
		}
		return KindInt
	default:
		return KindString
	}
}

// sqlValue maps a scanned cell onto the canonical Go type for kind.
func sqlValue(kind Kind, cell any) (any, error) {
	switch v := cell.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly), nil
		}
		return v.Format(time.DateTime), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return f, nil
	case interface{ Float64() float64 }:
		return v.Float64(), nil
	case uint64:
		return float64(v), nil
	}
	if kind == KindString {
		switch v := cell.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
	return normalize(kind, cell)
}
