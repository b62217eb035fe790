package frame

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the logical type of a column. Every non-null value of a column holds
// the Go type named by its Kind: int64, float64, string or bool.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is a named, typed vector. A nil entry is null.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// NewColumn builds a column, coercing Go numeric types to the kind's canonical
// representation.
func NewColumn(name string, kind Kind, values ...any) (Column, error) {
	out := make([]any, len(values))
	for i, v := range values {
		norm, err := normalize(kind, v)
		if err != nil {
			return Column{}, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		out[i] = norm
	}
	return Column{Name: name, Kind: kind, Values: out}, nil
}

// Len is the number of rows.
func (c Column) Len() int { return len(c.Values) }

// IsNull reports whether row i is null.
func (c Column) IsNull(i int) bool { return c.Values[i] == nil }

// Text returns row i rendered as a string. ok is false for nulls.
func (c Column) Text(i int) (string, bool) {
	switch v := c.Values[i].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'f', 0, 64), true
		}
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return fmt.Sprint(v), true
	}
}

func normalize(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int32:
			return float64(n), nil
		}
	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%T is not a %s value", v, kind)
}
