package frame

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func arrowType(kind Kind) arrow.DataType {
	switch kind {
	case KindInt:
		return arrow.PrimitiveTypes.Int64
	case KindFloat:
		return arrow.PrimitiveTypes.Float64
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema describes the frame as nullable Arrow fields.
func (f *Frame) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(f.columns))
	for i, col := range f.columns {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowType(col.Kind), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// Record copies the frame into a single Arrow record. The caller releases it.
func (f *Frame) Record(mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	arrays := make([]arrow.Array, len(f.columns))
	for i, col := range f.columns {
		arrays[i] = buildArray(mem, col)
	}
	rec := array.NewRecord(f.Schema(), arrays, int64(f.rows))
	for _, arr := range arrays {
		arr.Release()
	}
	return rec
}

func buildArray(mem memory.Allocator, col Column) arrow.Array {
	switch col.Kind {
	case KindInt:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range col.Values {
			if n, ok := v.(int64); ok {
				b.Append(n)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	case KindFloat:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for _, v := range col.Values {
			if n, ok := v.(float64); ok {
				b.Append(n)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	case KindBool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range col.Values {
			if x, ok := v.(bool); ok {
				b.Append(x)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for i := range col.Values {
			if s, ok := col.Text(i); ok {
				b.Append(s)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	}
}

// FromTable copies an Arrow table into a frame. Integer types widen to int64,
// floating types to float64; dates, timestamps and other types are rendered as
// strings.
func FromTable(tbl arrow.Table) (*Frame, error) {
	schema := tbl.Schema()
	cols := make([]Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		field := schema.Field(i)
		col := Column{Name: field.Name, Kind: kindOf(field.Type), Values: make([]any, 0, tbl.NumRows())}
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			if err := appendArray(&col, chunk); err != nil {
				return nil, fmt.Errorf("column %s: %w", field.Name, err)
			}
		}
		cols = append(cols, col)
	}
	return New(cols...)
}

func kindOf(dt arrow.DataType) Kind {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return KindInt
	case arrow.FLOAT32, arrow.FLOAT64:
		return KindFloat
	case arrow.BOOL:
		return KindBool
	default:
		return KindString
	}
}

func appendArray(col *Column, arr arrow.Array) error {
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			col.Values = append(col.Values, nil)
			continue
		}
		var v any
		switch a := arr.(type) {
		case *array.Int8:
			v = int64(a.Value(i))
		case *array.Int16:
			v = int64(a.Value(i))
		case *array.Int32:
			v = int64(a.Value(i))
		case *array.Int64:
			v = a.Value(i)
		case *array.Uint8:
			v = int64(a.Value(i))
		case *array.Uint16:
			v = int64(a.Value(i))
		case *array.Uint32:
			v = int64(a.Value(i))
		case *array.Float32:
			v = float64(a.Value(i))
		case *array.Float64:
			v = a.Value(i)
		case *array.Boolean:
			v = a.Value(i)
		case *array.String:
			v = a.Value(i)
		case *array.LargeString:
			v = a.Value(i)
		default:
			if col.Kind != KindString {
				return fmt.Errorf("unsupported arrow type %s", arr.DataType())
			}
			v = arr.ValueStr(i)
		}
		col.Values = append(col.Values, v)
	}
	return nil
}
