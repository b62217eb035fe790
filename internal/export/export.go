package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"prodsum/internal/frame"
)

// Format is an export file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts the configuration spelling of a format.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// Extension is the file extension without a dot.
func (f Format) Extension() string { return string(f) }

// FileName is the export name for a report year.
func (f Format) FileName(year int) string {
	return fmt.Sprintf("%d.%s", year, f.Extension())
}

// Write encodes the frame to w.
func (f Format) Write(w io.Writer, data *frame.Frame) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, data)
	case FormatParquet:
		return frame.WriteParquet(w, data)
	default:
		return fmt.Errorf("unsupported export format %q", string(f))
	}
}

// WriteFile writes the frame to path via a temporary file in the same directory.
func (f Format) WriteFile(path string, data *frame.Frame) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*."+f.Extension())
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// WriteCSV writes a header row and one line per row. Nulls are empty fields.
func WriteCSV(w io.Writer, data *frame.Frame) error {
	rec := data.Record(memory.NewGoAllocator())
	defer rec.Release()

	writer := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
	if err := writer.Write(rec); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
