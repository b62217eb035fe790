package frame

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// sink hides any Close method of the destination: closing the pqarrow
// writer closes its sink, and the caller owns w.
type sink struct{ io.Writer }

// WriteParquet encodes the frame as a single-row-group Parquet file. w is left
// open.
func WriteParquet(w io.Writer, f *Frame) error {
	rec := f.Record(memory.NewGoAllocator())
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Zstd))
	writer, err := pqarrow.NewFileWriter(rec.Schema(), sink{w}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// WriteParquetFile writes the frame to path through a temporary file in the
// same directory, so readers never see a partial file.
func WriteParquetFile(path string, f *Frame) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.parquet")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := WriteParquet(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadParquetFile loads a Parquet file into a frame.
func ReadParquetFile(ctx context.Context, path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	tbl, err := pqarrow.ReadTable(ctx, file, parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", filepath.Base(path), err)
	}
	defer tbl.Release()
	return FromTable(tbl)
}
