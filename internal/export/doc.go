// Package export writes aggregated well tables as CSV or Parquet.
package export
