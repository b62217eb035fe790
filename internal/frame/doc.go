// Package frame is the columnar table passed between pipeline stages. It
// converts to and from Arrow records, Parquet files and SQL result sets.
package frame
