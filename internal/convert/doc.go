// Package convert is the pipeline stage that exports the production and
// completions tables of each extracted Access database to Parquet.
package convert
