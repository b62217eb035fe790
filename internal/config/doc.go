// Package config loads, normalizes, and validates prodsum configuration data.
//
// It supplies repository defaults (the ECMC download location, report years and
// the column lists used by the well aggregation), expands user paths, reads TOML
// files, and merges the optional url/transform YAML overlays. Stage directories
// default to subdirectories of paths.data_dir.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical enum values, and clear validation errors.
package config
