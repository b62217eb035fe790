package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	accessDrivers   = []string{"x64", "x32"}
	exportFormats   = []string{"csv", "parquet"}
	hashAlgorithms  = []string{"sha256", "blake3"}
	logLevels       = []string{"debug", "info", "warning", "error", "critical"}
	logFormats      = []string{"console", "json"}
	requiredColumns = []string{"name", "operator_num", "API_num", "Prod_days", "oil_prod", "gas_prod"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateEnums(); err != nil {
		return err
	}
	if err := c.validatePipeline(time.Now().Year()); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if c.Backup.KeepSnapshots < 0 {
		return errors.New("backup.keep_snapshots must be zero (keep all) or positive")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be a full http or https topic URL")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if !strings.Contains(c.Fetch.FilenameTemplate, YearPlaceholder) {
		return fmt.Errorf("fetch.filename_template must contain %q", YearPlaceholder)
	}
	if !strings.HasPrefix(c.Fetch.BaseURL, "http://") && !strings.HasPrefix(c.Fetch.BaseURL, "https://") {
		return errors.New("fetch.base_url must be an http or https URL")
	}
	for year, template := range c.Fetch.YearOverrides {
		if _, err := strconv.Atoi(year); err != nil {
			return fmt.Errorf("fetch.year_overrides key %q must be a year", year)
		}
		if !strings.Contains(template, YearPlaceholder) {
			return fmt.Errorf("fetch.year_overrides[%s] must contain %q", year, YearPlaceholder)
		}
	}
	return nil
}

func (c *Config) validateEnums() error {
	if !slices.Contains(accessDrivers, c.Convert.AccessDriver) {
		return fmt.Errorf("convert.access_driver must be one of %s", strings.Join(accessDrivers, ", "))
	}
	if !slices.Contains(exportFormats, c.Export.Format) {
		return fmt.Errorf("export.format must be one of %s", strings.Join(exportFormats, ", "))
	}
	if !slices.Contains(hashAlgorithms, c.Pipeline.HashAlgorithm) {
		return fmt.Errorf("pipeline.hash_algorithm must be one of %s", strings.Join(hashAlgorithms, ", "))
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %s", strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of %s", strings.Join(logFormats, ", "))
	}
	return nil
}

func (c *Config) validatePipeline(currentYear int) error {
	if len(c.Pipeline.Years) == 0 {
		return errors.New("pipeline.years must list at least one year")
	}
	return ValidateYears(c.Pipeline.Years, currentYear)
}

// ValidateYears rejects report years outside FirstReportYear..currentYear.
func ValidateYears(years []int, currentYear int) error {
	for _, year := range years {
		if year < FirstReportYear || year > currentYear {
			return fmt.Errorf("pipeline.years: %d is outside %d..%d", year, FirstReportYear, currentYear)
		}
	}
	return nil
}

func (c *Config) validateTransform() error {
	t := c.Transform
	if len(t.ProductionColumnsToKeep) == 0 {
		return errors.New("transform.production_columns_to_keep must not be empty")
	}
	if len(t.CompletionsColumnsToKeep) == 0 {
		return errors.New("transform.completions_columns_to_keep must not be empty")
	}
	for _, column := range requiredColumns {
		if !slices.Contains(t.ProductionColumnsToKeep, column) {
			return fmt.Errorf("transform.production_columns_to_keep must include %q", column)
		}
	}
	if !slices.Contains(t.CompletionsColumnsToKeep, "API_num") {
		return errors.New(`transform.completions_columns_to_keep must include "API_num"`)
	}
	for _, column := range t.ProductionColumnsFillZero {
		if !slices.Contains(t.ProductionColumnsToKeep, column) {
			return fmt.Errorf("transform.production_columns_to_fill_null_with_zero: %q is not a kept column", column)
		}
		switch column {
		case "name", "operator_num", "API_num", "Prod_days":
			return fmt.Errorf("transform.production_columns_to_fill_null_with_zero: %q is aggregated separately", column)
		}
	}
	for _, column := range []string{"oil_prod", "gas_prod"} {
		if !slices.Contains(t.ProductionColumnsFillZero, column) {
			return fmt.Errorf("transform.production_columns_to_fill_null_with_zero must include %q", column)
		}
	}
	for _, column := range t.CompletionsColumnsFillZero {
		if !slices.Contains(t.CompletionsColumnsToKeep, column) {
			return fmt.Errorf("transform.completions_columns_to_fill_null_with_zero: %q is not a kept column", column)
		}
	}
	return nil
}
