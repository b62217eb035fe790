package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeConvert()
	c.normalizeTransform()
	c.normalizeExport()
	c.normalizePipeline()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		key    string
		target *string
		leaf   string
	}{
		{"paths.zip_dir", &c.Paths.ZipDir, "zip"},
		{"paths.access_db_dir", &c.Paths.AccessDBDir, "access-db"},
		{"paths.parquet_dir", &c.Paths.ParquetDir, "parquet"},
		{"paths.export_dir", &c.Paths.ExportDir, "export"},
		{"paths.log_dir", &c.Paths.LogDir, "logs"},
		{"paths.state_dir", &c.Paths.StateDir, "state"},
	}
	for _, entry := range derived {
		value := strings.TrimSpace(*entry.target)
		if value == "" {
			value = filepath.Join(c.Paths.DataDir, entry.leaf)
		}
		if *entry.target, err = expandPath(value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.BaseURL = strings.TrimSpace(c.Fetch.BaseURL)
	if c.Fetch.BaseURL == "" {
		c.Fetch.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(c.Fetch.FilenameTemplate) == "" {
		c.Fetch.FilenameTemplate = defaultFilenameTemplate
	}
	if c.Fetch.YearOverrides == nil {
		c.Fetch.YearOverrides = map[string]string{}
	}
	trimmed := make(map[string]string, len(c.Fetch.YearOverrides))
	for year, template := range c.Fetch.YearOverrides {
		trimmed[strings.TrimSpace(year)] = template
	}
	c.Fetch.YearOverrides = trimmed
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeout
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeConvert() {
	c.Convert.AccessDriver = strings.ToLower(strings.TrimSpace(c.Convert.AccessDriver))
	if c.Convert.AccessDriver == "" {
		c.Convert.AccessDriver = defaultAccessDriver
	}
}

func (c *Config) normalizeTransform() {
	c.Transform.ProductionColumnsToKeep = trimColumns(c.Transform.ProductionColumnsToKeep)
	c.Transform.ProductionColumnsFillZero = trimColumns(c.Transform.ProductionColumnsFillZero)
	c.Transform.CompletionsColumnsToKeep = trimColumns(c.Transform.CompletionsColumnsToKeep)
	c.Transform.CompletionsColumnsFillZero = trimColumns(c.Transform.CompletionsColumnsFillZero)
}

func trimColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		if column = strings.TrimSpace(column); column != "" {
			out = append(out, column)
		}
	}
	return out
}

func (c *Config) normalizeExport() {
	c.Export.Format = strings.ToLower(strings.TrimSpace(c.Export.Format))
	if c.Export.Format == "" {
		c.Export.Format = defaultExportFormat
	}
}

func (c *Config) normalizePipeline() {
	if len(c.Pipeline.Years) == 0 {
		c.Pipeline.Years = DefaultYears()
	}
	seen := make(map[int]struct{}, len(c.Pipeline.Years))
	years := make([]int, 0, len(c.Pipeline.Years))
	for _, year := range c.Pipeline.Years {
		if _, ok := seen[year]; ok {
			continue
		}
		seen[year] = struct{}{}
		years = append(years, year)
	}
	sort.Ints(years)
	c.Pipeline.Years = years
	c.Pipeline.HashAlgorithm = strings.ToLower(strings.TrimSpace(c.Pipeline.HashAlgorithm))
	if c.Pipeline.HashAlgorithm == "" {
		c.Pipeline.HashAlgorithm = defaultHashAlgorithm
	}
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	c.Metrics.TextfilePath = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	if level == "warn" {
		level = "warning"
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}
