package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the data tree layout.
type Paths struct {
	DataDir     string `toml:"data_dir" yaml:"data_dir"`
	ZipDir      string `toml:"zip_dir" yaml:"zip_dir"`
	AccessDBDir string `toml:"access_db_dir" yaml:"access_db_dir"`
	ParquetDir  string `toml:"parquet_dir" yaml:"parquet_dir"`
	ExportDir   string `toml:"export_dir" yaml:"export_dir"`
	LogDir      string `toml:"log_dir" yaml:"log_dir"`
	StateDir    string `toml:"state_dir" yaml:"state_dir"`
}

// Fetch contains the archive download settings.
type Fetch struct {
	BaseURL          string            `toml:"base_url" yaml:"base_url"`
	FilenameTemplate string            `toml:"filename_template" yaml:"filename_template"`
	YearOverrides    map[string]string `toml:"year_overrides" yaml:"year_overrides"`
	TimeoutSeconds   int               `toml:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent        string            `toml:"user_agent" yaml:"user_agent"`
}

// Convert contains the Access database export settings.
type Convert struct {
	AccessDriver string `toml:"access_driver" yaml:"access_driver"`
}

// Transform contains the per-well aggregation settings.
type Transform struct {
	RemoveCO2Wells             bool     `toml:"remove_co2_wells" yaml:"remove_CO2_wells"`
	ProductionColumnsToKeep    []string `toml:"production_columns_to_keep" yaml:"production_columns_to_keep"`
	ProductionColumnsFillZero  []string `toml:"production_columns_to_fill_null_with_zero" yaml:"production_columns_to_fill_null_with_zero"`
	CompletionsColumnsToKeep   []string `toml:"completions_columns_to_keep" yaml:"completions_columns_to_keep"`
	CompletionsColumnsFillZero []string `toml:"completions_columns_to_fill_null_with_zero" yaml:"completions_columns_to_fill_null_with_zero"`
}

// Export contains the final artifact format.
type Export struct {
	Format string `toml:"format" yaml:"format"`
}

// Pipeline contains run-wide settings.
type Pipeline struct {
	Years         []int  `toml:"years" yaml:"years"`
	HashAlgorithm string `toml:"hash_algorithm" yaml:"hash_algorithm"`
}

// Backup contains snapshot retention.
type Backup struct {
	KeepSnapshots int `toml:"keep_snapshots" yaml:"keep_snapshots"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" yaml:"format"`
	Level         string `toml:"level" yaml:"level"`
	RetentionDays int    `toml:"retention_days" yaml:"retention_days"`
}

// Metrics contains the Prometheus textfile export location. Empty disables it.
type Metrics struct {
	TextfilePath string `toml:"textfile_path" yaml:"textfile_path"`
}

// Notifications configures ntfy alerts at the end of a run. An empty topic
// disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic" yaml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	NotifySuccess         bool   `toml:"notify_success" yaml:"notify_success"`
}

// Config encapsulates all configuration values for prodsum.
//
// Configuration sections:
//   - Paths: data tree (zip, access_db, parquet, export), logs and journal state
//   - Fetch: archive URL template, per-year overrides and HTTP settings
//   - Convert: Access ODBC driver variant
//   - Transform: column keep/fill lists and the inactive well filter
//   - Export: output format
//   - Pipeline: report years and content hash algorithm
//   - Backup: snapshot retention
//   - Logging: log format, level, and retention
//   - Metrics: optional Prometheus textfile
//   - Notifications: optional ntfy alerts
type Config struct {
	Paths     Paths     `toml:"paths" yaml:"paths"`
	Fetch     Fetch     `toml:"fetch" yaml:"url_config"`
	Convert   Convert   `toml:"convert" yaml:"convert"`
	Transform Transform `toml:"transform" yaml:"transform_config"`
	Export    Export    `toml:"export" yaml:"export"`
	Pipeline  Pipeline  `toml:"pipeline" yaml:"pipeline"`
	Backup    Backup    `toml:"backup" yaml:"backup"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Metrics   Metrics   `toml:"metrics" yaml:"metrics"`

	Notifications Notifications `toml:"notifications" yaml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/prodsum/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	return LoadWithOverlays(path, Overlays{})
}

// LoadWithOverlays behaves like Load and additionally merges YAML overlay files over
// the fetch and transform sections before validation.
func LoadWithOverlays(path string, overlays Overlays) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := overlays.apply(&cfg); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("prodsum.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data tree, log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range c.directories() {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) directories() []string {
	return []string{
		c.Paths.DataDir,
		c.Paths.ZipDir,
		c.Paths.AccessDBDir,
		c.Paths.ParquetDir,
		c.Paths.ExportDir,
		c.Paths.LogDir,
		c.Paths.StateDir,
	}
}

// JournalPath is the sqlite run journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LockPath is the file guarding the data tree against concurrent runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, ".prodsum.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
