package testsupport

import (
	"path/filepath"
	"testing"

	"prodsum/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose data tree lives in a unique temp directory.
// Directories are not created; callers use EnsureDirectories when they need them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.ZipDir = filepath.Join(base, "zip")
	cfgVal.Paths.AccessDBDir = filepath.Join(base, "access-db")
	cfgVal.Paths.ParquetDir = filepath.Join(base, "parquet")
	cfgVal.Paths.ExportDir = filepath.Join(base, "export")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Fetch.BaseURL = "http://127.0.0.1:0/prod/"
	cfgVal.Fetch.FilenameTemplate = "co YYYY summary"
	cfgVal.Fetch.YearOverrides = map[string]string{}
	cfgVal.Fetch.UserAgent = "prodsum-test"
	cfgVal.Fetch.TimeoutSeconds = 5
	cfgVal.Pipeline.Years = []int{2021}
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithYears overrides the report years.
func WithYears(years ...int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Years = append([]int(nil), years...)
	}
}

// WithBaseURL points the fetch stage at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.BaseURL = url
	}
}

// WithExportFormat selects csv or parquet exports.
func WithExportFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Export.Format = format
	}
}

// WithMetricsTextfile enables the Prometheus textfile under the temp tree.
func WithMetricsTextfile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, "metrics", name)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
