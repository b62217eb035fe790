package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overlays names optional YAML files merged over the fetch and transform sections.
// The file formats are the url_config and transform_config documents used by earlier
// ECMC tooling, so existing overlay files keep working.
type Overlays struct {
	URLConfigPath       string
	TransformConfigPath string
}

type urlOverlay struct {
	BaseURL         *string     `yaml:"base_url"`
	ZipFileTemplate map[any]any `yaml:"zip_file_template"`
}

type transformOverlay struct {
	RemoveCO2Wells             *bool    `yaml:"remove_CO2_wells"`
	ProductionColumnsToKeep    []string `yaml:"production_columns_to_keep"`
	ProductionColumnsFillZero  []string `yaml:"production_columns_to_fill_null_with_zero"`
	CompletionsColumnsToKeep   []string `yaml:"completions_columns_to_keep"`
	CompletionsColumnsFillZero []string `yaml:"completions_columns_to_fill_null_with_zero"`
}

func (o Overlays) apply(cfg *Config) error {
	if path := strings.TrimSpace(o.URLConfigPath); path != "" {
		var overlay urlOverlay
		if err := decodeYAMLFile(path, &overlay); err != nil {
			return fmt.Errorf("url config: %w", err)
		}
		overlay.merge(&cfg.Fetch)
	}
	if path := strings.TrimSpace(o.TransformConfigPath); path != "" {
		var overlay transformOverlay
		if err := decodeYAMLFile(path, &overlay); err != nil {
			return fmt.Errorf("transform config: %w", err)
		}
		overlay.merge(&cfg.Transform)
	}
	return nil
}

func (o urlOverlay) merge(fetch *Fetch) {
	if o.BaseURL != nil {
		fetch.BaseURL = *o.BaseURL
	}
	if len(o.ZipFileTemplate) == 0 {
		return
	}
	overrides := make(map[string]string, len(o.ZipFileTemplate))
	for key, value := range o.ZipFileTemplate {
		name := strings.TrimSpace(fmt.Sprint(key))
		template := fmt.Sprint(value)
		if name == "default" {
			fetch.FilenameTemplate = template
			continue
		}
		overrides[name] = template
	}
	fetch.YearOverrides = overrides
}

func (o transformOverlay) merge(t *Transform) {
	if o.RemoveCO2Wells != nil {
		t.RemoveCO2Wells = *o.RemoveCO2Wells
	}
	if o.ProductionColumnsToKeep != nil {
		t.ProductionColumnsToKeep = o.ProductionColumnsToKeep
	}
	if o.ProductionColumnsFillZero != nil {
		t.ProductionColumnsFillZero = o.ProductionColumnsFillZero
	}
	if o.CompletionsColumnsToKeep != nil {
		t.CompletionsColumnsToKeep = o.CompletionsColumnsToKeep
	}
	if o.CompletionsColumnsFillZero != nil {
		t.CompletionsColumnsFillZero = o.CompletionsColumnsFillZero
	}
}

func decodeYAMLFile(path string, out any) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("read %s: %w", expanded, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", expanded, err)
	}
	return nil
}

// YAML renders the resolved configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
