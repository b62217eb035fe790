package stagemeta

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp formats t the way records store creation times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO-8601 form written by
// earlier tooling.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not ISO-8601", value)
}

func validateCommon(year int, timestamp string) error {
	if year <= 0 {
		return fmt.Errorf("year %d is not a report year", year)
	}
	if _, err := ParseTimestamp(timestamp); err != nil {
		return err
	}
	return nil
}

// ArchiveRecord describes one artifact with a single path field: a downloaded
// archive, an extracted database, or an export.
type ArchiveRecord struct {
	Year      int    `json:"year"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

func (r ArchiveRecord) ReportYear() int { return r.Year }

func (r ArchiveRecord) ArtifactPaths() []string { return []string{r.Path} }

func (r ArchiveRecord) Validate() error {
	if err := validateCommon(r.Year, r.Timestamp); err != nil {
		return err
	}
	if strings.TrimSpace(r.Path) == "" {
		return errors.New("path is empty")
	}
	return nil
}

// TableRecord describes the two Parquet tables converted from one database.
// DBPath is stripped when a generation is moved into a snapshot.
type TableRecord struct {
	Year            int    `json:"year"`
	DBPath          string `json:"db_path,omitempty"`
	ProductionPath  string `json:"production_path"`
	CompletionsPath string `json:"completions_path"`
	Timestamp       string `json:"timestamp"`
}

func (r TableRecord) ReportYear() int { return r.Year }

// ArtifactPaths omits DBPath, which points into the upstream stage.
func (r TableRecord) ArtifactPaths() []string {
	return []string{r.ProductionPath, r.CompletionsPath}
}

func (r TableRecord) Validate() error {
	if err := validateCommon(r.Year, r.Timestamp); err != nil {
		return err
	}
	if strings.TrimSpace(r.ProductionPath) == "" {
		return errors.New("production_path is empty")
	}
	if strings.TrimSpace(r.CompletionsPath) == "" {
		return errors.New("completions_path is empty")
	}
	return nil
}

// Path field names shared with the backup rotation.
const (
	FieldPath            = "path"
	FieldDBPath          = "db_path"
	FieldProductionPath  = "production_path"
	FieldCompletionsPath = "completions_path"
)
