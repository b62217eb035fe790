package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"prodsum/internal/logging"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time      string
	Level     string
	Message   string
	Component string
	RunID     string
	Stage     string
	Year      int
	Attrs     map[string]any
}

var reservedKeys = map[string]struct{}{
	"ts":                   {},
	"level":                {},
	"msg":                  {},
	"source":               {},
	logging.FieldComponent: {},
	logging.FieldRunID:     {},
	logging.FieldStage:     {},
	logging.FieldYear:      {},
}

// ParseEntry decodes a run log line. Lines that are not JSON objects report false.
func ParseEntry(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	entry := Entry{
		Time:      stringField(raw, "ts"),
		Level:     strings.ToLower(stringField(raw, "level")),
		Message:   stringField(raw, "msg"),
		Component: stringField(raw, logging.FieldComponent),
		RunID:     stringField(raw, logging.FieldRunID),
		Stage:     stringField(raw, logging.FieldStage),
	}
	if year, ok := raw[logging.FieldYear].(float64); ok {
		entry.Year = int(year)
	}
	for key, value := range raw {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]any)
		}
		entry.Attrs[key] = value
	}
	return entry, true
}

func stringField(raw map[string]any, key string) string {
	if value, ok := raw[key].(string); ok {
		return value
	}
	return ""
}

// Format renders the entry on one line in the console layout.
func (e Entry) Format() string {
	var b strings.Builder
	b.WriteString(e.Time)
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(e.Level))
	b.WriteByte(' ')
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", e.Stage)
	}
	if e.Year != 0 {
		fmt.Fprintf(&b, " year=%d", e.Year)
	}
	keys := make([]string, 0, len(e.Attrs))
	for key := range e.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Attrs[key])
	}
	return b.String()
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	MinLevel string
	RunID    string
	Stage    string
	Year     int
}

// Empty reports whether the filter selects every entry.
func (f Filter) Empty() bool {
	return f == Filter{}
}

// Match reports whether the entry passes every configured predicate.
func (f Filter) Match(e Entry) bool {
	if f.MinLevel != "" && levelRank(e.Level) < levelRank(f.MinLevel) {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.Stage != "" && !strings.EqualFold(e.Stage, f.Stage) {
		return false
	}
	if f.Year != 0 && e.Year != f.Year {
		return false
	}
	return true
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info", "":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	case "critical":
		return 4
	default:
		return 1
	}
}
