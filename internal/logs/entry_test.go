package logs_test

import (
	"testing"

	"prodsum/internal/logs"
)

func TestParseEntryAndFilter(t *testing.T) {
	line := `{"ts":"2024-03-01T12:30:45Z","level":"warn","msg":"download retried","component":"fetch","run_id":"r1","stage":"fetch","year":2021,"attempt":2}`
	entry, ok := logs.ParseEntry(line)
	if !ok {
		t.Fatal("expected json line to parse")
	}
	if entry.Level != "warn" || entry.Stage != "fetch" || entry.Year != 2021 || entry.RunID != "r1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if got, want := entry.Format(), "2024-03-01T12:30:45Z WARN fetch: download retried stage=fetch year=2021 attempt=2"; got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}

	cases := []struct {
		name   string
		filter logs.Filter
		want   bool
	}{
		{"empty", logs.Filter{}, true},
		{"level below", logs.Filter{MinLevel: "info"}, true},
		{"level above", logs.Filter{MinLevel: "error"}, false},
		{"stage", logs.Filter{Stage: "FETCH"}, true},
		{"other stage", logs.Filter{Stage: "convert"}, false},
		{"year", logs.Filter{Year: 2022}, false},
		{"run", logs.Filter{RunID: "r1", Year: 2021}, true},
	}
	for _, tc := range cases {
		if got := tc.filter.Match(entry); got != tc.want {
			t.Fatalf("%s: Match = %v, want %v", tc.name, got, tc.want)
		}
	}

	if _, ok := logs.ParseEntry("plain text"); ok {
		t.Fatal("expected non-json line to be rejected")
	}
}
