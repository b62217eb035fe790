package aggregate

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"

	"prodsum/internal/export"
	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
	"prodsum/internal/wells"
)

// Name identifies the stage in logs and the run journal.
const Name = "aggregate"

// Stage turns converted tables into one per-well summary per report year.
type Stage struct {
	parquetDir string
	exportDir  string
	format     export.Format
	aggregator wells.Aggregator
	logger     *slog.Logger
}

// New builds the aggregate stage.
func New(parquetDir, exportDir string, format export.Format, aggregator wells.Aggregator, logger *slog.Logger) *Stage {
	return &Stage{
		parquetDir: parquetDir,
		exportDir:  exportDir,
		format:     format,
		aggregator: aggregator,
		logger:     logging.NewComponentLogger(logger, Name),
	}
}

// Definition wires the stage into the orchestrator.
func (s *Stage) Definition() pipeline.Stage[stagemeta.ArchiveRecord] {
	return pipeline.Stage[stagemeta.ArchiveRecord]{
		Name:       Name,
		Dir:        s.exportDir,
		Extension:  s.format.Extension(),
		PathFields: []string{stagemeta.FieldPath},
		Candidate:  s.Candidate,
		Produce:    s.Produce,
	}
}

// Candidate keys each export by the converted tables' hash.
func (s *Stage) Candidate(context.Context) (stagemeta.Set[stagemeta.ArchiveRecord], error) {
	tables, err := s.loadTables()
	if err != nil {
		return nil, err
	}
	set := make(stagemeta.Set[stagemeta.ArchiveRecord], len(tables))
	for hash, rec := range tables {
		set[hash] = stagemeta.ArchiveRecord{
			Year:      rec.Year,
			Path:      filepath.Join(s.exportDir, s.format.FileName(rec.Year)),
			Timestamp: rec.Timestamp,
		}
	}
	return set, nil
}

func (s *Stage) loadTables() (stagemeta.Set[stagemeta.TableRecord], error) {
	tables, exists, err := stagemeta.Load[stagemeta.TableRecord](stagemeta.PathIn(s.parquetDir))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, Name, "load table metadata", s.parquetDir+" has no metadata; run convert first", nil)
	}
	return tables, nil
}

// Produce aggregates every year's tables in DuckDB and writes one export
// per year. Every year is rewritten because each joins the latest
// completions table.
func (s *Stage) Produce(ctx context.Context, in pipeline.Input[stagemeta.ArchiveRecord]) error {
	tables, err := s.loadTables()
	if err != nil {
		return err
	}
	input := make(map[int]wells.YearTables, len(tables))
	for _, entry := range tables.Ordered() {
		rec := entry.Record
		input[rec.Year] = wells.YearTables{ProductionPath: rec.ProductionPath, CompletionsPath: rec.CompletionsPath}
	}

	summaries, err := s.aggregator.Run(ctx, input)
	if err != nil {
		return err
	}

	years := make([]int, 0, len(summaries))
	for year := range summaries {
		years = append(years, year)
	}
	sort.Ints(years)
	paths := make(map[int]string, len(in.Candidate))
	for _, rec := range in.Candidate {
		paths[rec.Year] = rec.Path
	}
	for _, year := range years {
		dest, ok := paths[year]
		if !ok {
			dest = filepath.Join(s.exportDir, s.format.FileName(year))
		}
		summary := summaries[year]
		if err := s.format.WriteFile(dest, summary); err != nil {
			return services.Wrap(services.ErrTransient, Name, "write export", dest, err)
		}
		logging.WithContext(services.WithYear(ctx, year), s.logger).Info("summary exported",
			logging.String("path", dest),
			logging.Int("wells", summary.Len()),
			logging.String("format", string(s.format)),
			logging.String(logging.FieldEventType, "summary_exported"),
		)
	}
	return nil
}
