package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"prodsum/internal/accessdb"
	"prodsum/internal/fileutil"
	"prodsum/internal/frame"
	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
)

// Name identifies the stage in logs and the run journal.
const Name = "convert"

const parquetExt = "parquet"

// Stage exports the two ECMC tables of every extracted database to Parquet.
type Stage struct {
	dbDir      string
	parquetDir string
	source     accessdb.Source
	logger     *slog.Logger
}

// New builds the convert stage.
func New(dbDir, parquetDir string, source accessdb.Source, logger *slog.Logger) *Stage {
	return &Stage{
		dbDir:      dbDir,
		parquetDir: parquetDir,
		source:     source,
		logger:     logging.NewComponentLogger(logger, Name),
	}
}

// Definition wires the stage into the orchestrator.
func (s *Stage) Definition() pipeline.Stage[stagemeta.TableRecord] {
	return pipeline.Stage[stagemeta.TableRecord]{
		Name:        Name,
		Dir:         s.parquetDir,
		Extension:   parquetExt,
		PathFields:  []string{stagemeta.FieldProductionPath, stagemeta.FieldCompletionsPath},
		StripFields: []string{stagemeta.FieldDBPath},
		Candidate:   s.Candidate,
		Produce:     s.Produce,
	}
}

// Candidate maps each extracted database to its two Parquet outputs, keyed by
// the database hash.
func (s *Stage) Candidate(context.Context) (stagemeta.Set[stagemeta.TableRecord], error) {
	databases, exists, err := stagemeta.Load[stagemeta.ArchiveRecord](stagemeta.PathIn(s.dbDir))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, Name, "load database metadata", s.dbDir+" has no metadata; run fetch first", nil)
	}
	set := make(stagemeta.Set[stagemeta.TableRecord], len(databases))
	for hash, db := range databases {
		set[hash] = stagemeta.TableRecord{
			Year:            db.Year,
			DBPath:          db.Path,
			ProductionPath:  filepath.Join(s.parquetDir, accessdb.TableProduction.ParquetName(db.Year)),
			CompletionsPath: filepath.Join(s.parquetDir, accessdb.TableCompletions.ParquetName(db.Year)),
			Timestamp:       db.Timestamp,
		}
	}
	return set, nil
}

// Produce writes both tables per database. A database whose hash appears in
// the generation just rotated away is restored from the snapshot instead of
// being read again.
func (s *Stage) Produce(ctx context.Context, in pipeline.Input[stagemeta.TableRecord]) error {
	for _, entry := range in.Candidate.Ordered() {
		if err := ctx.Err(); err != nil {
			return err
		}
		record := entry.Record
		logger := logging.WithContext(services.WithYear(ctx, record.Year), s.logger)

		if prev, ok := in.Backup.Metadata[entry.Hash]; ok {
			reused, err := s.reuse(prev, record)
			if err != nil {
				return err
			}
			if reused {
				logger.Info("tables reused from snapshot",
					logging.String("snapshot", in.Backup.Snapshot),
					logging.String(logging.FieldEventType, "tables_reused"),
				)
				continue
			}
		}

		started := time.Now()
		for _, table := range accessdb.Tables() {
			dest := record.ProductionPath
			if table == accessdb.TableCompletions {
				dest = record.CompletionsPath
			}
			f, err := s.source.ReadTable(ctx, record.DBPath, table)
			if err != nil {
				return err
			}
			if err := frame.WriteParquetFile(dest, f); err != nil {
				return services.Wrap(services.ErrTransient, Name, "write parquet", dest, err)
			}
			logger.Debug("table converted",
				logging.String("table", string(table)),
				logging.Int("rows", f.Len()),
				logging.Int("columns", f.Width()),
			)
		}
		logger.Info("database converted",
			logging.String("database", record.DBPath),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldEventType, "database_converted"),
		)
	}
	return nil
}

// reuse copies a snapshot's tables back into place. It reports false when
// the snapshot record is unusable so the caller converts from scratch.
func (s *Stage) reuse(prev map[string]any, record stagemeta.TableRecord) (bool, error) {
	pairs := []struct{ field, dest string }{
		{stagemeta.FieldProductionPath, record.ProductionPath},
		{stagemeta.FieldCompletionsPath, record.CompletionsPath},
	}
	for _, pair := range pairs {
		src, ok := prev[pair.field].(string)
		if !ok {
			return false, nil
		}
		if _, err := os.Stat(src); err != nil {
			return false, nil
		}
	}
	for _, pair := range pairs {
		src := prev[pair.field].(string)
		if err := fileutil.CopyFileVerified(src, pair.dest); err != nil {
			return false, services.Wrap(services.ErrTransient, Name, "restore table", fmt.Sprintf("%s -> %s", src, pair.dest), err)
		}
	}
	return true, nil
}
