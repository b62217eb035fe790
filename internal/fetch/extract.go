package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"prodsum/internal/backup"
	"prodsum/internal/logging"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
)

// extractDatabases rotates the database directory, extracts one database per
// archive and persists the database metadata keyed by database hash.
func (s *Stage) extractDatabases(ctx context.Context, archives stagemeta.Set[stagemeta.ArchiveRecord]) error {
	if _, err := backup.Rotate(ctx, backup.Options{
		StageDir:   s.dbDir,
		Extension:  databaseExt,
		PathFields: []string{stagemeta.FieldPath},
		Now:        s.now,
	}, s.logger); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dbDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, Name, "create database dir", s.dbDir, err)
	}

	databases := stagemeta.Set[stagemeta.ArchiveRecord]{}
	for _, entry := range archives.Ordered() {
		if err := ctx.Err(); err != nil {
			return err
		}
		record := entry.Record
		logger := logging.WithContext(services.WithYear(ctx, record.Year), s.logger)

		dbPath, err := ExtractDatabase(record.Path, s.dbDir)
		if err != nil {
			return err
		}
		hash, err := s.hasher.File(dbPath)
		if err != nil {
			return services.Wrap(services.ErrTransient, Name, "hash database", dbPath, err)
		}
		databases[hash] = stagemeta.ArchiveRecord{Year: record.Year, Path: dbPath, Timestamp: record.Timestamp}
		logger.Info("database extracted",
			logging.String("archive", filepath.Base(record.Path)),
			logging.String("database", dbPath),
			logging.String(logging.FieldEventType, "database_extracted"),
		)
	}
	return stagemeta.Save(stagemeta.PathIn(s.dbDir), databases)
}

// ExtractDatabase writes the .mdb entries of archive into dir, flattened to
// their base names, and returns the database belonging to the archive: the
// entry named after the archive stem, or the archive's only database.
// Entries whose names escape the archive root are rejected.
func ExtractDatabase(archive, dir string) (string, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return "", services.Wrap(services.ErrIntegrity, Name, "open archive", archive, err)
	}
	defer reader.Close()

	stem := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	var extracted []string
	for _, file := range reader.File {
		if err := checkEntryName(file.Name); err != nil {
			return "", services.Wrap(services.ErrIntegrity, Name, "extract", archive, err)
		}
		if file.FileInfo().IsDir() || !strings.EqualFold(path.Ext(file.Name), "."+databaseExt) {
			continue
		}
		dest := filepath.Join(dir, path.Base(file.Name))
		if err := writeEntry(file, dest); err != nil {
			return "", services.Wrap(services.ErrTransient, Name, "extract", dest, err)
		}
		extracted = append(extracted, dest)
	}

	preferred := filepath.Join(dir, stem+"."+databaseExt)
	for _, candidate := range extracted {
		if candidate == preferred {
			return candidate, nil
		}
	}
	if len(extracted) == 1 {
		return extracted[0], nil
	}
	return "", services.Wrap(services.ErrIntegrity, Name, "locate database",
		fmt.Sprintf("%s holds %d databases and none named %s.%s", archive, len(extracted), stem, databaseExt), nil)
}

func checkEntryName(name string) error {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || filepath.VolumeName(clean) != "" {
		return fmt.Errorf("entry %q escapes the archive root", name)
	}
	return nil
}

func writeEntry(file *zip.File, dest string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
