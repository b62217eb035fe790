package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prodsum/internal/config"
	"prodsum/internal/contenthash"
	"prodsum/internal/logging"
	"prodsum/internal/pipeline"
	"prodsum/internal/services"
	"prodsum/internal/stagemeta"
	"prodsum/internal/staging"
)

// Name identifies the stage in logs and the run journal.
const Name = "fetch"

const (
	archiveExt  = "zip"
	databaseExt = "mdb"
)

// Stage downloads the annual archives and extracts their Access databases.
type Stage struct {
	years  []int
	fetch  config.Fetch
	zipDir string
	dbDir  string
	hasher contenthash.Hasher
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Stage.
type Option func(*Stage)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Stage) {
		if client != nil {
			s.client = client
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds the fetch stage for the configured years.
func New(cfg *config.Config, hasher contenthash.Hasher, logger *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		years:  append([]int(nil), cfg.Pipeline.Years...),
		fetch:  cfg.Fetch,
		zipDir: cfg.Paths.ZipDir,
		dbDir:  cfg.Paths.AccessDBDir,
		hasher: hasher,
		client: &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second},
		logger: logging.NewComponentLogger(logger, Name),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definition wires the stage into the orchestrator.
func (s *Stage) Definition() pipeline.Stage[stagemeta.ArchiveRecord] {
	return pipeline.Stage[stagemeta.ArchiveRecord]{
		Name:       Name,
		Dir:        s.zipDir,
		Extension:  archiveExt,
		PathFields: []string{stagemeta.FieldPath},
		Candidate:  s.Candidate,
		Produce:    s.Produce,
	}
}

// DatabaseDir is where extracted databases and their metadata live.
func (s *Stage) DatabaseDir() string { return s.dbDir }

// Candidate downloads every configured year into the staging directory and
// keys each archive by its content hash. Paths point at the archive's final
// location in the zip directory.
func (s *Stage) Candidate(ctx context.Context) (stagemeta.Set[stagemeta.ArchiveRecord], error) {
	temp := staging.Dir(s.zipDir)
	if err := staging.Prepare(temp, s.logger); err != nil {
		return nil, services.Wrap(services.ErrTransient, Name, "prepare staging", temp, err)
	}
	timestamp := stagemeta.Timestamp(s.now())
	set := stagemeta.Set[stagemeta.ArchiveRecord]{}
	for _, year := range s.years {
		yearCtx := services.WithYear(ctx, year)
		name := s.fetch.ArchiveName(year)
		staged := filepath.Join(temp, name)
		if err := s.download(yearCtx, s.fetch.ArchiveURL(year), staged); err != nil {
			return nil, err
		}
		hash, err := s.hasher.File(staged)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, Name, "hash archive", staged, err)
		}
		set[hash] = stagemeta.ArchiveRecord{
			Year:      year,
			Path:      filepath.Join(s.zipDir, name),
			Timestamp: timestamp,
		}
	}
	return set, nil
}

func (s *Stage) download(ctx context.Context, url, dest string) error {
	logger := logging.WithContext(ctx, s.logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, Name, "build request", url, err)
	}
	if ua := strings.TrimSpace(s.fetch.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, Name, "download", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := fmt.Sprintf("%s returned %s", url, resp.Status)
		if text := strings.TrimSpace(string(body)); text != "" {
			detail += ": " + text
		}
		return services.Wrap(services.ErrTransient, Name, "download", detail, nil)
	}

	file, err := os.Create(dest)
	if err != nil {
		return services.Wrap(services.ErrTransient, Name, "create archive", dest, err)
	}
	size, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, Name, "write archive", dest, err)
	}

	logger.Info("archive downloaded",
		logging.String("url", url),
		logging.String("path", dest),
		logging.String("size", logging.FormatBytes(size)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "archive_downloaded"),
	)
	return nil
}

// Produce promotes the staged archives into the zip directory, then rotates
// the database directory and extracts a fresh database per archive.
func (s *Stage) Produce(ctx context.Context, in pipeline.Input[stagemeta.ArchiveRecord]) error {
	temp := staging.Dir(s.zipDir)
	if _, err := staging.Promote(ctx, temp, s.zipDir, archiveExt, s.logger); err != nil {
		return services.Wrap(services.ErrTransient, Name, "promote archives", temp, err)
	}
	staging.Discard(temp, s.logger)

	return s.extractDatabases(ctx, in.Candidate)
}
