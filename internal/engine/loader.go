package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/db"
	"omop-lite/internal/schema"
)

const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// LoadJob is one source file loaded into one table.
type LoadJob struct {
	Table     string
	Path      string
	Delimiter rune
	Rows      int64 // rows sent to the database
	Actual    int64 // rows added, re-counted after commit
	Status    string
	Err       error
	Elapsed   time.Duration
}

func (j *LoadJob) Failed() bool {
	return j.Err != nil
}

// Loader bulk-loads the source files of a run into their tables, one file at
// a time. A failing file is recorded on its job and the next file continues.
type Loader struct {
	session *db.Session
	cfg     *config.RunConfig
	specs   []*schema.Table
	logger  *slog.Logger
}

func NewLoader(s *db.Session, cfg *config.RunConfig, specs []*schema.Table, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{session: s, cfg: cfg, specs: specs, logger: logger}
}

// Plan pairs every CDM table with its <TABLE>.csv source file, in table name
// order. Tables without a file are skipped; files naming no CDM table are
// reported and ignored.
func (l *Loader) Plan() ([]*LoadJob, error) {
	dir := l.cfg.SourceDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read data directory %s: %v", cdm.ErrConfig, dir, err)
	}

	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files[strings.ToUpper(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))] = filepath.Join(dir, e.Name())
	}

	var jobs []*LoadJob
	for _, spec := range l.specs {
		key := strings.ToUpper(spec.Name)
		path, ok := files[key]
		if !ok {
			l.logger.Debug("no source file, skipping", "table", spec.Name)
			continue
		}
		delete(files, key)
		jobs = append(jobs, &LoadJob{
			Table:     spec.Name,
			Path:      path,
			Delimiter: l.cfg.SourceDelimiter(),
		})
	}
	for _, path := range files {
		l.logger.Warn("file matches no CDM table, ignoring", "file", path)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Table < jobs[j].Table })
	return jobs, nil
}

// Load plans and executes the run's jobs. See Execute.
func (l *Loader) Load(ctx context.Context, onProgress func(*LoadJob)) ([]*LoadJob, error) {
	jobs, err := l.Plan()
	if err != nil {
		return nil, err
	}
	return jobs, l.Execute(ctx, jobs, onProgress)
}

// Execute runs jobs one at a time. onProgress, when set, is called once per
// job. The returned error is non-nil only when the run cannot go on because
// the connection was lost; per-file failures live on the jobs.
func (l *Loader) Execute(ctx context.Context, jobs []*LoadJob, onProgress func(*LoadJob)) error {
	l.logger.Info("loading data", "source", l.cfg.SourceDir(), "files", len(jobs))

	for _, job := range jobs {
		l.Run(ctx, job)
		if onProgress != nil {
			onProgress(job)
		}
		if job.Failed() {
			if err := l.session.DB.PingContext(ctx); err != nil {
				return fmt.Errorf("%w: %w: connection lost while loading %s: %v", cdm.ErrLoad, cdm.ErrConnection, job.Table, err)
			}
		}
	}
	return nil
}

// Run loads a single job and records its outcome on it.
func (l *Loader) Run(ctx context.Context, job *LoadJob) {
	start := time.Now()
	err := l.load(ctx, job)
	job.Elapsed = time.Since(start)

	if err != nil {
		job.Err = fmt.Errorf("%w: %s: %v", cdm.ErrLoad, filepath.Base(job.Path), err)
		job.Status = StatusFailed
		l.logger.Error("load failed", "table", job.Table, "file", job.Path, "error", err)
		return
	}
	job.Status = StatusOK
	l.logger.Info("loaded", "table", job.Table, "rows", job.Rows, "elapsed", job.Elapsed.Round(time.Millisecond))
}

func (l *Loader) load(ctx context.Context, job *LoadJob) error {
	spec, ok := schema.Find(l.specs, job.Table)
	if !ok {
		return fmt.Errorf("table %s is not part of the CDM DDL", job.Table)
	}

	f, err := os.Open(job.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	rr := newRecordReader(f, job.Delimiter, l.cfg.SourceQuoted())
	header, err := rr.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("file is empty, header row expected")
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols, err := matchHeader(spec, normalizeHeader(header))
	if err != nil {
		return err
	}

	initial, err := l.session.CountRows(ctx, spec.Name)
	if err != nil {
		return err
	}

	batchSize := l.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	d := l.session.Dialect

	err = l.session.Tx(ctx, func(tx *sql.Tx) error {
		batch := make([][]any, 0, batchSize)
		for {
			rec, err := rr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("line %d: %w", rr.Line(), err)
			}
			if len(rec) != len(cols) {
				return fmt.Errorf("line %d: expected %d fields, got %d", rr.Line(), len(cols), len(rec))
			}

			row := make([]any, len(rec))
			for i, v := range rec {
				if v == "" {
					row[i] = nil
				} else {
					row[i] = v
				}
			}
			batch = append(batch, row)

			if len(batch) == batchSize {
				if err := d.LoadBatch(ctx, tx, l.cfg.Schema, spec.Name, cols, batch); err != nil {
					return fmt.Errorf("batch ending line %d: %w", rr.Line(), err)
				}
				job.Rows += int64(len(batch))
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			if err := d.LoadBatch(ctx, tx, l.cfg.Schema, spec.Name, cols, batch); err != nil {
				return fmt.Errorf("final batch: %w", err)
			}
			job.Rows += int64(len(batch))
		}
		return nil
	})
	if err != nil {
		job.Rows = 0
		return err
	}

	return l.verify(ctx, job, spec.Name, initial)
}

// verify re-counts the table and checks every sent row arrived.
func (l *Loader) verify(ctx context.Context, job *LoadJob, table string, initial int64) error {
	final, err := l.session.CountRows(ctx, table)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	job.Actual = final - initial
	if job.Actual != job.Rows {
		return fmt.Errorf("verify: sent %d rows, table grew by %d", job.Rows, job.Actual)
	}
	return nil
}

// matchHeader maps file columns to table columns by name. Any unknown or
// repeated column rejects the file.
func matchHeader(spec *schema.Table, header []string) ([]string, error) {
	cols := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		col, ok := spec.Column(h)
		if !ok {
			return nil, fmt.Errorf("column %q is not a column of %s", h, spec.Name)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("column %q appears twice in header", h)
		}
		seen[col.Name] = true
		cols[i] = col.Name
	}
	return cols, nil
}

// Failures returns the failed jobs of a load.
func Failures(jobs []*LoadJob) []*LoadJob {
	var failed []*LoadJob
	for _, j := range jobs {
		if j.Failed() {
			failed = append(failed, j)
		}
	}
	return failed
}
