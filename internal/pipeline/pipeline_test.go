package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/db"
	"omop-lite/internal/dialect"
	"omop-lite/internal/engine"
	"omop-lite/internal/pipeline"
	"omop-lite/internal/scripts"
)

type fakeProgress struct {
	total int
	steps []string
	stops int
}

func (p *fakeProgress) Start(total int) { p.total = total }
func (p *fakeProgress) Step(job *engine.LoadJob) { p.steps = append(p.steps, job.Table) }
func (p *fakeProgress) Stop() { p.stops++ }

type harness struct {
	cfg      *config.RunConfig
	mock     sqlmock.Sqlmock
	connects int
	opts     []pipeline.Option
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h := &harness{
		cfg: &config.RunConfig{
			Dialect:        config.DialectMSSQL,
			Schema:         "dbo",
			DataDir:        dir,
			Delimiter:      '\t',
			BatchSize:      1000,
			ConnectTimeout: time.Second,
		},
		mock: mock,
	}
	h.opts = []pipeline.Option{pipeline.WithConnect(func(ctx context.Context, cfg *config.RunConfig, d dialect.Dialect, logger *slog.Logger) (*db.Session, error) {
		h.connects++
		return db.New(conn, d, cfg.Schema, logger), nil
	})}
	return h
}

func (h *harness) run(t *testing.T, extra ...pipeline.Option) (*pipeline.Report, error) {
	t.Helper()
	return pipeline.New(h.cfg, nil, append(h.opts, extra...)...).Run(context.Background())
}

// expectScript expects every statement of a bundled script in one transaction.
func (h *harness) expectScript(t *testing.T, name string) {
	t.Helper()
	d := &dialect.MSSQLDialect{}
	stmts, err := scripts.Statements(d.ScriptDir(), name, d.QuoteIdent(h.cfg.Schema))
	require.NoError(t, err)

	h.mock.ExpectBegin()
	for _, s := range stmts {
		h.mock.ExpectExec(regexp.QuoteMeta(s)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	h.mock.ExpectCommit()
}

func (h *harness) expectLoad(table string, rows int) {
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM [dbo].[" + table + "]")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	h.mock.ExpectBegin()
	h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [dbo].[" + table + "]")).
		WillReturnResult(sqlmock.NewResult(0, int64(rows)))
	h.mock.ExpectCommit()
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM [dbo].[" + table + "]")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(rows))
}

func (h *harness) expectFailedLoad(table string) {
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM [dbo].[" + table + "]")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	h.mock.ExpectBegin()
	h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [dbo].[" + table + "]")).
		WillReturnError(errors.New("Conversion failed when converting the varchar value"))
	h.mock.ExpectRollback()
}

var personFile = map[string]string{
	"PERSON.csv": "person_id\tgender_concept_id\tyear_of_birth\n1\t8507\t1970\n2\t8532\t1981\n",
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t, personFile)
	h.expectScript(t, scripts.DDL)
	h.expectLoad("person", 2)
	h.expectScript(t, scripts.PrimaryKeys)
	h.expectScript(t, scripts.Constraints)
	h.expectScript(t, scripts.Indices)

	progress := &fakeProgress{}
	report, err := h.run(t, pipeline.WithProgress(progress))
	require.NoError(t, err)

	assert.Equal(t, pipeline.Success, report.State)
	require.Len(t, report.Jobs, 1)
	assert.Equal(t, int64(2), report.Jobs[0].Rows)
	assert.Equal(t, 1, progress.total)
	assert.Equal(t, []string{"person"}, progress.steps)
	assert.Equal(t, 1, progress.stops)
	assert.NoError(t, h.mock.ExpectationsWereMet())
	assert.Equal(t, cdm.ExitSuccess, cdm.ExitCodeForError(err))
}

func TestRun_NoSourceFiles(t *testing.T) {
	h := newHarness(t, nil)
	h.expectScript(t, scripts.DDL)
	h.expectScript(t, scripts.PrimaryKeys)
	h.expectScript(t, scripts.Constraints)
	h.expectScript(t, scripts.Indices)

	report, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Success, report.State)
	assert.Empty(t, report.Jobs)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRun_PartialFailure(t *testing.T) {
	h := newHarness(t, map[string]string{
		"CONCEPT.csv": "concept_id\tconcept_name\nx\tbroken\n",
		"PERSON.csv":  personFile["PERSON.csv"],
	})
	h.expectScript(t, scripts.DDL)
	h.expectFailedLoad("concept")
	h.expectLoad("person", 2)
	h.expectScript(t, scripts.PrimaryKeys)
	h.expectScript(t, scripts.Constraints)
	h.expectScript(t, scripts.Indices)

	report, err := h.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, cdm.ErrPartialLoad)
	assert.Equal(t, cdm.ExitPartialFailure, cdm.ExitCodeForError(err))

	assert.Equal(t, pipeline.PartialFailure, report.State)
	assert.False(t, report.ConstraintsSkipped)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "concept", report.Failed()[0].Table)
	assert.Equal(t, engine.StatusOK, report.Jobs[1].Status)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRun_SkipConstraintsOnFailure(t *testing.T) {
	h := newHarness(t, map[string]string{
		"CONCEPT.csv": "concept_id\tconcept_name\nx\tbroken\n",
	})
	h.cfg.SkipConstraintsOnFailure = true
	h.expectScript(t, scripts.DDL)
	h.expectFailedLoad("concept")

	report, err := h.run(t)
	assert.ErrorIs(t, err, cdm.ErrPartialLoad)
	assert.Equal(t, pipeline.PartialFailure, report.State)
	assert.True(t, report.ConstraintsSkipped)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRun_Fatal(t *testing.T) {
	t.Run("missing data directory fails before connecting", func(t *testing.T) {
		h := newHarness(t, nil)
		h.cfg.DataDir = filepath.Join(h.cfg.DataDir, "nope")

		report, err := h.run(t)
		assert.ErrorIs(t, err, cdm.ErrConfig)
		assert.Equal(t, pipeline.Fatal, report.State)
		assert.Equal(t, "configure", report.Phase)
		assert.Zero(t, h.connects)
	})

	t.Run("unreachable database", func(t *testing.T) {
		h := newHarness(t, nil)
		h.opts = []pipeline.Option{pipeline.WithConnect(func(context.Context, *config.RunConfig, dialect.Dialect, *slog.Logger) (*db.Session, error) {
			return nil, cdm.ErrConnection
		})}

		report, err := h.run(t)
		assert.Equal(t, cdm.ExitConnectionError, cdm.ExitCodeForError(err))
		assert.Equal(t, "connect", report.Phase)
	})

	t.Run("DDL failure stops before loading", func(t *testing.T) {
		h := newHarness(t, personFile)
		h.mock.ExpectBegin()
		h.mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
		h.mock.ExpectRollback()

		report, err := h.run(t)
		assert.ErrorIs(t, err, cdm.ErrSchema)
		assert.Equal(t, pipeline.Fatal, report.State)
		assert.Equal(t, "schema", report.Phase)
		assert.Empty(t, report.Jobs)
		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("index failure after load", func(t *testing.T) {
		h := newHarness(t, personFile)
		h.expectScript(t, scripts.DDL)
		h.expectLoad("person", 2)
		h.expectScript(t, scripts.PrimaryKeys)
		h.expectScript(t, scripts.Constraints)
		h.mock.ExpectBegin()
		h.mock.ExpectExec(`CREATE`).WillReturnError(errors.New("duplicate key"))
		h.mock.ExpectRollback()

		report, err := h.run(t)
		assert.ErrorIs(t, err, cdm.ErrIndex)
		assert.Equal(t, cdm.ExitConstraintError, cdm.ExitCodeForError(err))
		assert.Equal(t, "indices", report.Phase)
		assert.Len(t, report.Jobs, 1)
		assert.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestRun_BundledSyntheticNeedsNoDirectory(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.DataDir = filepath.Join(h.cfg.DataDir, "nope")
	h.cfg.Synthetic = true
	h.cfg.SyntheticNumber = 100

	var source string
	h.opts = []pipeline.Option{pipeline.WithConnect(func(_ context.Context, cfg *config.RunConfig, _ dialect.Dialect, _ *slog.Logger) (*db.Session, error) {
		source = cfg.SourceDir()
		_, err := os.Stat(filepath.Join(source, "PERSON.csv"))
		require.NoError(t, err)
		return nil, cdm.ErrConnection
	})}

	report, err := h.run(t)
	assert.ErrorIs(t, err, cdm.ErrConnection)
	assert.Equal(t, "connect", report.Phase, "the bundled dataset passes configuration")

	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err), "the prepared dataset is removed after the run")
}

func TestRenderReport(t *testing.T) {
	report := &pipeline.Report{
		State: pipeline.PartialFailure,
		Jobs: []*engine.LoadJob{
			{Table: "person", Path: "data/PERSON.csv", Rows: 99, Status: engine.StatusOK},
			{Table: "concept", Path: "data/CONCEPT.csv", Status: engine.StatusFailed, Err: errors.New("line 7: expected 10 fields, got 9")},
		},
		ConstraintsSkipped: true,
	}

	var buf bytes.Buffer
	pipeline.RenderReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "PERSON.csv")
	assert.Contains(t, out, "99")
	assert.Contains(t, out, "expected 10 fields")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "PartialFailure")
	assert.Contains(t, out, "Constraints and indices were not applied")
}
