package engine_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/db"
	"omop-lite/internal/dialect"
	"omop-lite/internal/engine"
)

func newApplier(t *testing.T, d dialect.Dialect, cfg *config.RunConfig) (*engine.Applier, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return engine.NewApplier(db.New(conn, d, cfg.Schema, nil), cfg, nil), mock
}

func pgConfig(schema string) *config.RunConfig {
	return &config.RunConfig{Dialect: config.DialectPostgres, Schema: schema}
}

func TestCreateSchema(t *testing.T) {
	t.Run("built-in schema is never created", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("public"))
		require.NoError(t, a.CreateSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing schema is created", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("cdm"))
		mock.ExpectQuery(`information_schema.schemata`).WithArgs("cdm").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "cdm"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, a.CreateSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upper-case public is its own postgresql schema", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("PUBLIC"))
		mock.ExpectQuery(`information_schema.schemata`).WithArgs("PUBLIC").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "PUBLIC"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, a.CreateSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing schema is left alone", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("cdm"))
		mock.ExpectQuery(`information_schema.schemata`).WithArgs("cdm").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

		require.NoError(t, a.CreateSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure is a schema error", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("cdm"))
		mock.ExpectQuery(`information_schema.schemata`).WithArgs("cdm").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		mock.ExpectExec(`CREATE SCHEMA`).WillReturnError(errors.New("permission denied"))

		err := a.CreateSchema(context.Background())
		assert.ErrorIs(t, err, cdm.ErrSchema)
	})
}

func TestCreateTables(t *testing.T) {
	for _, d := range []dialect.Dialect{&dialect.PostgresDialect{}, &dialect.MSSQLDialect{}} {
		t.Run(d.Name(), func(t *testing.T) {
			cfg := &config.RunConfig{Dialect: d.Name(), Schema: "cdm"}
			a, mock := newApplier(t, d, cfg)

			mock.ExpectBegin()
			for i := 0; i < 39; i++ {
				mock.ExpectExec(`CREATE TABLE .*` + regexp.QuoteMeta(d.QuoteIdent("cdm")+".")).
					WillReturnResult(sqlmock.NewResult(0, 0))
			}
			mock.ExpectCommit()

			require.NoError(t, a.CreateTables(context.Background()))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplySchema_WithFullTextSearch(t *testing.T) {
	cfg := pgConfig("public")
	cfg.FTSCreate = true
	a, mock := newApplier(t, &dialect.PostgresDialect{}, cfg)

	mock.ExpectBegin()
	for i := 0; i < 39; i++ {
		mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE "public"."concept"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX .*idx_concept_fts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, a.ApplySchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPhases_ErrorCategories(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*engine.Applier, context.Context) error
		want  error
	}{
		{"tables", (*engine.Applier).CreateTables, cdm.ErrSchema},
		{"primary keys", (*engine.Applier).ApplyPrimaryKeys, cdm.ErrConstraint},
		{"foreign keys", (*engine.Applier).ApplyForeignKeys, cdm.ErrConstraint},
		{"constraints", (*engine.Applier).ApplyConstraints, cdm.ErrConstraint},
		{"indices", (*engine.Applier).ApplyIndices, cdm.ErrIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("public"))
			mock.ExpectBegin()
			mock.ExpectExec(`.*`).WillReturnError(errors.New("boom"))
			mock.ExpectRollback()

			err := tt.apply(a, context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "statement 1/")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFullTextSearch_NotBundledForMSSQL(t *testing.T) {
	a, _ := newApplier(t, &dialect.MSSQLDialect{}, &config.RunConfig{Dialect: config.DialectMSSQL, Schema: "dbo"})
	err := a.CreateFullTextSearch(context.Background())
	assert.ErrorIs(t, err, cdm.ErrSchema)
}

func expectInspect(mock sqlmock.Sqlmock, schema string) {
	mock.ExpectQuery(`FROM information_schema.tables`).WithArgs(schema).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("location").AddRow("person"))
	mock.ExpectQuery(`FROM information_schema.key_column_usage`).WithArgs(schema).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "referenced_table_name", "referenced_column_name"}).
			AddRow("person", "fpk_person_location_id", "location_id", "location", "location_id"))
}

func TestDrop(t *testing.T) {
	t.Run("everything in a custom schema", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("cdm"))
		expectInspect(mock, "cdm")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "cdm"."person" DROP CONSTRAINT IF EXISTS "fpk_person_location_id"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "cdm"."person" CASCADE`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "cdm"."location" CASCADE`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectExec(regexp.QuoteMeta(`DROP SCHEMA IF EXISTS "cdm" CASCADE`)).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, a.Drop(context.Background(), engine.DropAll))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("built-in schema only loses its tables", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("public"))
		expectInspect(mock, "public")
		mock.ExpectBegin()
		mock.ExpectExec(`DROP CONSTRAINT`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DROP TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DROP TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		require.NoError(t, a.Drop(context.Background(), engine.DropSchemaOnly))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tables only keeps the schema", func(t *testing.T) {
		a, mock := newApplier(t, &dialect.PostgresDialect{}, pgConfig("cdm"))
		expectInspect(mock, "cdm")
		mock.ExpectBegin()
		mock.ExpectExec(`DROP CONSTRAINT`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DROP TABLE`).WillReturnError(errors.New("locked"))
		mock.ExpectRollback()

		err := a.Drop(context.Background(), engine.DropTablesOnly)
		assert.ErrorIs(t, err, cdm.ErrSchema)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
