package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/db"
	"omop-lite/internal/schema"
	"omop-lite/internal/scripts"
)

// Applier runs the bundled DDL scripts of the session's dialect against the
// target schema. Constraints and indices are separate phases so the caller
// can place them after the data load.
type Applier struct {
	session *db.Session
	cfg     *config.RunConfig
	logger  *slog.Logger
}

func NewApplier(s *db.Session, cfg *config.RunConfig, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Applier{session: s, cfg: cfg, logger: logger}
}

// ApplySchema creates the schema and every CDM table, then the concept
// full-text search column when enabled.
func (a *Applier) ApplySchema(ctx context.Context) error {
	if err := a.CreateSchema(ctx); err != nil {
		return err
	}
	if err := a.CreateTables(ctx); err != nil {
		return err
	}
	if a.cfg.FTSCreate {
		return a.CreateFullTextSearch(ctx)
	}
	return nil
}

// CreateSchema creates the target schema if absent. The dialect's built-in
// schema always exists and is left alone.
func (a *Applier) CreateSchema(ctx context.Context) error {
	if a.cfg.IsDefaultSchema() {
		a.logger.Debug("using built-in schema", "schema", a.cfg.Schema)
		return nil
	}

	exists, err := a.session.SchemaExists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", cdm.ErrSchema, err)
	}
	if exists {
		a.logger.Info("schema already exists", "schema", a.cfg.Schema)
		return nil
	}

	if err := a.session.Exec(ctx, a.session.Dialect.CreateSchemaSQL(a.cfg.Schema)); err != nil {
		return fmt.Errorf("%w: create schema %s: %v", cdm.ErrSchema, a.cfg.Schema, err)
	}
	a.logger.Info("schema created", "schema", a.cfg.Schema)
	return nil
}

// CreateTables runs ddl.sql. Every statement is guarded so existing tables
// are left untouched.
func (a *Applier) CreateTables(ctx context.Context) error {
	return a.runScript(ctx, scripts.DDL, cdm.ErrSchema, "tables created")
}

// CreateFullTextSearch adds the search column and GIN index to concept.
func (a *Applier) CreateFullTextSearch(ctx context.Context) error {
	return a.runScript(ctx, scripts.FullText, cdm.ErrSchema, "full-text search created")
}

// ApplyConstraints adds primary keys then foreign keys.
func (a *Applier) ApplyConstraints(ctx context.Context) error {
	if err := a.ApplyPrimaryKeys(ctx); err != nil {
		return err
	}
	return a.ApplyForeignKeys(ctx)
}

func (a *Applier) ApplyPrimaryKeys(ctx context.Context) error {
	return a.runScript(ctx, scripts.PrimaryKeys, cdm.ErrConstraint, "primary keys added")
}

func (a *Applier) ApplyForeignKeys(ctx context.Context) error {
	return a.runScript(ctx, scripts.Constraints, cdm.ErrConstraint, "foreign keys added")
}

func (a *Applier) ApplyIndices(ctx context.Context) error {
	return a.runScript(ctx, scripts.Indices, cdm.ErrIndex, "indices added")
}

func (a *Applier) runScript(ctx context.Context, name string, category error, done string) error {
	d := a.session.Dialect
	stmts, err := scripts.Statements(d.ScriptDir(), name, d.QuoteIdent(a.cfg.Schema))
	if err != nil {
		return fmt.Errorf("%w: %v", category, err)
	}
	if err := a.session.ExecScript(ctx, name, stmts); err != nil {
		return fmt.Errorf("%w: %v", category, err)
	}
	a.logger.Info(done, "schema", a.cfg.Schema, "statements", len(stmts))
	return nil
}

// DropMode selects what Drop removes.
type DropMode int

const (
	DropAll DropMode = iota
	DropTablesOnly
	DropSchemaOnly
)

// Drop removes tables and/or the schema. The built-in schema is never
// dropped; its tables are dropped instead.
func (a *Applier) Drop(ctx context.Context, mode DropMode) error {
	if mode == DropTablesOnly || a.cfg.IsDefaultSchema() {
		if mode != DropTablesOnly {
			a.logger.Warn("cannot drop built-in schema, dropping tables instead", "schema", a.cfg.Schema)
		}
		return a.DropTables(ctx)
	}

	// SQL Server refuses to drop a schema that still holds objects.
	if err := a.DropTables(ctx); err != nil {
		return err
	}
	if err := a.session.Exec(ctx, a.session.Dialect.DropSchemaSQL(a.cfg.Schema)); err != nil {
		return fmt.Errorf("%w: drop schema %s: %v", cdm.ErrSchema, a.cfg.Schema, err)
	}
	a.logger.Info("schema dropped", "schema", a.cfg.Schema)
	return nil
}

// DropTables drops every table of the schema: foreign keys first, then the
// tables children before parents.
func (a *Applier) DropTables(ctx context.Context) error {
	d := a.session.Dialect
	tables, err := schema.Inspect(ctx, a.session.DB, d, a.cfg.Schema)
	if err != nil {
		return fmt.Errorf("%w: %v", cdm.ErrSchema, err)
	}
	if len(tables) == 0 {
		a.logger.Info("no tables to drop", "schema", a.cfg.Schema)
		return nil
	}

	err = a.session.Tx(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			for _, fk := range t.ForeignKeys {
				if _, err := tx.ExecContext(ctx, d.DropConstraintSQL(a.cfg.Schema, t.Name, fk.Name)); err != nil {
					return fmt.Errorf("drop constraint %s on %s: %w", fk.Name, t.Name, err)
				}
			}
		}

		count := 0
		total := len(tables)
		for _, t := range schema.Reverse(tables) {
			if _, err := tx.ExecContext(ctx, d.DropTableSQL(a.cfg.Schema, t.Name)); err != nil {
				return fmt.Errorf("drop table %s: %w", t.Name, err)
			}
			count++
			if count%10 == 0 || count == total {
				a.logger.Debug("dropping tables", "done", count, "total", total)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", cdm.ErrSchema, err)
	}
	a.logger.Info("tables dropped", "schema", a.cfg.Schema, "count", len(tables))
	return nil
}
