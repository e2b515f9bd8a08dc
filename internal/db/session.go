// Package db is the database connector: one session to the target engine
// with the execute and query primitives the other phases need.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/dialect"
)

// Session wraps a single-connection pool to the target database.
type Session struct {
	DB      *sql.DB
	Dialect dialect.Dialect
	Schema  string

	logger *slog.Logger
}

// Open connects to the database described by cfg and pings it once, bounded
// by cfg.ConnectTimeout. There is no retry.
func Open(ctx context.Context, cfg *config.RunConfig, d dialect.Dialect, logger *slog.Logger) (*Session, error) {
	conn, err := sql.Open(d.DriverName(), d.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", cdm.ErrConnection, d.Name(), err)
	}
	// Phases run strictly one after another on one connection.
	conn.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s at %s:%d/%s unreachable: %v",
			cdm.ErrConnection, d.Name(), cfg.Host, cfg.Port, cfg.Database, err)
	}

	s := New(conn, d, cfg.Schema, logger)
	s.logger.Info("connected", "dialect", d.Name(), "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return s, nil
}

// New wraps an already open handle.
func New(conn *sql.DB, d dialect.Dialect, schema string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{DB: conn, Dialect: d, Schema: schema, logger: logger}
}

func (s *Session) Close() error {
	return s.DB.Close()
}

// Exec runs a single statement outside any transaction.
func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	s.logger.Debug("exec", "sql", query)
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// QueryScalar returns the single integer produced by query.
func (s *Session) QueryScalar(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SchemaExists reports whether the session's schema is present.
func (s *Session) SchemaExists(ctx context.Context) (bool, error) {
	n, err := s.QueryScalar(ctx, s.Dialect.SchemaExistsQuery(), s.Schema)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", s.Schema, err)
	}
	return n > 0, nil
}

// CountRows returns the number of rows currently in table.
func (s *Session) CountRows(ctx context.Context, table string) (int64, error) {
	n, err := s.QueryScalar(ctx, s.Dialect.CountQuery(s.Schema, table))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Tx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Session) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ExecScript runs statements in order inside one transaction. The failing
// statement's position is part of the returned error.
func (s *Session) ExecScript(ctx context.Context, name string, statements []string) error {
	s.logger.Debug("running script", "script", name, "statements", len(statements))
	return s.Tx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s statement %d/%d: %w", name, i+1, len(statements), err)
			}
		}
		return nil
	})
}
