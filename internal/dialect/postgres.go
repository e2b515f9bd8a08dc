package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"omop-lite/internal/config"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return config.DialectPostgres }
func (d *PostgresDialect) DriverName() string { return "postgres" }
func (d *PostgresDialect) ScriptDir() string  { return "postgresql" }

func (d *PostgresDialect) DSN(cfg *config.RunConfig) string {
	q := url.Values{}
	q.Set("sslmode", "disable")
	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (d *PostgresDialect) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = $1`
}

func (d *PostgresDialect) GetTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *PostgresDialect) GetForeignKeysQuery() string {
	return `SELECT kcu.table_name, kcu.constraint_name, kcu.column_name, ccu.table_name AS referenced_table_name, ccu.column_name AS referenced_column_name FROM information_schema.key_column_usage kcu JOIN information_schema.constraint_column_usage ccu ON kcu.constraint_name = ccu.constraint_name AND kcu.constraint_schema = ccu.constraint_schema JOIN information_schema.table_constraints tc ON kcu.constraint_name = tc.constraint_name AND kcu.constraint_schema = tc.constraint_schema WHERE kcu.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'`
}

func (d *PostgresDialect) CreateSchemaSQL(schema string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.QuoteIdent(schema))
}

func (d *PostgresDialect) DropSchemaSQL(schema string) string {
	return fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", d.QuoteIdent(schema))
}

func (d *PostgresDialect) DropTableSQL(schema, table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", QualifiedName(d, schema, table))
}

func (d *PostgresDialect) DropConstraintSQL(schema, table, constraint string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", QualifiedName(d, schema, table), d.QuoteIdent(constraint))
}

func (d *PostgresDialect) CountQuery(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", QualifiedName(d, schema, table))
}

func (d *PostgresDialect) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

// CopyStatement is the COPY statement LoadBatch streams rows through.
func (d *PostgresDialect) CopyStatement(schema, table string, cols []string) string {
	return pq.CopyInSchema(schema, strings.ToLower(table), cols...)
}

// LoadBatch streams rows with COPY FROM STDIN, one COPY per batch.
func (d *PostgresDialect) LoadBatch(ctx context.Context, tx *sql.Tx, schema, table string, cols []string, rows [][]any) error {
	stmt, err := tx.PrepareContext(ctx, d.CopyStatement(schema, table, cols))
	if err != nil {
		return fmt.Errorf("prepare copy into %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("copy row into %s: %w", table, err)
		}
	}
	// Flush buffered rows; COPY errors surface here.
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("copy into %s: %w", table, err)
	}
	return nil
}
