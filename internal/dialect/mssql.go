package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server Driver

	"omop-lite/internal/config"
)

// SQL Server caps a statement at 2100 parameters and a VALUES list at 1000 rows.
const (
	mssqlMaxParams    = 2000
	mssqlMaxValueRows = 1000
)

type MSSQLDialect struct{}

// Helper: MSSQL Driver (go-mssqldb) prefers @p1, @p2 named parameters over ?

func (d *MSSQLDialect) Name() string       { return config.DialectMSSQL }
func (d *MSSQLDialect) DriverName() string { return "sqlserver" }
func (d *MSSQLDialect) ScriptDir() string  { return "mssql" }

func (d *MSSQLDialect) DSN(cfg *config.RunConfig) string {
	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("TrustServerCertificate", "true")
	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		q.Set("dial timeout", strconv.Itoa(secs))
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (d *MSSQLDialect) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM sys.schemas WHERE name = @p1`
}

func (d *MSSQLDialect) GetTablesQuery() string {
	// Use @p1 for schema binding
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MSSQLDialect) GetForeignKeysQuery() string {
	return `SELECT KCU1.TABLE_NAME, KCU1.CONSTRAINT_NAME, KCU1.COLUMN_NAME, KCU2.TABLE_NAME AS REF_TABLE, KCU2.COLUMN_NAME AS REF_COLUMN FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS RC JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE KCU1 ON RC.CONSTRAINT_NAME = KCU1.CONSTRAINT_NAME AND RC.CONSTRAINT_SCHEMA = KCU1.CONSTRAINT_SCHEMA JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE KCU2 ON RC.UNIQUE_CONSTRAINT_NAME = KCU2.CONSTRAINT_NAME AND RC.UNIQUE_CONSTRAINT_SCHEMA = KCU2.CONSTRAINT_SCHEMA WHERE KCU1.TABLE_SCHEMA = @p1`
}

func (d *MSSQLDialect) CreateSchemaSQL(schema string) string {
	// CREATE SCHEMA must be alone in its batch, hence EXEC.
	return fmt.Sprintf("IF SCHEMA_ID(N%s) IS NULL EXEC(N%s)",
		quoteLiteral(schema), quoteLiteral("CREATE SCHEMA "+d.QuoteIdent(schema)))
}

func (d *MSSQLDialect) DropSchemaSQL(schema string) string {
	return fmt.Sprintf("DROP SCHEMA IF EXISTS %s", d.QuoteIdent(schema))
}

func (d *MSSQLDialect) DropTableSQL(schema, table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", QualifiedName(d, schema, table))
}

func (d *MSSQLDialect) DropConstraintSQL(schema, table, constraint string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", QualifiedName(d, schema, table), d.QuoteIdent(constraint))
}

func (d *MSSQLDialect) CountQuery(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", QualifiedName(d, schema, table))
}

func (d *MSSQLDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

// RowsPerStatement is how many rows of width cols fit in one INSERT.
func (d *MSSQLDialect) RowsPerStatement(cols int) int {
	if cols <= 0 {
		return 0
	}
	n := mssqlMaxParams / cols
	if n > mssqlMaxValueRows {
		n = mssqlMaxValueRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

// InsertQuery builds a multi-row INSERT for rows rows of cols.
func (d *MSSQLDialect) InsertQuery(schema, table string, cols []string, rows int) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	tuples := make([]string, rows)
	for r := 0; r < rows; r++ {
		tuples[r] = "(" + GeneratePlaceholdersFrom(r*len(cols), len(cols), d.Placeholder) + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		QualifiedName(d, schema, table), strings.Join(quoted, ", "), strings.Join(tuples, ", "))
}

// LoadBatch sends rows as multi-row INSERT statements sized to the
// parameter limit.
func (d *MSSQLDialect) LoadBatch(ctx context.Context, tx *sql.Tx, schema, table string, cols []string, rows [][]any) error {
	per := d.RowsPerStatement(len(cols))
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(cols))
		for _, row := range chunk {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, d.InsertQuery(schema, table, cols, len(chunk)), args...); err != nil {
			return fmt.Errorf("insert into %s (rows %d-%d of batch): %w", table, start+1, end, err)
		}
	}
	return nil
}
