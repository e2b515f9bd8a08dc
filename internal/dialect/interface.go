package dialect

import (
	"context"
	"database/sql"

	"omop-lite/internal/config"
)

// Dialect abstracts everything engine specific: connection strings, the
// bundled script set, metadata queries and the bulk-load mechanics.
type Dialect interface {
	// Identity
	Name() string       // config dialect name: postgresql, mssql
	DriverName() string // database/sql driver name
	ScriptDir() string  // directory of the bundled scripts
	DSN(cfg *config.RunConfig) string

	// Metadata Queries (Schema Introspection)
	SchemaExistsQuery() string
	GetTablesQuery() string
	GetForeignKeysQuery() string

	// Statement Generation
	CreateSchemaSQL(schema string) string
	DropSchemaSQL(schema string) string
	DropTableSQL(schema, table string) string
	DropConstraintSQL(schema, table, constraint string) string
	CountQuery(schema, table string) string
	QuoteIdent(name string) string
	Placeholder(index int) string // Returns $1, @p1, etc.

	// LoadBatch inserts rows into schema.table within tx. Each row holds one
	// value per column of cols, nil for NULL.
	LoadBatch(ctx context.Context, tx *sql.Tx, schema, table string, cols []string, rows [][]any) error
}

// QualifiedName returns the dialect-quoted schema.table.
func QualifiedName(d Dialect, schema, table string) string {
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}
