// Package scripts bundles the per-dialect OMOP CDM v5.4 SQL assets.
//
// Every script refers to the target schema through the @cdmDatabaseSchema
// placeholder, which is replaced with the dialect-quoted schema name when the
// script is rendered.
package scripts

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

//go:embed sql
var assets embed.FS

// SchemaPlaceholder is substituted with the quoted target schema.
const SchemaPlaceholder = "@cdmDatabaseSchema"

// Script names shared by every dialect directory.
const (
	DDL         = "ddl.sql"
	PrimaryKeys = "primary_keys.sql"
	Constraints = "constraints.sql"
	Indices     = "indices.sql"
	FullText    = "fts.sql"
)

// Raw returns the unrendered script text.
func Raw(dialectDir, name string) (string, error) {
	b, err := assets.ReadFile(path.Join("sql", dialectDir, name))
	if err != nil {
		return "", fmt.Errorf("script %s/%s not bundled: %w", dialectDir, name, err)
	}
	return string(b), nil
}

// Render returns the script with the schema placeholder replaced by quotedSchema.
func Render(dialectDir, name, quotedSchema string) (string, error) {
	raw, err := Raw(dialectDir, name)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(raw, SchemaPlaceholder, quotedSchema), nil
}

// Statements renders the script and splits it into individual statements.
func Statements(dialectDir, name, quotedSchema string) ([]string, error) {
	text, err := Render(dialectDir, name, quotedSchema)
	if err != nil {
		return nil, err
	}
	return Split(text), nil
}

// Split breaks script text into statements on semicolons that end a line.
// Full-line "--" comments are dropped. The bundled scripts never place a
// semicolon at the end of a line inside a statement.
func Split(text string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(strings.TrimRight(line, " \t\r"))
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			stmts = append(stmts, strings.TrimSpace(stmt))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
