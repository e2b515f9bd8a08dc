package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"omop-lite/internal/dialect"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Inspect reads the tables that currently exist in schemaName together with
// the foreign keys between them, ordered parents first.
func Inspect(ctx context.Context, db Querier, d dialect.Dialect, schemaName string) ([]*Table, error) {
	tableMap := make(map[string]*Table)
	var tables []*Table

	rows, err := db.QueryContext(ctx, d.GetTablesQuery(), schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		t := &Table{Name: name, Schema: schemaName, Dependencies: []string{}}
		tableMap[strings.ToUpper(name)] = t
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	fkRows, err := db.QueryContext(ctx, d.GetForeignKeysQuery(), schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var tName, cConst, cName, rTable, rCol sql.NullString
		if err := fkRows.Scan(&tName, &cConst, &cName, &rTable, &rCol); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		if !tName.Valid || !rTable.Valid {
			continue
		}

		t, ok := tableMap[strings.ToUpper(tName.String)]
		if !ok {
			continue
		}
		ref, known := tableMap[strings.ToUpper(rTable.String)]
		if !known {
			continue
		}

		t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
			Name:      cConst.String,
			Column:    cName.String,
			RefTable:  ref.Name,
			RefColumn: rCol.String,
		})
		if ref.Name != t.Name && !contains(t.Dependencies, ref.Name) {
			t.Dependencies = append(t.Dependencies, ref.Name)
		}
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys: %w", err)
	}

	return SortTablesByFKCount(tables), nil
}

// SortTablesByFKCount sorts tables by dependency order.
// It handles circular dependencies by using a scoring system.
func SortTablesByFKCount(tables []*Table) []*Table {
	var sorted []*Table
	processed := make(map[string]bool)

	for len(sorted) < len(tables) {
		added := false

		// Pass 1: tables whose dependencies are fully satisfied
		for _, t := range tables {
			if processed[t.Name] {
				continue
			}

			allDepsProcessed := true
			for _, depName := range t.Dependencies {
				if !processed[depName] {
					allDepsProcessed = false
					break
				}
			}

			if allDepsProcessed {
				sorted = append(sorted, t)
				processed[t.Name] = true
				added = true
			}
		}

		// Pass 2: a cycle, break it by score
		if !added {
			var bestTable *Table
			bestScore := -999999

			for _, t := range tables {
				if processed[t.Name] {
					continue
				}

				score := 0
				unprocessedDeps := 0
				for _, dep := range t.Dependencies {
					if !processed[dep] {
						unprocessedDeps++
					}
				}
				score -= unprocessedDeps * 100

				if inCycle(tables, t, processed) {
					score += 500
				}

				if score > bestScore || (score == bestScore && (bestTable == nil || t.Name > bestTable.Name)) {
					bestScore = score
					bestTable = t
				}
			}

			if bestTable == nil {
				slog.Warn("dependency sort deadlocked", "remaining", len(tables)-len(sorted))
				break
			}
			sorted = append(sorted, bestTable)
			processed[bestTable.Name] = true
			slog.Debug("breaking circular dependency", "table", bestTable.Name, "score", bestScore)
		}
	}

	return sorted
}

// inCycle reports whether one of t's unprocessed dependencies references t.
func inCycle(tables []*Table, t *Table, processed map[string]bool) bool {
	for _, depName := range t.Dependencies {
		if processed[depName] {
			continue
		}
		for _, cand := range tables {
			if cand.Name != depName {
				continue
			}
			if contains(cand.Dependencies, t.Name) {
				return true
			}
			break
		}
	}
	return false
}

// Reverse returns tables in reverse order, children before parents.
func Reverse(tables []*Table) []*Table {
	out := make([]*Table, len(tables))
	for i, t := range tables {
		out[len(tables)-1-i] = t
	}
	return out
}
