package schema

import "strings"

// Table is the TableSpec of one CDM table: its columns in declared order as
// written in the bundled DDL, plus the foreign keys declared for it.
type Table struct {
	Name         string
	Schema       string
	Columns      []*Column
	ForeignKeys  []*ForeignKey
	Dependencies []string // referenced tables, for ordering
}

type Column struct {
	Name       string
	DataType   string // declared type, e.g. integer, varchar(50)
	Length     int
	IsNullable bool
	Meaning    string // semantic class derived from the name (concept, date, ...)
}

type ForeignKey struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
}

// Column returns the column named name, matched case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// ColumnNames returns the declared column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Find returns the table named name from tables, matched case-insensitively.
func Find(tables []*Table, name string) (*Table, bool) {
	for _, t := range tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}
