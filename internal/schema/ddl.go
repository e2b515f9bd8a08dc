package schema

import (
	"fmt"
	"regexp"
	"strings"

	"omop-lite/internal/dialect"
	"omop-lite/internal/scripts"
)

var (
	createTableRe = regexp.MustCompile(`(?s)CREATE TABLE (?:IF NOT EXISTS )?` + regexp.QuoteMeta(scripts.SchemaPlaceholder) + `\.(\w+) \((.*?)\);`)
	columnRe      = regexp.MustCompile(`^["\[]?(\w+)["\]]?\s+(\w+(?:\(\s*(\w+)\s*\))?)\s+(NOT NULL|NULL)$`)
	foreignKeyRe  = regexp.MustCompile(`ALTER TABLE ` + regexp.QuoteMeta(scripts.SchemaPlaceholder) + `\.(\w+) ADD CONSTRAINT (\w+) FOREIGN KEY \((\w+)\) REFERENCES ` + regexp.QuoteMeta(scripts.SchemaPlaceholder) + `\.(\w+) \((\w+)\)`)
)

// LoadSpecs builds the TableSpecs for schemaName from the dialect's bundled
// DDL and foreign key scripts, in DDL order.
func LoadSpecs(d dialect.Dialect, schemaName string) ([]*Table, error) {
	ddl, err := scripts.Raw(d.ScriptDir(), scripts.DDL)
	if err != nil {
		return nil, err
	}
	tables, err := ParseDDL(ddl)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", d.ScriptDir(), scripts.DDL, err)
	}
	for _, t := range tables {
		t.Schema = schemaName
	}

	fks, err := scripts.Raw(d.ScriptDir(), scripts.Constraints)
	if err != nil {
		return nil, err
	}
	ApplyForeignKeys(tables, fks)

	return tables, nil
}

// ParseDDL extracts every CREATE TABLE statement of a bundled DDL script.
func ParseDDL(ddl string) ([]*Table, error) {
	matches := createTableRe.FindAllStringSubmatch(ddl, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CREATE TABLE statements found")
	}

	tables := make([]*Table, 0, len(matches))
	for _, m := range matches {
		t := &Table{Name: strings.ToLower(m[1]), Dependencies: []string{}}
		for _, line := range strings.Split(m[2], "\n") {
			line = strings.TrimSuffix(strings.TrimSpace(line), ",")
			if line == "" {
				continue
			}
			cm := columnRe.FindStringSubmatch(line)
			if cm == nil {
				return nil, fmt.Errorf("table %s: cannot parse column definition %q", t.Name, line)
			}
			col := &Column{
				Name:       strings.ToLower(cm[1]),
				DataType:   cm[2],
				IsNullable: cm[4] == "NULL",
			}
			if cm[3] != "" {
				var length int
				if _, err := fmt.Sscanf(cm[3], "%d", &length); err == nil {
					col.Length = length
				}
			}
			col.Meaning = AnalyzeMeaning(col.Name, col.DataType)
			t.Columns = append(t.Columns, col)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("table %s has no columns", t.Name)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// ApplyForeignKeys attaches the foreign keys declared in a constraints script
// to tables. Self references are kept as keys but not as dependencies.
func ApplyForeignKeys(tables []*Table, constraints string) {
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	for _, m := range foreignKeyRe.FindAllStringSubmatch(constraints, -1) {
		t, ok := byName[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		ref := strings.ToLower(m[4])
		t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
			Name:      m[2],
			Column:    strings.ToLower(m[3]),
			RefTable:  ref,
			RefColumn: strings.ToLower(m[5]),
		})
		if _, known := byName[ref]; known && ref != t.Name && !contains(t.Dependencies, ref) {
			t.Dependencies = append(t.Dependencies, ref)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
