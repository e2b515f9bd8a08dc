package engine

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"omop-lite/internal/schema"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

var (
	periodFloor = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	periodCeil  = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

// GeneratedFile is one table written by the Generator.
type GeneratedFile struct {
	Table string
	Path  string
	Rows  int
}

// Generator writes a synthetic, referentially consistent CDM dataset that
// load-data accepts. The same seed always produces the same files.
type Generator struct {
	OutDir    string
	Persons   int
	Delimiter rune
	Quoted    bool // RFC 4180 quoting, fields wrapped only when needed

	specs  []*schema.Table
	faker  *gofakeit.Faker
	logger *slog.Logger
}

func NewGenerator(specs []*schema.Table, outDir string, persons int, seed int64, delim rune, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{
		OutDir:    outDir,
		Persons:   persons,
		Delimiter: delim,
		specs:     specs,
		faker:     gofakeit.New(seed),
		logger:    logger,
	}
}

type row map[string]any

type person struct {
	id         int
	birth      time.Time
	periodFrom time.Time
	periodTo   time.Time
}

// Generate writes every table and returns them in write order.
func (g *Generator) Generate() ([]GeneratedFile, error) {
	if g.Persons <= 0 {
		return nil, fmt.Errorf("persons must be positive, got %d", g.Persons)
	}
	if err := os.MkdirAll(g.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	locations := g.locations()
	people, personRows := g.people(len(locations))
	periods := g.observationPeriods(people)
	visits, visitRows := g.visits(people)
	conditions := g.conditions(visits)
	deaths := g.deaths(people)

	tables := []struct {
		name string
		rows []row
	}{
		{"concept", g.concepts()},
		{"vocabulary", referenceRows("vocabulary", Vocabularies)},
		{"domain", referenceRows("domain", Domains)},
		{"concept_class", referenceRows("concept_class", ConceptClasses)},
		{"location", locations},
		{"person", personRows},
		{"observation_period", periods},
		{"visit_occurrence", visitRows},
		{"condition_occurrence", conditions},
		{"death", deaths},
		{"cdm_source", g.cdmSource()},
	}

	var files []GeneratedFile
	for _, t := range tables {
		f, err := g.write(t.name, t.rows)
		if err != nil {
			return files, err
		}
		files = append(files, f)
		g.logger.Debug("generated", "table", f.Table, "rows", f.Rows, "path", f.Path)
	}
	return files, nil
}

func (g *Generator) concepts() []row {
	valid := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
	rows := make([]row, 0, len(Concepts))
	for _, c := range Concepts {
		r := row{
			"concept_id":       c.ID,
			"concept_name":     c.Name,
			"domain_id":        c.Domain,
			"vocabulary_id":    c.Vocabulary,
			"concept_class_id": c.Class,
			"concept_code":     c.Code,
			"valid_start_date": valid,
			"valid_end_date":   until,
		}
		if c.Standard != "" {
			r["standard_concept"] = c.Standard
		}
		rows = append(rows, r)
	}
	return rows
}

// referenceRows builds vocabulary, domain or concept_class rows keyed by id.
func referenceRows(table string, ids []string) []row {
	rows := make([]row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, row{
			table + "_id":         id,
			table + "_name":       id,
			table + "_concept_id": NoMatchingConcept,
		})
	}
	return rows
}

func (g *Generator) locations() []row {
	n := g.Persons/5 + 1
	rows := make([]row, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, row{
			"location_id":           i,
			"address_1":             g.faker.Street(),
			"city":                  g.faker.City(),
			"state":                 g.faker.StateAbr(),
			"zip":                   g.faker.Zip(),
			"location_source_value": fmt.Sprintf("LOC%06d", i),
			"latitude":              fmt.Sprintf("%.6f", g.faker.Latitude()),
			"longitude":             fmt.Sprintf("%.6f", g.faker.Longitude()),
		})
	}
	return rows
}

func (g *Generator) people(locations int) ([]person, []row) {
	people := make([]person, 0, g.Persons)
	rows := make([]row, 0, g.Persons)
	for i := 1; i <= g.Persons; i++ {
		birth := g.faker.DateRange(time.Date(1930, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2005, 12, 31, 0, 0, 0, 0, time.UTC))
		gender := GenderConcepts[g.faker.Number(0, len(GenderConcepts)-1)]
		race := RaceConcepts[g.faker.Number(0, len(RaceConcepts)-1)]
		ethnicity := EthnicityConcepts[g.faker.Number(0, len(EthnicityConcepts)-1)]

		from := g.faker.DateRange(periodFloor, periodFloor.AddDate(6, 0, 0))
		to := from.AddDate(g.faker.Number(2, 10), 0, g.faker.Number(0, 364))
		if to.After(periodCeil) {
			to = periodCeil
		}
		people = append(people, person{id: i, birth: birth, periodFrom: from, periodTo: to})

		rows = append(rows, row{
			"person_id":                   i,
			"gender_concept_id":           gender,
			"year_of_birth":               birth.Year(),
			"month_of_birth":              int(birth.Month()),
			"day_of_birth":                birth.Day(),
			"birth_datetime":              birth,
			"race_concept_id":             race,
			"ethnicity_concept_id":        ethnicity,
			"location_id":                 g.faker.Number(1, locations),
			"person_source_value":         g.faker.UUID(),
			"gender_source_value":         GenderSourceValues[gender],
			"gender_source_concept_id":    NoMatchingConcept,
			"race_source_concept_id":      NoMatchingConcept,
			"ethnicity_source_concept_id": NoMatchingConcept,
		})
	}
	return people, rows
}

func (g *Generator) observationPeriods(people []person) []row {
	rows := make([]row, 0, len(people))
	for _, p := range people {
		rows = append(rows, row{
			"observation_period_id":         p.id,
			"person_id":                     p.id,
			"observation_period_start_date": p.periodFrom,
			"observation_period_end_date":   p.periodTo,
			"period_type_concept_id":        PeriodTypeConcept,
		})
	}
	return rows
}

type visit struct {
	id     int
	person int
	start  time.Time
	end    time.Time
}

func (g *Generator) visits(people []person) ([]visit, []row) {
	var (
		visits []visit
		rows   []row
	)
	id := 0
	for _, p := range people {
		for n := g.faker.Number(1, 5); n > 0; n-- {
			id++
			concept := VisitConcepts[g.faker.Number(0, len(VisitConcepts)-1)]
			start := g.faker.DateRange(p.periodFrom, p.periodTo)
			end := start
			if concept == 9201 {
				end = start.AddDate(0, 0, g.faker.Number(1, 10))
				if end.After(p.periodTo) {
					end = p.periodTo
				}
			}
			visits = append(visits, visit{id: id, person: p.id, start: start, end: end})
			rows = append(rows, row{
				"visit_occurrence_id":     id,
				"person_id":               p.id,
				"visit_concept_id":        concept,
				"visit_start_date":        start,
				"visit_start_datetime":    start,
				"visit_end_date":          end,
				"visit_end_datetime":      end,
				"visit_type_concept_id":   TypeConceptEHR,
				"visit_source_value":      VisitSourceValues[concept],
				"visit_source_concept_id": NoMatchingConcept,
			})
		}
	}
	return visits, rows
}

func (g *Generator) conditions(visits []visit) []row {
	var rows []row
	id := 0
	for _, v := range visits {
		for n := g.faker.Number(0, 3); n > 0; n-- {
			id++
			concept := ConditionConcepts[g.faker.Number(0, len(ConditionConcepts)-1)]
			rows = append(rows, row{
				"condition_occurrence_id":     id,
				"person_id":                   v.person,
				"condition_concept_id":        concept,
				"condition_start_date":        v.start,
				"condition_start_datetime":    v.start,
				"condition_end_date":          v.end,
				"condition_type_concept_id":   TypeConceptEHR,
				"visit_occurrence_id":         v.id,
				"condition_source_value":      conceptCode(concept),
				"condition_source_concept_id": NoMatchingConcept,
			})
		}
	}
	return rows
}

func (g *Generator) deaths(people []person) []row {
	var rows []row
	for _, p := range people {
		if g.faker.Number(1, 100) > 5 {
			continue
		}
		rows = append(rows, row{
			"person_id":             p.id,
			"death_date":            p.periodTo,
			"death_datetime":        p.periodTo,
			"death_type_concept_id": DeathTypeConcept,
		})
	}
	return rows
}

func (g *Generator) cdmSource() []row {
	return []row{{
		"cdm_source_name":         "omop-lite synthetic dataset",
		"cdm_source_abbreviation": "SYNTH",
		"cdm_holder":              g.faker.Company(),
		"source_description":      fmt.Sprintf("%d generated persons", g.Persons),
		"source_release_date":     periodCeil,
		"cdm_release_date":        periodCeil,
		"cdm_version":             "5.4",
		"cdm_version_concept_id":  CDMVersionConcept,
		"vocabulary_version":      "v5.0 synthetic",
	}}
}

func conceptCode(id int) string {
	for _, c := range Concepts {
		if c.ID == id {
			return c.Code
		}
	}
	return ""
}

// write renders rows in the table's declared column order. Columns a row
// leaves unset are written empty (NULL) unless the column is NOT NULL, in
// which case a value matching its meaning is generated.
func (g *Generator) write(table string, rows []row) (GeneratedFile, error) {
	spec, ok := schema.Find(g.specs, table)
	if !ok {
		return GeneratedFile{}, fmt.Errorf("table %s is not part of the CDM DDL", table)
	}

	path := filepath.Join(g.OutDir, strings.ToUpper(table)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return GeneratedFile{}, err
	}
	defer f.Close()

	w := newRecordWriter(f, g.Delimiter, g.Quoted)
	if err := w.Write(spec.ColumnNames()); err != nil {
		return GeneratedFile{}, err
	}

	fields := make([]string, len(spec.Columns))
	for _, r := range rows {
		for i, col := range spec.Columns {
			v, set := r[col.Name]
			if !set && !col.IsNullable {
				v = g.GenerateValue(col)
			}
			fields[i] = g.format(col, v)
		}
		if err := w.Write(fields); err != nil {
			return GeneratedFile{}, err
		}
	}
	if err := w.Flush(); err != nil {
		return GeneratedFile{}, err
	}
	return GeneratedFile{Table: table, Path: path, Rows: len(rows)}, nil
}

type recordWriter interface {
	Write(fields []string) error
	Flush() error
}

func newRecordWriter(w io.Writer, delim rune, quoted bool) recordWriter {
	if quoted {
		cw := csv.NewWriter(w)
		cw.Comma = delim
		return csvWriter{cw}
	}
	return &lineWriter{w: bufio.NewWriter(w), sep: string(delim)}
}

type csvWriter struct {
	*csv.Writer
}

func (c csvWriter) Flush() error {
	c.Writer.Flush()
	return c.Writer.Error()
}

type lineWriter struct {
	w   *bufio.Writer
	sep string
}

func (l *lineWriter) Write(fields []string) error {
	_, err := l.w.WriteString(strings.Join(fields, l.sep) + "\n")
	return err
}

func (l *lineWriter) Flush() error {
	return l.w.Flush()
}

func (g *Generator) format(col *schema.Column, v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		if col.Meaning == schema.MeaningDatetime {
			return val.Format(datetimeLayout)
		}
		return val.Format(dateLayout)
	case string:
		s := strings.NewReplacer(string(g.Delimiter), " ", "\n", " ", "\r", " ").Replace(val)
		return truncate(s, col.Length)
	default:
		return fmt.Sprint(val)
	}
}

// GenerateValue produces a plausible value for col from its meaning.
func (g *Generator) GenerateValue(col *schema.Column) any {
	switch col.Meaning {
	case schema.MeaningConcept:
		return NoMatchingConcept
	case schema.MeaningID, schema.MeaningNumber:
		return g.faker.Number(1, 1000)
	case schema.MeaningDate, schema.MeaningDatetime:
		return g.faker.DateRange(periodFloor, periodCeil)
	case schema.MeaningYear:
		return g.faker.Number(1930, 2005)
	case schema.MeaningMonth:
		return g.faker.Number(1, 12)
	case schema.MeaningDay:
		return g.faker.Number(1, 28)
	case schema.MeaningFlag:
		return "S"
	}
	return g.faker.Word()
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}
