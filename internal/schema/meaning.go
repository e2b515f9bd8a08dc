package schema

import "strings"

// Semantic classes of CDM columns, used by the synthetic generator.
const (
	MeaningID       = "id"
	MeaningConcept  = "concept"
	MeaningDate     = "date"
	MeaningDatetime = "datetime"
	MeaningYear     = "year"
	MeaningMonth    = "month"
	MeaningDay      = "day"
	MeaningNumber   = "number"
	MeaningFlag     = "flag"
	MeaningText     = "text"
)

// AnalyzeMeaning classifies a CDM column by its naming convention, falling
// back to its declared type.
func AnalyzeMeaning(colName, dataType string) string {
	n := strings.ToLower(colName)
	t := strings.ToLower(dataType)

	switch {
	case strings.HasSuffix(n, "_concept_id") || strings.Contains(n, "_concept_id_"):
		return MeaningConcept
	case n == "concept_id" || n == "concept_id_1" || n == "concept_id_2":
		return MeaningConcept
	case strings.HasSuffix(n, "_datetime"):
		return MeaningDatetime
	case strings.HasSuffix(n, "_date"):
		return MeaningDate
	case strings.HasPrefix(n, "year_of_"):
		return MeaningYear
	case strings.HasPrefix(n, "month_of_"):
		return MeaningMonth
	case strings.HasPrefix(n, "day_of_"):
		return MeaningDay
	case strings.HasSuffix(n, "_id") && (t == "integer" || t == "bigint"):
		return MeaningID
	case t == "varchar(1)":
		return MeaningFlag
	}

	switch {
	case t == "integer" || t == "bigint" || t == "numeric" || t == "float":
		return MeaningNumber
	case t == "date":
		return MeaningDate
	case t == "timestamp" || t == "datetime2":
		return MeaningDatetime
	}
	return MeaningText
}
