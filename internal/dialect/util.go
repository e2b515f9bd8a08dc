package dialect

import (
	"strings"
)

// GeneratePlaceholdersFrom returns count comma-separated placeholders, the
// first one for index start.
func GeneratePlaceholdersFrom(start, count int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(start + i)
	}
	return strings.Join(placeholders, ", ")
}

// quoteLiteral wraps s in single quotes, doubling embedded quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
