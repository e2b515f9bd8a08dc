package dialect

import (
	"fmt"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
)

// GetDialect returns the Dialect for a config dialect name.
func GetDialect(name string) (Dialect, error) {
	switch name {
	case config.DialectPostgres:
		return &PostgresDialect{}, nil
	case config.DialectMSSQL:
		return &MSSQLDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", cdm.ErrConfig, name)
	}
}

// Ensure interface implementation
var _ Dialect = (*PostgresDialect)(nil)
var _ Dialect = (*MSSQLDialect)(nil)
