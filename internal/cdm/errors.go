// Package cdm holds the error taxonomy and process exit codes shared by every
// phase of the OMOP CDM bootstrap.
package cdm

import "errors"

// Sentinel errors for each failure category of a run.
// Callers distinguish them with errors.Is().
var (
	// ErrConfig indicates invalid or missing input, detected before connecting.
	ErrConfig = errors.New("configuration error")

	// ErrConnection indicates the database could not be reached.
	ErrConnection = errors.New("connection error")

	// ErrSchema indicates a schema or table DDL statement failed.
	ErrSchema = errors.New("schema error")

	// ErrLoad indicates a single data file failed to load.
	ErrLoad = errors.New("load error")

	// ErrPartialLoad indicates the run finished but at least one file failed to load.
	ErrPartialLoad = errors.New("partial load failure")

	// ErrConstraint indicates primary or foreign key creation failed.
	ErrConstraint = errors.New("constraint error")

	// ErrIndex indicates index creation failed.
	ErrIndex = errors.New("index error")
)

const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitConfigError     = 2
	ExitConnectionError = 3
	ExitSchemaError     = 4
	ExitPartialFailure  = 5
	ExitConstraintError = 6
)

// ExitCodeForError returns the process exit code for err.
// nil maps to ExitSuccess and unclassified errors to ExitGeneralError.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrConfig):
		return ExitConfigError
	case errors.Is(err, ErrConnection):
		return ExitConnectionError
	case errors.Is(err, ErrSchema):
		return ExitSchemaError
	case errors.Is(err, ErrConstraint), errors.Is(err, ErrIndex):
		return ExitConstraintError
	case errors.Is(err, ErrPartialLoad), errors.Is(err, ErrLoad):
		return ExitPartialFailure
	}
	return ExitGeneralError
}
