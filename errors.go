package permitloader

import (
	"fmt"
	"strings"
)

// FetchError is returned when an archive cannot be downloaded or extracted.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaValidationError carries every violation found in a sample.
type SchemaValidationError struct {
	Violations []Violation
}

func (e *SchemaValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("schema validation failed with %d violation(s): %s",
		len(e.Violations), strings.Join(msgs, "; "))
}

// NormalizationError is returned when columns to rename are absent.
type NormalizationError struct {
	Missing   []string
	Duplicate []string
}

func (e *NormalizationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate columns "+strings.Join(e.Duplicate, ", "))
	}
	return "failed to normalize columns: " + strings.Join(parts, "; ")
}

// LoadError is returned when a chunk cannot be inserted.
type LoadError struct {
	Table  TableRef
	Chunk  int
	Offset int
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to insert chunk %d (row %d) into %s: %v", e.Chunk, e.Offset, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConnectionError is returned when credentials cannot be resolved or
// the warehouse connection cannot be opened.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to warehouse: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
