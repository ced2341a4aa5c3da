package ingest

import (
	"fmt"
	"strings"
)

// MalformedInputError means the extract could not be read as a table at all.
type MalformedInputError struct {
	Source string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("malformed input: %v", e.Err)
	}
	return fmt.Sprintf("malformed input %s: %v", e.Source, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// MissingColumnError fails the whole batch. Columns lists every canonical
// column absent after normalization.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// InvalidRowError describes one excluded row. Line is the 1-based line in the
// source, counting the header as line 1.
type InvalidRowError struct {
	Line   int    `json:"line"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %s", e.Line, e.Column, e.Value, e.Reason)
}
