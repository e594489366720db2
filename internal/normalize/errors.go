package normalize

import (
	"fmt"
	"strings"
)

// MalformedRowError marks a row that could not be parsed or converted into a
// record (bad JSON/CSV, unparseable timestamp). Strict mode aborts the run
// on the first one; lenient mode records and skips.
type MalformedRowError struct {
	Line  int
	Cause error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("row %d malformed: %v", e.Line, e.Cause)
}

func (e *MalformedRowError) Unwrap() error { return e.Cause }

// MissingRequiredFieldError marks a row whose required unified fields
// resolved to empty after mapping.
type MissingRequiredFieldError struct {
	Line   int
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("row %d missing required fields: %s", e.Line, strings.Join(e.Fields, ", "))
}
