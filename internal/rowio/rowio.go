// Package rowio streams semi-structured export files (NDJSON or CSV) as
// line-numbered string records. It does no schema interpretation; field
// mapping and type conversion happen downstream.
package rowio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Row is one parsed source record. Fields holds every source field
// stringified; Raw is the verbatim record (the original NDJSON line, or the
// CSV row re-encoded as a JSON object) retained for audit.
type Row struct {
	Line   int
	Fields map[string]string
	Raw    string
}

// ParseError marks a row that could not be parsed as a record. The reader
// keeps going after returning one, so lenient callers can skip and continue.
type ParseError struct {
	Line  int
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Reader yields rows until io.EOF.
type Reader interface {
	// Next returns the next row, a *ParseError for an unparseable record,
	// io.EOF at end of input, or a fatal read error.
	Next() (*Row, error)
	Close() error
}

// Open picks a reader by file extension: .csv gets the CSV reader,
// everything else is treated as NDJSON.
func Open(path string) (Reader, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return OpenCSV(path)
	}
	return OpenNDJSON(path)
}

// nullStripper strips NUL bytes from the stream; some SIEM CSV exports carry
// them and they break encoding/csv.
type nullStripper struct {
	r io.Reader
}

func newNullStripper(r io.Reader) io.Reader {
	return &nullStripper{r: r}
}

func (ns *nullStripper) Read(p []byte) (int, error) {
	n, err := ns.r.Read(p)
	if n > 0 {
		cleaned := strings.ReplaceAll(string(p[:n]), "\x00", "")
		copy(p, cleaned)
		n = len(cleaned)
	}
	return n, err
}
