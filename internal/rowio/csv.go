package rowio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVReader streams a header-addressed CSV file. Data rows are numbered from
// 2, matching how analysts count lines in the export.
type CSVReader struct {
	f      *os.File
	reader *csv.Reader
	header []string
	line   int
}

// OpenCSV opens a CSV file and reads its header row.
func OpenCSV(path string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(newNullStripper(f))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // allow ragged rows

	header, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	if len(header) == 0 || (len(header) == 1 && header[0] == "") {
		f.Close()
		return nil, fmt.Errorf("empty CSV header")
	}

	return &CSVReader{f: f, reader: reader, header: header, line: 1}, nil
}

// Header returns the column names in file order.
func (r *CSVReader) Header() []string { return r.header }

func (r *CSVReader) Next() (*Row, error) {
	record, err := r.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.line++
	if err != nil {
		return &Row{Line: r.line}, &ParseError{Line: r.line, Cause: err}
	}

	fields := make(map[string]string, len(r.header))
	for i, col := range r.header {
		if i < len(record) {
			fields[col] = record[i]
		}
	}
	return &Row{Line: r.line, Fields: fields, Raw: encodeRaw(fields)}, nil
}

func (r *CSVReader) Close() error { return r.f.Close() }

// encodeRaw re-encodes a CSV row as a compact JSON object (sorted keys via
// json.Marshal) so raw_json has one shape regardless of source format.
func encodeRaw(fields map[string]string) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}
