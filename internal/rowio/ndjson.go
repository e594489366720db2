package rowio

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
)

// NDJSONReader streams one JSON object per line. Nested objects are
// flattened into dotted keys ("actor.alternateId") so source maps can reach
// into envelope structures; arrays are kept as compact JSON strings.
type NDJSONReader struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenNDJSON opens an NDJSON file for streaming.
func OpenNDJSON(path string) (*NDJSONReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(f)
	// Some exports pack very long raw messages into one line.
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	return &NDJSONReader{f: f, scanner: scanner}, nil
}

func (r *NDJSONReader) Next() (*Row, error) {
	for r.scanner.Scan() {
		r.line++
		raw := strings.TrimSpace(r.scanner.Text())
		if raw == "" {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return &Row{Line: r.line, Raw: raw}, &ParseError{Line: r.line, Cause: err}
		}

		fields := make(map[string]string, len(obj))
		flatten("", obj, fields)
		return &Row{Line: r.line, Fields: fields, Raw: raw}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (r *NDJSONReader) Close() error { return r.f.Close() }

// flatten stringifies a decoded JSON object into prefix-dotted keys.
func flatten(prefix string, obj map[string]any, out map[string]string) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			out[key] = strconv.FormatBool(val)
		default:
			// Arrays and anything else keep their JSON form.
			if b, err := json.Marshal(val); err == nil {
				out[key] = string(b)
			}
		}
	}
}
