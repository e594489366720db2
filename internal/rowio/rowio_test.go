package rowio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, r Reader) ([]*Row, []*ParseError) {
	t.Helper()
	var rows []*Row
	var perrs []*ParseError
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, perrs
		}
		var perr *ParseError
		if errors.As(err, &perr) {
			perrs = append(perrs, perr)
			continue
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		rows = append(rows, row)
	}
}

func TestOpenDispatch(t *testing.T) {
	csvPath := writeFile(t, "a.CSV", "ts,action\n1,logon\n")
	r, err := Open(csvPath)
	if err != nil {
		t.Fatalf("Open csv failed: %v", err)
	}
	defer r.Close()
	if _, ok := r.(*CSVReader); !ok {
		t.Fatalf("want CSVReader, got %T", r)
	}

	jsonPath := writeFile(t, "a.json", `{"ts":"1"}`+"\n")
	r2, err := Open(jsonPath)
	if err != nil {
		t.Fatalf("Open json failed: %v", err)
	}
	defer r2.Close()
	if _, ok := r2.(*NDJSONReader); !ok {
		t.Fatalf("want NDJSONReader, got %T", r2)
	}
}

func TestCSVRows(t *testing.T) {
	path := writeFile(t, "events.csv",
		"ts,action,host\n"+
			"2026-03-01T10:00:00Z,logon,WS1\n"+
			"2026-03-01T11:00:00Z,logoff,WS2\n")
	r, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	defer r.Close()

	if h := r.Header(); len(h) != 3 || h[0] != "ts" {
		t.Fatalf("header = %v", h)
	}
	rows, perrs := readAll(t, r)
	if len(perrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", perrs)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	// Data rows count from 2, the header being line 1.
	if rows[0].Line != 2 || rows[1].Line != 3 {
		t.Fatalf("line numbers: %d, %d", rows[0].Line, rows[1].Line)
	}
	if rows[0].Fields["action"] != "logon" || rows[1].Fields["host"] != "WS2" {
		t.Fatalf("fields: %+v", rows)
	}
	if rows[0].Raw == "" {
		t.Fatal("raw payload missing")
	}
}

func TestCSVRaggedRow(t *testing.T) {
	path := writeFile(t, "ragged.csv",
		"ts,action,host\n"+
			"2026-03-01T10:00:00Z,logon\n")
	r, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	defer r.Close()

	rows, perrs := readAll(t, r)
	if len(perrs) != 0 || len(rows) != 1 {
		t.Fatalf("rows=%d perrs=%d", len(rows), len(perrs))
	}
	if _, ok := rows[0].Fields["host"]; ok {
		t.Fatalf("short row invented a host value: %+v", rows[0].Fields)
	}
}

func TestCSVStripsNulBytes(t *testing.T) {
	path := writeFile(t, "nul.csv", "ts,action\n\x001,log\x00on\n")
	r, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	defer r.Close()

	rows, perrs := readAll(t, r)
	if len(perrs) != 0 || len(rows) != 1 {
		t.Fatalf("rows=%d perrs=%d", len(rows), len(perrs))
	}
	if rows[0].Fields["action"] != "logon" {
		t.Fatalf("NUL not stripped: %q", rows[0].Fields["action"])
	}
}

func TestNDJSONRows(t *testing.T) {
	path := writeFile(t, "events.json",
		`{"published":"2026-03-01T10:00:00Z","actor":{"alternateId":"admin@corp"},"legacyEventType":"core.user_auth"}`+"\n"+
			"\n"+ // blank lines are skipped
			`{"published":"2026-03-01T11:00:00Z","outcome":{"result":"SUCCESS"},"tags":["a","b"],"count":3,"flag":true,"gone":null}`+"\n")
	r, err := OpenNDJSON(path)
	if err != nil {
		t.Fatalf("OpenNDJSON failed: %v", err)
	}
	defer r.Close()

	rows, perrs := readAll(t, r)
	if len(perrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", perrs)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Fields["actor.alternateId"] != "admin@corp" {
		t.Fatalf("nested object not flattened: %+v", rows[0].Fields)
	}
	if rows[1].Fields["outcome.result"] != "SUCCESS" {
		t.Fatalf("nested object not flattened: %+v", rows[1].Fields)
	}
	if rows[1].Fields["tags"] != `["a","b"]` {
		t.Fatalf("array not kept as JSON: %q", rows[1].Fields["tags"])
	}
	if rows[1].Fields["count"] != "3" || rows[1].Fields["flag"] != "true" || rows[1].Fields["gone"] != "" {
		t.Fatalf("scalar conversion: %+v", rows[1].Fields)
	}
	if rows[1].Line != 3 {
		t.Fatalf("line = %d, want 3", rows[1].Line)
	}
}

func TestNDJSONBadLineContinues(t *testing.T) {
	path := writeFile(t, "mixed.json",
		`{"ok":"1"}`+"\n"+
			`{not json`+"\n"+
			`{"ok":"2"}`+"\n")
	r, err := OpenNDJSON(path)
	if err != nil {
		t.Fatalf("OpenNDJSON failed: %v", err)
	}
	defer r.Close()

	rows, perrs := readAll(t, r)
	if len(rows) != 2 {
		t.Fatalf("got %d good rows", len(rows))
	}
	if len(perrs) != 1 || perrs[0].Line != 2 {
		t.Fatalf("parse errors: %+v", perrs)
	}
}
