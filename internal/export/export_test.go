package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/casetrail/casetrail/internal/database"
	"github.com/casetrail/casetrail/internal/model"
)

func newTestStore(t *testing.T) *database.CaseStore {
	t.Helper()
	store, err := database.Create("sqlite", filepath.Join(t.TempDir(), "case.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.CreateCase(ctx, &model.Case{CaseID: "CASE-1", Title: "t", CreatedAt: "2026-03-01T00:00:00Z"}); err != nil {
		t.Fatalf("creating case: %v", err)
	}
	if err := store.InsertRun(ctx, &model.QueryRun{
		RunID: "run-1", CaseID: "CASE-1", SourceSystem: "splunk",
		QueryName: "auth failures", ExecutedAt: "2026-03-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("creating run: %v", err)
	}

	tx, err := store.BeginIngest(ctx, "CASE-1")
	if err != nil {
		t.Fatal(err)
	}
	// Inserted out of time order; export must sort by event_ts.
	events := []*model.Event{
		{
			CaseID: "CASE-1", RunID: "run-1",
			EventTS: "2026-03-01T11:00:00Z", EventType: "logoff",
			Host: "WS1", User: "alice", Fingerprint: "fp-2",
		},
		{
			CaseID: "CASE-1", RunID: "run-1",
			EventTS: "2026-03-01T10:00:00Z", EventType: "logon",
			Host: "WS1", User: "alice", SrcPort: 51234,
			ExtrasJSON: `{"zeek_uid":"C1"}`, Fingerprint: "fp-1",
		},
	}
	for _, e := range events {
		if _, dup, err := tx.InsertOrGetEvent(ctx, e); err != nil || dup {
			t.Fatalf("inserting event: dup=%v err=%v", dup, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return store
}

func headerIndex(t *testing.T, header []string) map[string]int {
	t.Helper()
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

func TestWriteCSV(t *testing.T) {
	store := newTestStore(t)
	x := &Exporter{Store: store}

	var buf bytes.Buffer
	n, err := x.WriteCSV(context.Background(), "CASE-1", &buf)
	if err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d rows", n)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	idx := headerIndex(t, records[0])

	// Time order regardless of insert order.
	if records[1][idx["event_ts"]] != "2026-03-01T10:00:00Z" ||
		records[2][idx["event_ts"]] != "2026-03-01T11:00:00Z" {
		t.Fatalf("rows out of order: %v", records[1:])
	}
	first := records[1]
	if first[idx["event_type"]] != "logon" || first[idx["host"]] != "WS1" {
		t.Fatalf("row content: %v", first)
	}
	if first[idx["src_port"]] != "51234" {
		t.Fatalf("int column: %q", first[idx["src_port"]])
	}
	if first[idx["query_name"]] != "auth failures" || first[idx["run_id"]] != "run-1" {
		t.Fatalf("provenance: %v", first)
	}
	if first[idx["extras_json"]] != `{"zeek_uid":"C1"}` {
		t.Fatalf("extras: %q", first[idx["extras_json"]])
	}
	// Unset ints render empty, matching their NULL storage.
	if records[2][idx["src_port"]] != "" {
		t.Fatalf("unset int rendered: %q", records[2][idx["src_port"]])
	}
}

func TestWriteJSONL(t *testing.T) {
	store := newTestStore(t)
	x := &Exporter{Store: store}

	var buf bytes.Buffer
	n, err := x.WriteJSONL(context.Background(), "CASE-1", &buf)
	if err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d rows", n)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	var first map[string]string
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("parsing line: %v", err)
	}
	if first["event_ts"] != "2026-03-01T10:00:00Z" || first["user"] != "alice" {
		t.Fatalf("line content: %v", first)
	}
	if _, ok := first["dest_ip"]; ok {
		t.Fatal("empty field not omitted")
	}
}

func TestHeaderShape(t *testing.T) {
	h := Header()
	if h[0] != "event_ts" {
		t.Fatalf("header starts with %q", h[0])
	}
	if h[len(h)-1] != "extras_json" {
		t.Fatalf("header ends with %q", h[len(h)-1])
	}
	seen := make(map[string]bool, len(h))
	for _, c := range h {
		if seen[c] {
			t.Fatalf("duplicate column %q", c)
		}
		seen[c] = true
	}
}
