// Package export writes a case's merged timeline, ordered by event_ts, as
// CSV or JSON lines.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/casetrail/casetrail/internal/database"
	"github.com/casetrail/casetrail/internal/model"
	"github.com/casetrail/casetrail/internal/schema"
)

// Columns beyond the unified schema carried on every export row.
var provenanceColumns = []string{"run_id", "query_name", "source_event_id", "raw_ref", "extras_json"}

// Header returns the export column order: the unified schema followed by
// provenance.
func Header() []string {
	return append(schema.Names(), provenanceColumns...)
}

// Exporter writes timelines from a case store.
type Exporter struct {
	Store *database.CaseStore
}

// WriteCSV writes the case timeline as CSV with a header row. Returns the
// number of data rows written.
func (x *Exporter) WriteCSV(ctx context.Context, caseID string, w io.Writer) (int, error) {
	rows, err := x.Store.TimelineRows(ctx, caseID)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return 0, fmt.Errorf("writing export header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(record(row)); err != nil {
			return i, fmt.Errorf("writing export row: %w", err)
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

// WriteJSONL writes the case timeline as one JSON object per line, keyed by
// the export columns with empty values omitted.
func (x *Exporter) WriteJSONL(ctx context.Context, caseID string, w io.Writer) (int, error) {
	rows, err := x.Store.TimelineRows(ctx, caseID)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	cols := Header()
	for i, row := range rows {
		obj := make(map[string]string, len(cols))
		rec := record(row)
		for j, col := range cols {
			if rec[j] != "" {
				obj[col] = rec[j]
			}
		}
		if err := enc.Encode(obj); err != nil {
			return i, fmt.Errorf("writing export row: %w", err)
		}
	}
	return len(rows), nil
}

// record lays a timeline row out in Header order. Integer columns render
// as "" when unset, matching their NULL storage.
func record(row *database.TimelineRow) []string {
	e := row.Event
	out := make([]string, 0, len(schema.Names())+len(provenanceColumns))
	for _, f := range schema.Fields {
		if f.Type == schema.Int {
			out = append(out, intField(e, f.Name))
			continue
		}
		out = append(out, e.StringField(f.Name))
	}
	return append(out, e.RunID, row.QueryName, e.SourceEventID, e.RawRef, e.ExtrasJSON)
}

func intField(e *model.Event, name string) string {
	var v int64
	switch name {
	case "process_id":
		v = e.ProcessID
	case "parent_pid":
		v = e.ParentPID
	case "http_status":
		v = e.HTTPStatus
	case "bytes_in":
		v = e.BytesIn
	case "bytes_out":
		v = e.BytesOut
	case "src_port":
		v = e.SrcPort
	case "dest_port":
		v = e.DestPort
	}
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
