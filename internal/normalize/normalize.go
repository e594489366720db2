// Package normalize converts one raw source record plus a committed field
// mapping into a canonical event: fixed unified columns, a sparse bag of
// unmapped fields, and a verbatim raw payload copy.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/casetrail/casetrail/internal/fieldmap"
	"github.com/casetrail/casetrail/internal/model"
	"github.com/casetrail/casetrail/internal/rowio"
	"github.com/casetrail/casetrail/internal/schema"
)

// Normalize maps a parsed row into a canonical event and its extras. The
// returned event has no case/run identity yet; the run controller stamps
// those before the store insert. Source fields mapped to nothing, collision
// losers, and values that fail integer conversion all land in extras rather
// than being dropped.
func Normalize(row *rowio.Row, m *fieldmap.Mapping) (*model.Event, []model.ExtraField, error) {
	e := &model.Event{RawJSON: row.Raw}
	consumed := make(map[string]bool, len(row.Fields))
	extras := make(map[string]string)

	// One deterministic source per unified target.
	for _, f := range schema.Fields {
		src := m.SourceFor(f.Name)
		if src == "" {
			continue
		}
		val, ok := row.Fields[src]
		if !ok {
			continue
		}
		consumed[src] = true
		if err := setField(e, f, val, m, extras, src); err != nil {
			return nil, nil, &MalformedRowError{Line: row.Line, Cause: err}
		}
	}
	if src := m.SourceFor("source_event_id"); src != "" {
		if val, ok := row.Fields[src]; ok {
			consumed[src] = true
			e.SourceEventID = strings.TrimSpace(val)
		}
	}

	// Source fields that already use unified names pass straight through
	// when nothing else claimed the target.
	for name, val := range row.Fields {
		if consumed[name] {
			continue
		}
		if _, mapped := m.Unified(name); mapped {
			continue // deliberately unmapped or a collision loser: extras
		}
		lower := strings.ToLower(name)
		if lower == "source_event_id" && e.SourceEventID == "" {
			consumed[name] = true
			e.SourceEventID = strings.TrimSpace(val)
			continue
		}
		f, ok := schema.Lookup(lower)
		if !ok || fieldSet(e, f.Name) {
			continue
		}
		consumed[name] = true
		if err := setField(e, f, val, m, extras, name); err != nil {
			return nil, nil, &MalformedRowError{Line: row.Line, Cause: err}
		}
	}

	for name, val := range row.Fields {
		if consumed[name] {
			continue
		}
		if v := strings.TrimSpace(val); v != "" && v != "-" {
			extras[name] = v
		}
	}

	// Config defaults fill unified fields still empty.
	for name, val := range m.Defaults {
		f, ok := schema.Lookup(name)
		if !ok || fieldSet(e, name) {
			continue
		}
		if err := setField(e, f, val, m, extras, name); err != nil {
			return nil, nil, &MalformedRowError{Line: row.Line, Cause: err}
		}
	}

	var missing []string
	if e.EventTS == "" {
		missing = append(missing, "event_ts")
	}
	if e.EventType == "" {
		missing = append(missing, "event_type")
	}
	if len(missing) > 0 {
		return nil, nil, &MissingRequiredFieldError{Line: row.Line, Fields: missing}
	}

	return e, sortedExtras(extras), nil
}

// setField converts and assigns one unified column. Integer fields that fail
// to parse are preserved in extras under their source name instead of
// failing the row; a bad event_ts is an error because everything downstream
// sorts on it.
func setField(e *model.Event, f schema.Field, raw string, m *fieldmap.Mapping, extras map[string]string, sourceName string) error {
	val := strings.TrimSpace(raw)
	if val == "" || val == "-" {
		return nil
	}

	switch f.Type {
	case schema.Timestamp:
		t, err := parseWithTransform(val, m.Transforms[f.Name])
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f.Name, err)
		}
		setString(e, f.Name, FormatUTC(t))
	case schema.Int:
		i, err := parseInt(val)
		if err != nil {
			extras[sourceName] = val
			return nil
		}
		setInt(e, f.Name, i)
	default:
		setString(e, f.Name, val)
	}
	return nil
}

func parseWithTransform(val string, tr fieldmap.Transform) (time.Time, error) {
	if tr.Format != "" {
		if t, err := time.Parse(tr.Format, val); err == nil {
			return t, nil
		}
	}
	return ParseTimestamp(val)
}

func parseInt(val string) (int64, error) {
	if i, err := strconv.ParseInt(val, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func sortedExtras(extras map[string]string) []model.ExtraField {
	if len(extras) == 0 {
		return nil
	}
	names := make([]string, 0, len(extras))
	for n := range extras {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]model.ExtraField, len(names))
	for i, n := range names {
		out[i] = model.ExtraField{Name: n, Value: extras[n]}
	}
	return out
}

// ExtrasJSON renders extras as a compact JSON object with sorted keys, the
// stable form stored on the event row.
func ExtrasJSON(extras []model.ExtraField) string {
	if len(extras) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, x := range extras {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(x.Name))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(x.Value))
	}
	b.WriteByte('}')
	return b.String()
}

func setString(e *model.Event, name, val string) {
	switch name {
	case "event_ts":
		e.EventTS = val
	case "source_system":
		e.SourceSystem = val
	case "source_name":
		e.SourceName = val
	case "event_type":
		e.EventType = val
	case "host":
		e.Host = val
	case "user":
		e.User = val
	case "src_ip":
		e.SrcIP = val
	case "dest_ip":
		e.DestIP = val
	case "process_name":
		e.ProcessName = val
	case "process_cmdline":
		e.ProcessCmdline = val
	case "parent_process_name":
		e.ParentProcessName = val
	case "file_hash":
		e.FileHash = val
	case "file_path":
		e.FilePath = val
	case "file_name":
		e.FileName = val
	case "dns_query":
		e.DNSQuery = val
	case "url":
		e.URL = val
	case "http_method":
		e.HTTPMethod = val
	case "protocol":
		e.Protocol = val
	case "logon_type":
		e.LogonType = val
	case "session_id":
		e.SessionID = val
	case "user_sid":
		e.UserSID = val
	case "tactic":
		e.Tactic = val
	case "technique":
		e.Technique = val
	case "outcome":
		e.Outcome = val
	case "severity":
		e.Severity = val
	case "message":
		e.Message = val
	}
}

func setInt(e *model.Event, name string, val int64) {
	switch name {
	case "process_id":
		e.ProcessID = val
	case "parent_pid":
		e.ParentPID = val
	case "http_status":
		e.HTTPStatus = val
	case "bytes_in":
		e.BytesIn = val
	case "bytes_out":
		e.BytesOut = val
	case "src_port":
		e.SrcPort = val
	case "dest_port":
		e.DestPort = val
	}
}

func fieldSet(e *model.Event, name string) bool {
	switch name {
	case "event_ts":
		return e.EventTS != ""
	case "source_system":
		return e.SourceSystem != ""
	case "source_name":
		return e.SourceName != ""
	case "event_type":
		return e.EventType != ""
	case "host":
		return e.Host != ""
	case "user":
		return e.User != ""
	case "src_ip":
		return e.SrcIP != ""
	case "dest_ip":
		return e.DestIP != ""
	case "process_name":
		return e.ProcessName != ""
	case "process_cmdline":
		return e.ProcessCmdline != ""
	case "process_id":
		return e.ProcessID != 0
	case "parent_pid":
		return e.ParentPID != 0
	case "parent_process_name":
		return e.ParentProcessName != ""
	case "file_hash":
		return e.FileHash != ""
	case "file_path":
		return e.FilePath != ""
	case "file_name":
		return e.FileName != ""
	case "dns_query":
		return e.DNSQuery != ""
	case "url":
		return e.URL != ""
	case "http_method":
		return e.HTTPMethod != ""
	case "http_status":
		return e.HTTPStatus != 0
	case "bytes_in":
		return e.BytesIn != 0
	case "bytes_out":
		return e.BytesOut != 0
	case "src_port":
		return e.SrcPort != 0
	case "dest_port":
		return e.DestPort != 0
	case "protocol":
		return e.Protocol != ""
	case "logon_type":
		return e.LogonType != ""
	case "session_id":
		return e.SessionID != ""
	case "user_sid":
		return e.UserSID != ""
	case "tactic":
		return e.Tactic != ""
	case "technique":
		return e.Technique != ""
	case "outcome":
		return e.Outcome != ""
	case "severity":
		return e.Severity != ""
	case "message":
		return e.Message != ""
	}
	return false
}
