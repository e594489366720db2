package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/casetrail/casetrail/internal/model"
)

// eventColumns is the events column order used by every INSERT and SELECT.
// event_pk is excluded (generated).
var eventColumns = []string{
	"case_id", "run_id",
	"event_ts", "source_system", "source_name", "event_type",
	"host", "user", "src_ip", "dest_ip",
	"process_name", "process_cmdline", "process_id", "parent_pid", "parent_process_name",
	"file_hash", "file_path", "file_name",
	"dns_query", "url", "http_method", "http_status",
	"bytes_in", "bytes_out", "src_port", "dest_port", "protocol",
	"logon_type", "session_id", "user_sid", "tactic", "technique",
	"outcome", "severity", "message",
	"source_event_id", "raw_ref", "raw_json", "extras_json", "fingerprint",
}

func quotedEventColumns(d Dialect) string {
	quoted := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		quoted[i] = d.QuoteColumn(c)
	}
	return strings.Join(quoted, ", ")
}

func insertEventSQL(d Dialect) string {
	placeholders := make([]string, len(eventColumns))
	for i := range eventColumns {
		placeholders[i] = d.Placeholder(i + 1)
	}
	return "INSERT INTO events (" + quotedEventColumns(d) + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") RETURNING event_pk"
}

// eventArgs lays out an event's values in eventColumns order. Optional
// fields persist as NULL so the dedup partial indexes and per-column
// filters behave.
func eventArgs(e *model.Event) []any {
	return []any{
		e.CaseID, e.RunID,
		e.EventTS, nullString(e.SourceSystem), nullString(e.SourceName), e.EventType,
		nullString(e.Host), nullString(e.User), nullString(e.SrcIP), nullString(e.DestIP),
		nullString(e.ProcessName), nullString(e.ProcessCmdline),
		nullInt64(e.ProcessID), nullInt64(e.ParentPID), nullString(e.ParentProcessName),
		nullString(e.FileHash), nullString(e.FilePath), nullString(e.FileName),
		nullString(e.DNSQuery), nullString(e.URL), nullString(e.HTTPMethod), nullInt64(e.HTTPStatus),
		nullInt64(e.BytesIn), nullInt64(e.BytesOut), nullInt64(e.SrcPort), nullInt64(e.DestPort),
		nullString(e.Protocol), nullString(e.LogonType), nullString(e.SessionID), nullString(e.UserSID),
		nullString(e.Tactic), nullString(e.Technique),
		nullString(e.Outcome), nullString(e.Severity), nullString(e.Message),
		nullString(e.SourceEventID), nullString(e.RawRef),
		nullString(e.RawJSON), nullString(e.ExtrasJSON), nullString(e.Fingerprint),
	}
}

// eventScanner holds the nullable scan targets for one "event_pk,
// <eventColumns...>" row.
type eventScanner struct {
	e *model.Event

	sourceSystem, sourceName, host, user, srcIP, destIP        sql.NullString
	processName, processCmdline, parentProcessName             sql.NullString
	fileHash, filePath, fileName, dnsQuery, url, httpMethod    sql.NullString
	protocol, logonType, sessionID, userSID, tactic, technique sql.NullString
	outcome, severity, message, sourceEventID, rawRef          sql.NullString
	rawJSON, extrasJSON, fingerprint                           sql.NullString
	processID, parentPID, httpStatus, bytesIn, bytesOut        sql.NullInt64
	srcPort, destPort                                          sql.NullInt64
}

func eventScanHolder() (*eventScanner, []any) {
	s := &eventScanner{e: &model.Event{}}
	dests := []any{
		&s.e.EventPK, &s.e.CaseID, &s.e.RunID,
		&s.e.EventTS, &s.sourceSystem, &s.sourceName, &s.e.EventType,
		&s.host, &s.user, &s.srcIP, &s.destIP,
		&s.processName, &s.processCmdline, &s.processID, &s.parentPID, &s.parentProcessName,
		&s.fileHash, &s.filePath, &s.fileName,
		&s.dnsQuery, &s.url, &s.httpMethod, &s.httpStatus,
		&s.bytesIn, &s.bytesOut, &s.srcPort, &s.destPort, &s.protocol,
		&s.logonType, &s.sessionID, &s.userSID, &s.tactic, &s.technique,
		&s.outcome, &s.severity, &s.message,
		&s.sourceEventID, &s.rawRef, &s.rawJSON, &s.extrasJSON, &s.fingerprint,
	}
	return s, dests
}

// event materializes the scanned row, unwrapping NULLs to zero values.
func (s *eventScanner) event() *model.Event {
	e := s.e
	e.SourceSystem = s.sourceSystem.String
	e.SourceName = s.sourceName.String
	e.Host = s.host.String
	e.User = s.user.String
	e.SrcIP = s.srcIP.String
	e.DestIP = s.destIP.String
	e.ProcessName = s.processName.String
	e.ProcessCmdline = s.processCmdline.String
	e.ProcessID = s.processID.Int64
	e.ParentPID = s.parentPID.Int64
	e.ParentProcessName = s.parentProcessName.String
	e.FileHash = s.fileHash.String
	e.FilePath = s.filePath.String
	e.FileName = s.fileName.String
	e.DNSQuery = s.dnsQuery.String
	e.URL = s.url.String
	e.HTTPMethod = s.httpMethod.String
	e.HTTPStatus = s.httpStatus.Int64
	e.BytesIn = s.bytesIn.Int64
	e.BytesOut = s.bytesOut.Int64
	e.SrcPort = s.srcPort.Int64
	e.DestPort = s.destPort.Int64
	e.Protocol = s.protocol.String
	e.LogonType = s.logonType.String
	e.SessionID = s.sessionID.String
	e.UserSID = s.userSID.String
	e.Tactic = s.tactic.String
	e.Technique = s.technique.String
	e.Outcome = s.outcome.String
	e.Severity = s.severity.String
	e.Message = s.message.String
	e.SourceEventID = s.sourceEventID.String
	e.RawRef = s.rawRef.String
	e.RawJSON = s.rawJSON.String
	e.ExtrasJSON = s.extrasJSON.String
	e.Fingerprint = s.fingerprint.String
	return e
}

// scanEvents converts rows selected as "event_pk, <eventColumns...>" into
// events.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		holder, dests := eventScanHolder()
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, holder.event())
	}
	return events, rows.Err()
}
