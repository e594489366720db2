// Package model holds the record types shared across the ingestion pipeline
// and the case store.
package model

// Case is one investigation workspace.
type Case struct {
	CaseID    string `json:"case_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// QueryRun is one ingested source file with its declared provenance.
// RowCount and IngestedAt stay zero/empty until the run commits.
type QueryRun struct {
	RunID        string `json:"run_id"`
	CaseID       string `json:"case_id"`
	SourceSystem string `json:"source_system"`
	QueryName    string `json:"query_name"`
	QueryText    string `json:"query_text"`
	ExecutedAt   string `json:"executed_at"`
	TimeStart    string `json:"time_start"`
	TimeEnd      string `json:"time_end"`
	RawPath      string `json:"raw_path"`
	RowCount     int64  `json:"row_count"`
	FileHash     string `json:"file_hash"`
	IngestedAt   string `json:"ingested_at"`
}

// Event is one canonical, deduplicated occurrence. String fields are "" and
// integer fields 0 when the source did not populate them; the store persists
// unset values as NULL. All timestamps are UTC ISO-8601 with a literal Z.
type Event struct {
	EventPK int64  `json:"event_pk" db:"event_pk"`
	CaseID  string `json:"case_id" db:"case_id"`
	RunID   string `json:"run_id" db:"run_id"`

	EventTS           string `json:"event_ts" db:"event_ts"`
	SourceSystem      string `json:"source_system" db:"source_system"`
	SourceName        string `json:"source_name" db:"source_name"`
	EventType         string `json:"event_type" db:"event_type"`
	Host              string `json:"host" db:"host"`
	User              string `json:"user" db:"user"`
	SrcIP             string `json:"src_ip" db:"src_ip"`
	DestIP            string `json:"dest_ip" db:"dest_ip"`
	ProcessName       string `json:"process_name" db:"process_name"`
	ProcessCmdline    string `json:"process_cmdline" db:"process_cmdline"`
	ProcessID         int64  `json:"process_id" db:"process_id"`
	ParentPID         int64  `json:"parent_pid" db:"parent_pid"`
	ParentProcessName string `json:"parent_process_name" db:"parent_process_name"`
	FileHash          string `json:"file_hash" db:"file_hash"`
	FilePath          string `json:"file_path" db:"file_path"`
	FileName          string `json:"file_name" db:"file_name"`
	DNSQuery          string `json:"dns_query" db:"dns_query"`
	URL               string `json:"url" db:"url"`
	HTTPMethod        string `json:"http_method" db:"http_method"`
	HTTPStatus        int64  `json:"http_status" db:"http_status"`
	BytesIn           int64  `json:"bytes_in" db:"bytes_in"`
	BytesOut          int64  `json:"bytes_out" db:"bytes_out"`
	SrcPort           int64  `json:"src_port" db:"src_port"`
	DestPort          int64  `json:"dest_port" db:"dest_port"`
	Protocol          string `json:"protocol" db:"protocol"`
	LogonType         string `json:"logon_type" db:"logon_type"`
	SessionID         string `json:"session_id" db:"session_id"`
	UserSID           string `json:"user_sid" db:"user_sid"`
	Tactic            string `json:"tactic" db:"tactic"`
	Technique         string `json:"technique" db:"technique"`
	Outcome           string `json:"outcome" db:"outcome"`
	Severity          string `json:"severity" db:"severity"`
	Message           string `json:"message" db:"message"`

	SourceEventID string `json:"source_event_id" db:"source_event_id"`
	RawRef        string `json:"raw_ref" db:"raw_ref"`
	RawJSON       string `json:"raw_json" db:"raw_json"`
	ExtrasJSON    string `json:"extras_json" db:"extras_json"`
	Fingerprint   string `json:"fingerprint" db:"fingerprint"`
}

// StringField returns the value of a string-typed unified column, or "" for
// unset or non-string columns. Entity extraction walks configured columns
// through this without knowing the struct layout.
func (e *Event) StringField(column string) string {
	switch column {
	case "event_ts":
		return e.EventTS
	case "source_system":
		return e.SourceSystem
	case "source_name":
		return e.SourceName
	case "event_type":
		return e.EventType
	case "host":
		return e.Host
	case "user":
		return e.User
	case "src_ip":
		return e.SrcIP
	case "dest_ip":
		return e.DestIP
	case "process_name":
		return e.ProcessName
	case "process_cmdline":
		return e.ProcessCmdline
	case "parent_process_name":
		return e.ParentProcessName
	case "file_hash":
		return e.FileHash
	case "file_path":
		return e.FilePath
	case "file_name":
		return e.FileName
	case "dns_query":
		return e.DNSQuery
	case "url":
		return e.URL
	case "http_method":
		return e.HTTPMethod
	case "protocol":
		return e.Protocol
	case "logon_type":
		return e.LogonType
	case "session_id":
		return e.SessionID
	case "user_sid":
		return e.UserSID
	case "tactic":
		return e.Tactic
	case "technique":
		return e.Technique
	case "outcome":
		return e.Outcome
	case "severity":
		return e.Severity
	case "message":
		return e.Message
	}
	return ""
}

// ExtraField is one source field with no unified counterpart, preserved as an
// event_fields row. Extras are kept in sorted field-name order so derived
// JSON is stable across runs.
type ExtraField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Entity is a first-class pivot value extracted from events.
type Entity struct {
	EntityID  int64  `json:"entity_id"`
	CaseID    string `json:"case_id"`
	Type      string `json:"entity_type"`
	Value     string `json:"entity_value"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	Notes     string `json:"notes"`
	Tags      string `json:"tags"`
}

// RowError records one skipped row in lenient mode. Sample carries a capped,
// redacted slice of the raw row, enough to fix the mapping without re-running.
type RowError struct {
	Line   int               `json:"line"`
	Err    string            `json:"error"`
	Sample map[string]string `json:"sample,omitempty"`
}
