// Package schema defines the unified event schema contract: the fixed set of
// normalized columns every source is mapped into, their types, and which of
// them carry first-class entities.
package schema

// FieldType is the storage type of a unified column.
type FieldType int

const (
	String FieldType = iota
	Int
	Timestamp
)

// Field describes one unified column.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Fields is the ordered list of unified columns. The order is the column
// order in the events table and is load-bearing for query building and
// export; new fields go at the end.
var Fields = []Field{
	{Name: "event_ts", Type: Timestamp, Required: true},
	{Name: "source_system", Type: String},
	{Name: "source_name", Type: String},
	{Name: "event_type", Type: String, Required: true},
	{Name: "host", Type: String},
	{Name: "user", Type: String},
	{Name: "src_ip", Type: String},
	{Name: "dest_ip", Type: String},
	{Name: "process_name", Type: String},
	{Name: "process_cmdline", Type: String},
	{Name: "process_id", Type: Int},
	{Name: "parent_pid", Type: Int},
	{Name: "parent_process_name", Type: String},
	{Name: "file_hash", Type: String},
	{Name: "file_path", Type: String},
	{Name: "file_name", Type: String},
	{Name: "dns_query", Type: String},
	{Name: "url", Type: String},
	{Name: "http_method", Type: String},
	{Name: "http_status", Type: Int},
	{Name: "bytes_in", Type: Int},
	{Name: "bytes_out", Type: Int},
	{Name: "src_port", Type: Int},
	{Name: "dest_port", Type: Int},
	{Name: "protocol", Type: String},
	{Name: "logon_type", Type: String},
	{Name: "session_id", Type: String},
	{Name: "user_sid", Type: String},
	{Name: "tactic", Type: String},
	{Name: "technique", Type: String},
	{Name: "outcome", Type: String},
	{Name: "severity", Type: String},
	{Name: "message", Type: String},
}

// Required lists the unified fields that must be mapped before any row is
// processed.
var Required = []string{"event_ts", "event_type"}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(Fields))
	for _, f := range Fields {
		m[f.Name] = f
	}
	return m
}()

// Lookup returns the field definition for a unified column name.
func Lookup(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// IsUnified reports whether name is a unified column.
func IsUnified(name string) bool {
	_, ok := byName[name]
	return ok
}

// Names returns the unified column names in declaration order.
func Names() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = f.Name
	}
	return out
}

// Entity pivot configuration. Each entity type is extracted from one or more
// unified columns (ip spans both directions of a connection).
var (
	EntityTypes = []string{"host", "user", "ip", "hash", "process"}

	EntityColumns = map[string][]string{
		"host":    {"host"},
		"user":    {"user"},
		"ip":      {"src_ip", "dest_ip"},
		"hash":    {"file_hash"},
		"process": {"process_name"},
	}

	// DefaultEntityFields is the default analyst selection of entity-bearing
	// unified columns for ingestion-time linking.
	DefaultEntityFields = []string{"host", "user", "src_ip", "dest_ip", "file_hash", "process_name"}
)

// EntityTypeForColumn returns the entity type extracted from a unified
// column, or "" if the column carries no entity.
func EntityTypeForColumn(column string) string {
	for _, t := range EntityTypes {
		for _, c := range EntityColumns[t] {
			if c == column {
				return t
			}
		}
	}
	return ""
}
