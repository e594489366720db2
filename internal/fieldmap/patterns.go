package fieldmap

// patternEntry is one row of the static suggestion table: a unified field and
// the normalized source-name aliases known to carry it. Table order is the
// tie-break when several unified fields could claim a source name, so entries
// must not be reordered without bumping PatternTableVersion.
type patternEntry struct {
	Unified string
	Aliases []string
}

// PatternTableVersion identifies the suggestion table revision. Suggestions
// are deterministic for a given version.
const PatternTableVersion = 1

var patternTable = []patternEntry{
	{"event_ts", []string{"event_ts", "timestamp", "time", "datetime", "_time", "eventtime", "created_at", "date", "ts", "when", "occurred", "published", "timegenerated"}},
	{"event_type", []string{"event_type", "type", "action", "category", "eventname", "activity", "event_name", "operation", "name", "signature"}},
	{"host", []string{"host", "hostname", "host_name", "computer", "machine", "device", "devicename", "computername", "server"}},
	{"user", []string{"user", "username", "user_name", "account", "actor", "principal", "userid", "user_id", "accountname", "userprincipalname"}},
	{"src_ip", []string{"src_ip", "source_ip", "sourceip", "src", "client_ip", "remote_ip", "srcip", "source_address", "src_addr", "calleripaddress"}},
	{"dest_ip", []string{"dest_ip", "destination_ip", "destip", "dst", "target_ip", "dest", "dstip", "destination_address", "dst_addr"}},
	{"src_port", []string{"src_port", "source_port", "srcport", "sport"}},
	{"dest_port", []string{"dest_port", "destination_port", "dstport", "dport", "port"}},
	{"process_name", []string{"process_name", "process", "image", "imagepath", "executable", "exe", "program"}},
	{"process_cmdline", []string{"process_cmdline", "command_line", "commandline", "cmdline", "cmd", "command"}},
	{"process_id", []string{"process_id", "pid"}},
	{"parent_pid", []string{"parent_pid", "ppid", "parent_process_id"}},
	{"file_path", []string{"file_path", "filepath", "path", "filename", "file_name", "object_name"}},
	{"file_hash", []string{"file_hash", "hash", "md5", "sha256", "sha1", "filehash"}},
	{"outcome", []string{"outcome", "result", "status", "success", "verdict", "disposition"}},
	{"severity", []string{"severity", "level", "priority", "risk", "threat_level"}},
	{"message", []string{"message", "msg", "description", "details", "summary", "raw", "_raw", "displaymessage"}},
	{"url", []string{"url", "uri", "link", "web_address", "request_url"}},
	{"dns_query", []string{"dns_query", "query", "domain", "fqdn"}},
	{"protocol", []string{"protocol", "proto", "app_protocol"}},
	{"logon_type", []string{"logon_type", "logontype"}},
	{"session_id", []string{"session_id", "sessionid", "correlationid", "requestid"}},
	{"user_sid", []string{"user_sid", "usersid", "sid"}},
	{"bytes_in", []string{"bytes_in", "bytesin", "bytes_received", "recv_bytes"}},
	{"bytes_out", []string{"bytes_out", "bytesout", "bytes_sent", "sent_bytes"}},
	{"http_method", []string{"http_method", "method"}},
	{"http_status", []string{"http_status", "status_code", "statuscode", "response_code"}},
	{"tactic", []string{"tactic", "tactics", "mitre_tactic"}},
	{"technique", []string{"technique", "techniques", "mitre_technique"}},
}
