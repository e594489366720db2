package fieldmap

import "strings"

// Builtin per-source maps, keyed by lowercased source field name. Nested
// NDJSON objects arrive flattened with dotted keys (see rowio), which is how
// the Okta and CloudTrail maps reach into their envelope structures.
var builtinMaps = map[string]map[string]string{
	"splunk": {
		"_time":             "event_ts",
		"sourcetype":        "event_type",
		"signature":         "event_type",
		"source":            "source_name",
		"index":             "source_name",
		"host":              "host",
		"src":               "src_ip",
		"src_ip":            "src_ip",
		"dest":              "dest_ip",
		"dest_ip":           "dest_ip",
		"src_port":          "src_port",
		"dest_port":         "dest_port",
		"user":              "user",
		"src_user":          "user",
		"account_name":      "user",
		"process":           "process_name",
		"process_name":      "process_name",
		"process_id":        "process_id",
		"parent_process":    "parent_process_name",
		"parent_process_id": "parent_pid",
		"cmdline":           "process_cmdline",
		"commandline":       "process_cmdline",
		"file_hash":         "file_hash",
		"file_path":         "file_path",
		"file_name":         "file_name",
		"url":               "url",
		"http_method":       "http_method",
		"bytes_in":          "bytes_in",
		"bytes_out":         "bytes_out",
		"protocol":          "protocol",
		"query":             "dns_query",
		"action":            "outcome",
		"result":            "outcome",
		"logontype":         "logon_type",
		"severity":          "severity",
		"priority":          "severity",
		"_raw":              "message",
		"message":           "message",
	},
	"kusto": {
		"timegenerated":              "event_ts",
		"timestamp":                  "event_ts",
		"createddatetime":            "event_ts",
		"type":                       "event_type",
		"category":                   "event_type",
		"operationname":              "event_type",
		"sourcesystem":               "source_name",
		"computer":                   "host",
		"devicename":                 "host",
		"hostname":                   "host",
		"sourceip":                   "src_ip",
		"srcipaddr":                  "src_ip",
		"clientip":                   "src_ip",
		"calleripaddress":            "src_ip",
		"destinationip":              "dest_ip",
		"dstipaddr":                  "dest_ip",
		"destinationport":            "dest_port",
		"sourceport":                 "src_port",
		"account":                    "user",
		"userprincipalname":          "user",
		"accountname":                "user",
		"targetusername":             "user",
		"userid":                     "user_sid",
		"processname":                "process_name",
		"process":                    "process_name",
		"processid":                  "process_id",
		"processcommandline":         "process_cmdline",
		"commandline":                "process_cmdline",
		"parentprocessname":          "parent_process_name",
		"initiatingprocessfilename":  "parent_process_name",
		"parentprocessid":            "parent_pid",
		"sha256":                     "file_hash",
		"filehash":                   "file_hash",
		"md5":                        "file_hash",
		"filepath":                   "file_path",
		"folderpath":                 "file_path",
		"filename":                   "file_name",
		"urlfield":                   "url",
		"url":                        "url",
		"requesturi":                 "url",
		"remoteurl":                  "url",
		"dnsquery":                   "dns_query",
		"queryname":                  "dns_query",
		"resulttype":                 "outcome",
		"result":                     "outcome",
		"status":                     "outcome",
		"resultdescription":          "message",
		"logontype":                  "logon_type",
		"severity":                   "severity",
		"alertseverity":              "severity",
		"level":                      "severity",
		"tactics":                    "tactic",
		"techniques":                 "technique",
		"correlationid":              "session_id",
		"message":                    "message",
		"description":                "message",
	},
	"cloudtrail": {
		"eventtime":                   "event_ts",
		"eventname":                   "event_type",
		"eventsource":                 "source_name",
		"eventid":                     "source_event_id",
		"sourceipaddress":             "src_ip",
		"useragent":                   "message",
		"username":                    "user",
		"useridentity.username":       "user",
		"useridentity.principalid":    "user",
		"useridentity.accountid":      "user_sid",
		"awsregion":                   "host",
		"requestid":                   "session_id",
		"requestparameters.instanceid": "host",
		"errorcode":                   "outcome",
		"errormessage":                "message",
	},
	"okta": {
		"published":                                 "event_ts",
		"eventtype":                                 "event_type",
		"displaymessage":                            "message",
		"uuid":                                      "source_event_id",
		"severity":                                  "severity",
		"actor.alternateid":                         "user",
		"actor.displayname":                         "user",
		"client.ipaddress":                          "src_ip",
		"outcome.result":                            "outcome",
		"outcome.reason":                            "message",
		"authenticationcontext.externalsessionid":   "session_id",
		"transaction.id":                            "session_id",
	},
}

func init() {
	// CloudTrail exports show up under either name.
	builtinMaps["aws"] = builtinMaps["cloudtrail"]
}

// BuiltinMap returns the builtin field map for a source system, or nil when
// the source has none (the pattern table alone then drives suggestions).
func BuiltinMap(source string) map[string]string {
	return builtinMaps[strings.ToLower(strings.TrimSpace(source))]
}

// BuiltinSources lists the source systems with builtin maps.
func BuiltinSources() []string {
	return []string{"splunk", "kusto", "cloudtrail", "aws", "okta"}
}
