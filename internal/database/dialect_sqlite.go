package database

// SQLiteDialect targets the modernc.org/sqlite driver, the default backend
// for the one-file-per-case layout.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string { return "sqlite" }

// DSN enables foreign keys and a busy timeout; concurrent readers may
// overlap the single writer.
func (d *SQLiteDialect) DSN(pathOrConnStr string) string {
	return "file:" + pathOrConnStr + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
func (d *SQLiteDialect) Placeholder(index int) string    { return "?" }
func (d *SQLiteDialect) QuoteColumn(name string) string  { return name }

func (d *SQLiteDialect) CreateSchemaSQL() []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			case_id TEXT PRIMARY KEY,
			title TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS query_runs (
			run_id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL REFERENCES cases(case_id),
			source_system TEXT NOT NULL,
			query_name TEXT,
			query_text TEXT,
			executed_at TEXT,
			time_start TEXT,
			time_end TEXT,
			raw_path TEXT,
			row_count INTEGER,
			file_hash TEXT,
			ingested_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_pk INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id TEXT NOT NULL,
			run_id TEXT NOT NULL REFERENCES query_runs(run_id),
			event_ts TEXT NOT NULL,
			source_system TEXT,
			source_name TEXT,
			event_type TEXT NOT NULL,
			host TEXT, user TEXT, src_ip TEXT, dest_ip TEXT,
			process_name TEXT, process_cmdline TEXT,
			process_id INTEGER, parent_pid INTEGER, parent_process_name TEXT,
			file_hash TEXT, file_path TEXT, file_name TEXT,
			dns_query TEXT, url TEXT, http_method TEXT, http_status INTEGER,
			bytes_in INTEGER, bytes_out INTEGER,
			src_port INTEGER, dest_port INTEGER, protocol TEXT,
			logon_type TEXT, session_id TEXT, user_sid TEXT,
			tactic TEXT, technique TEXT,
			outcome TEXT, severity TEXT, message TEXT,
			source_event_id TEXT, raw_ref TEXT,
			raw_json TEXT, extras_json TEXT, fingerprint TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			entity_id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_value TEXT NOT NULL,
			first_seen TEXT,
			last_seen TEXT,
			notes TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			UNIQUE (case_id, entity_type, entity_value)
		)`,
		`CREATE TABLE IF NOT EXISTS event_entities (
			event_pk INTEGER NOT NULL REFERENCES events(event_pk),
			entity_id INTEGER NOT NULL REFERENCES entities(entity_id),
			PRIMARY KEY (event_pk, entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_fields (
			event_pk INTEGER NOT NULL REFERENCES events(event_pk),
			field_name TEXT NOT NULL,
			field_value TEXT,
			PRIMARY KEY (event_pk, field_name)
		)`,
		// The two dedup constraints. Partial indexes so rows missing the
		// native ID (or the fingerprint) never collide on NULL.
		`CREATE UNIQUE INDEX IF NOT EXISTS events_native_id_uq
			ON events (case_id, source_system, source_event_id)
			WHERE source_event_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS events_fingerprint_uq
			ON events (case_id, fingerprint)
			WHERE fingerprint IS NOT NULL`,
	}
	for _, col := range indexedEventColumns {
		stmts = append(stmts,
			"CREATE INDEX IF NOT EXISTS events_"+col+"_idx ON events (case_id, "+col+")")
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS query_runs_case_idx ON query_runs (case_id)`,
		`CREATE INDEX IF NOT EXISTS event_entities_entity_idx ON event_entities (entity_id)`,
	)
	return stmts
}

func (d *SQLiteDialect) InsertEventSQL() string {
	return insertEventSQL(d)
}

func (d *SQLiteDialect) WidenEntitySQL() string {
	return `UPDATE entities
		SET first_seen = MIN(first_seen, ?), last_seen = MAX(last_seen, ?)
		WHERE entity_id = ?`
}

func (d *SQLiteDialect) HourBucketSQL(column string) string {
	return "substr(" + column + ", 1, 13)"
}
