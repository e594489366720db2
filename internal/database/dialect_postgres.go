package database

import "fmt"

// pgQuoteCol wraps a column name in double quotes when it collides with a
// PostgreSQL reserved word. Unreserved names stay bare so PostgreSQL folds
// them to lowercase consistently with the DDL.
func pgQuoteCol(name string) string {
	switch name {
	case "user":
		return `"` + name + `"`
	default:
		return name
	}
}

// PostgresDialect targets the pgx stdlib driver for cases kept on a shared
// PostgreSQL server instead of a local file.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string            { return "pgx" }
func (d *PostgresDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }
func (d *PostgresDialect) Placeholder(index int) string    { return fmt.Sprintf("$%d", index) }
func (d *PostgresDialect) QuoteColumn(name string) string  { return pgQuoteCol(name) }

func (d *PostgresDialect) CreateSchemaSQL() []string {
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
			row_count BIGINT,
			file_hash TEXT,
			ingested_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_pk BIGSERIAL PRIMARY KEY,
			case_id TEXT NOT NULL,
			run_id TEXT NOT NULL REFERENCES query_runs(run_id),
			event_ts TEXT NOT NULL,
			source_system TEXT,
			source_name TEXT,
			event_type TEXT NOT NULL,
			host TEXT, "user" TEXT, src_ip TEXT, dest_ip TEXT,
			process_name TEXT, process_cmdline TEXT,
			process_id BIGINT, parent_pid BIGINT, parent_process_name TEXT,
			file_hash TEXT, file_path TEXT, file_name TEXT,
			dns_query TEXT, url TEXT, http_method TEXT, http_status BIGINT,
			bytes_in BIGINT, bytes_out BIGINT,
			src_port BIGINT, dest_port BIGINT, protocol TEXT,
			logon_type TEXT, session_id TEXT, user_sid TEXT,
			tactic TEXT, technique TEXT,
			outcome TEXT, severity TEXT, message TEXT,
			source_event_id TEXT, raw_ref TEXT,
			raw_json TEXT, extras_json TEXT, fingerprint TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			entity_id BIGSERIAL PRIMARY KEY,
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
			event_pk BIGINT NOT NULL REFERENCES events(event_pk),
			entity_id BIGINT NOT NULL REFERENCES entities(entity_id),
			PRIMARY KEY (event_pk, entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_fields (
			event_pk BIGINT NOT NULL REFERENCES events(event_pk),
			field_name TEXT NOT NULL,
			field_value TEXT,
			PRIMARY KEY (event_pk, field_name)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS events_native_id_uq
			ON events (case_id, source_system, source_event_id)
			WHERE source_event_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS events_fingerprint_uq
			ON events (case_id, fingerprint)
			WHERE fingerprint IS NOT NULL`,
	}
	for _, col := range indexedEventColumns {
		stmts = append(stmts,
			"CREATE INDEX IF NOT EXISTS events_"+col+"_idx ON events (case_id, "+pgQuoteCol(col)+")")
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS query_runs_case_idx ON query_runs (case_id)`,
		`CREATE INDEX IF NOT EXISTS event_entities_entity_idx ON event_entities (entity_id)`,
	)
	return stmts
}

func (d *PostgresDialect) InsertEventSQL() string {
	return insertEventSQL(d)
}

func (d *PostgresDialect) WidenEntitySQL() string {
	return `UPDATE entities
		SET first_seen = LEAST(first_seen, $1), last_seen = GREATEST(last_seen, $2)
		WHERE entity_id = $3`
}

func (d *PostgresDialect) HourBucketSQL(column string) string {
	return "substr(" + column + ", 1, 13)"
}
