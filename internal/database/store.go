// Package database is the schema store: the canonical relational layout for
// cases, query runs, events, entities, and their links, plus the query
// surface the derived views (graph, coverage, export) read from. It speaks
// SQLite by default and PostgreSQL through the same Dialect seam.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/casetrail/casetrail/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// indexedEventColumns get a per-case secondary index; they are the pivot
// columns the UI and the derived views filter on.
var indexedEventColumns = []string{
	"event_ts", "host", "user", "src_ip", "dest_ip", "event_type", "source_system",
}

// SchemaWriteError wraps a store write rejected for a reason other than the
// two expected dedup constraints. Always fatal to the run.
type SchemaWriteError struct {
	Op    string
	Cause error
}

func (e *SchemaWriteError) Error() string {
	return fmt.Sprintf("schema write failed (%s): %v", e.Op, e.Cause)
}

func (e *SchemaWriteError) Unwrap() error { return e.Cause }

// CaseStore manages one case database. Writes for a given case are
// serialized through a case-scoped lock (see BeginIngest); reads take no
// lock and see either pre- or post-commit state of an in-flight run.
type CaseStore struct {
	path    string
	conn    *sql.DB
	dialect Dialect

	mu        sync.Mutex
	caseLocks map[string]*sync.Mutex
}

// Open opens an existing case store. driver is "sqlite" or "postgres";
// pathOrConnStr is the database file path or connection string.
func Open(driver, pathOrConnStr string) (*CaseStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(d.DriverName(), d.DSN(pathOrConnStr))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &CaseStore{
		path:      pathOrConnStr,
		conn:      conn,
		dialect:   d,
		caseLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Create opens a case store and builds the full schema if it does not exist.
func Create(driver, pathOrConnStr string) (*CaseStore, error) {
	db, err := Open(driver, pathOrConnStr)
	if err != nil {
		return nil, err
	}
	if err := db.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

func dialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "postgres":
		return &PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

func (db *CaseStore) createSchema() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range db.dialect.CreateSchemaSQL() {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (db *CaseStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the path or connection string the store was opened with.
func (db *CaseStore) Path() string { return db.path }

// Conn exposes the underlying *sql.DB for advanced read queries.
func (db *CaseStore) Conn() *sql.DB { return db.conn }

// caseLock returns the write lock for a case, creating it on first use.
// Locks are per-store-instance; different cases never contend.
func (db *CaseStore) caseLock(caseID string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.caseLocks[caseID]
	if !ok {
		l = &sync.Mutex{}
		db.caseLocks[caseID] = l
	}
	return l
}

func (db *CaseStore) ph(i int) string { return db.dialect.Placeholder(i) }

// CreateCase records a case row; creating an already-existing case is a
// no-op so case setup is idempotent.
func (db *CaseStore) CreateCase(ctx context.Context, c *model.Case) error {
	var err error
	switch db.dialect.(type) {
	case *PostgresDialect:
		_, err = db.conn.ExecContext(ctx,
			"INSERT INTO cases (case_id, title, created_at) VALUES ($1, $2, $3) ON CONFLICT (case_id) DO NOTHING",
			c.CaseID, c.Title, c.CreatedAt)
	default:
		_, err = db.conn.ExecContext(ctx,
			"INSERT OR IGNORE INTO cases (case_id, title, created_at) VALUES (?, ?, ?)",
			c.CaseID, c.Title, c.CreatedAt)
	}
	if err != nil {
		return &SchemaWriteError{Op: "insert case", Cause: err}
	}
	return nil
}

// GetCase returns a case row, or nil when it does not exist.
func (db *CaseStore) GetCase(ctx context.Context, caseID string) (*model.Case, error) {
	var c model.Case
	var title sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT case_id, title, created_at FROM cases WHERE case_id = "+db.ph(1),
		caseID,
	).Scan(&c.CaseID, &title, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying case: %w", err)
	}
	c.Title = title.String
	return &c, nil
}

// InsertRun registers a query run in the Registered state (row_count and
// ingested_at NULL until the run commits).
func (db *CaseStore) InsertRun(ctx context.Context, r *model.QueryRun) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO query_runs (
			run_id, case_id, source_system, query_name, query_text,
			executed_at, time_start, time_end, raw_path, row_count, file_hash, ingested_at
		) VALUES (`+db.ph(1)+`, `+db.ph(2)+`, `+db.ph(3)+`, `+db.ph(4)+`, `+db.ph(5)+`, `+
			db.ph(6)+`, `+db.ph(7)+`, `+db.ph(8)+`, `+db.ph(9)+`, NULL, `+db.ph(10)+`, NULL)`,
		r.RunID, r.CaseID, r.SourceSystem, nullString(r.QueryName), nullString(r.QueryText),
		nullString(r.ExecutedAt), nullString(r.TimeStart), nullString(r.TimeEnd),
		r.RawPath, r.FileHash,
	)
	if err != nil {
		return &SchemaWriteError{Op: "insert run", Cause: err}
	}
	return nil
}

// GetRun returns one run for a case, or nil when it does not exist.
func (db *CaseStore) GetRun(ctx context.Context, caseID, runID string) (*model.QueryRun, error) {
	rows, err := db.conn.QueryContext(ctx,
		runSelect+" WHERE run_id = "+db.ph(1)+" AND case_id = "+db.ph(2),
		runID, caseID)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// PendingRuns returns the case's registered-but-not-ingested runs in
// registration order.
func (db *CaseStore) PendingRuns(ctx context.Context, caseID string) ([]*model.QueryRun, error) {
	rows, err := db.conn.QueryContext(ctx,
		runSelect+" WHERE case_id = "+db.ph(1)+" AND ingested_at IS NULL ORDER BY executed_at, run_id",
		caseID)
	if err != nil {
		return nil, fmt.Errorf("querying pending runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// FindRunByFileHash reports a prior run for the case with the same raw-file
// content hash, or nil. This backs the duplicate-file guard.
func (db *CaseStore) FindRunByFileHash(ctx context.Context, caseID, fileHash string) (*model.QueryRun, error) {
	rows, err := db.conn.QueryContext(ctx,
		runSelect+" WHERE case_id = "+db.ph(1)+" AND file_hash = "+db.ph(2),
		caseID, fileHash)
	if err != nil {
		return nil, fmt.Errorf("querying run by file hash: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

const runSelect = `SELECT run_id, case_id, source_system, query_name, query_text,
	executed_at, time_start, time_end, raw_path, row_count, file_hash, ingested_at
	FROM query_runs`

func scanRuns(rows *sql.Rows) ([]*model.QueryRun, error) {
	var runs []*model.QueryRun
	for rows.Next() {
		r := &model.QueryRun{}
		var queryName, queryText, executedAt, timeStart, timeEnd, rawPath, fileHash, ingestedAt sql.NullString
		var rowCount sql.NullInt64
		err := rows.Scan(&r.RunID, &r.CaseID, &r.SourceSystem, &queryName, &queryText,
			&executedAt, &timeStart, &timeEnd, &rawPath, &rowCount, &fileHash, &ingestedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.QueryName = queryName.String
		r.QueryText = queryText.String
		r.ExecutedAt = executedAt.String
		r.TimeStart = timeStart.String
		r.TimeEnd = timeEnd.String
		r.RawPath = rawPath.String
		r.RowCount = rowCount.Int64
		r.FileHash = fileHash.String
		r.IngestedAt = ingestedAt.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// nullString converts "" to NULL so partial unique indexes and COALESCE
// semantics behave; every optional text column goes through it.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt64 converts 0 to NULL; unified integer columns treat zero as unset.
func nullInt64(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}
