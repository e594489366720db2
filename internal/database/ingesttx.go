package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/casetrail/casetrail/internal/model"
)

// IngestTx is the single write transaction of one ingestion run. It holds
// the case write lock from BeginIngest until Commit or Rollback, so at most
// one run writes to a case at a time; concurrent readers are unaffected.
type IngestTx struct {
	db   *CaseStore
	tx   *sql.Tx
	lock *sync.Mutex
	done bool
}

// BeginIngest acquires the case write lock and opens the run transaction.
// Ingested duplicates inside the transaction are skips, not errors; anything
// the tx methods return as a SchemaWriteError must abort the run.
func (db *CaseStore) BeginIngest(ctx context.Context, caseID string) (*IngestTx, error) {
	lock := db.caseLock(caseID)
	lock.Lock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	return &IngestTx{db: db, tx: tx, lock: lock}, nil
}

// Commit commits the run's writes and releases the case write lock.
func (t *IngestTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.lock.Unlock()
	if err := t.tx.Commit(); err != nil {
		return &SchemaWriteError{Op: "commit", Cause: err}
	}
	return nil
}

// Rollback discards every write of the run and releases the lock. Safe to
// call after Commit (no-op), so callers can defer it.
func (t *IngestTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.tx.Rollback()
	t.lock.Unlock()
}

func (t *IngestTx) ph(i int) string { return t.db.dialect.Placeholder(i) }

// InsertOrGetEvent inserts a canonical event or returns the already-stored
// copy's key. The dedup identity is the native triple
// (case_id, source_system, source_event_id) when the source supplied an ID,
// the content fingerprint otherwise. Callers branch on wasDuplicate; a
// duplicate is never an error.
func (t *IngestTx) InsertOrGetEvent(ctx context.Context, e *model.Event) (eventPK int64, wasDuplicate bool, err error) {
	var existing sql.NullInt64
	if e.SourceEventID != "" {
		err = t.tx.QueryRowContext(ctx,
			"SELECT event_pk FROM events WHERE case_id = "+t.ph(1)+
				" AND source_system = "+t.ph(2)+" AND source_event_id = "+t.ph(3),
			e.CaseID, e.SourceSystem, e.SourceEventID,
		).Scan(&existing)
	} else {
		err = t.tx.QueryRowContext(ctx,
			"SELECT event_pk FROM events WHERE case_id = "+t.ph(1)+" AND fingerprint = "+t.ph(2),
			e.CaseID, e.Fingerprint,
		).Scan(&existing)
	}
	switch {
	case err == nil:
		return existing.Int64, true, nil
	case err != sql.ErrNoRows:
		return 0, false, &SchemaWriteError{Op: "event lookup", Cause: err}
	}

	err = t.tx.QueryRowContext(ctx, t.db.dialect.InsertEventSQL(), eventArgs(e)...).Scan(&eventPK)
	if err != nil {
		return 0, false, &SchemaWriteError{Op: "insert event", Cause: err}
	}
	return eventPK, false, nil
}

// InsertEventField stores one sparse extra field for an event.
func (t *IngestTx) InsertEventField(ctx context.Context, eventPK int64, name, value string) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO event_fields (event_pk, field_name, field_value) VALUES ("+
			t.ph(1)+", "+t.ph(2)+", "+t.ph(3)+")",
		eventPK, name, value)
	if err != nil {
		return &SchemaWriteError{Op: "insert event field", Cause: err}
	}
	return nil
}

// UpsertEntity creates the entity on first observation and widens its
// first_seen/last_seen bounds on every later one. Widening uses scalar
// min/max so out-of-order ingestion still converges on correct bounds.
func (t *IngestTx) UpsertEntity(ctx context.Context, caseID, entityType, entityValue, eventTS string) (int64, error) {
	var entityID int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT entity_id FROM entities WHERE case_id = "+t.ph(1)+
			" AND entity_type = "+t.ph(2)+" AND entity_value = "+t.ph(3),
		caseID, entityType, entityValue,
	).Scan(&entityID)

	switch {
	case err == sql.ErrNoRows:
		err = t.tx.QueryRowContext(ctx,
			"INSERT INTO entities (case_id, entity_type, entity_value, first_seen, last_seen) VALUES ("+
				t.ph(1)+", "+t.ph(2)+", "+t.ph(3)+", "+t.ph(4)+", "+t.ph(5)+") RETURNING entity_id",
			caseID, entityType, entityValue, eventTS, eventTS,
		).Scan(&entityID)
		if err != nil {
			return 0, &SchemaWriteError{Op: "insert entity", Cause: err}
		}
		return entityID, nil
	case err != nil:
		return 0, &SchemaWriteError{Op: "entity lookup", Cause: err}
	}

	if _, err := t.tx.ExecContext(ctx, t.db.dialect.WidenEntitySQL(), eventTS, eventTS, entityID); err != nil {
		return 0, &SchemaWriteError{Op: "widen entity", Cause: err}
	}
	return entityID, nil
}

// LinkEntity records the event↔entity association. Linking the same pair
// twice (one event carrying the same value in two entity columns) is a
// no-op.
func (t *IngestTx) LinkEntity(ctx context.Context, eventPK, entityID int64) error {
	var one int
	err := t.tx.QueryRowContext(ctx,
		"SELECT 1 FROM event_entities WHERE event_pk = "+t.ph(1)+" AND entity_id = "+t.ph(2),
		eventPK, entityID,
	).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return &SchemaWriteError{Op: "link lookup", Cause: err}
	}
	_, err = t.tx.ExecContext(ctx,
		"INSERT INTO event_entities (event_pk, entity_id) VALUES ("+t.ph(1)+", "+t.ph(2)+")",
		eventPK, entityID)
	if err != nil {
		return &SchemaWriteError{Op: "link entity", Cause: err}
	}
	return nil
}

// MarkRunIngested transitions the run to Committed state metadata: final
// row_count and the ingestion timestamp. Runs are immutable afterward.
func (t *IngestTx) MarkRunIngested(ctx context.Context, runID string, rowCount int64, ingestedAt string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE query_runs SET row_count = "+t.ph(1)+", ingested_at = "+t.ph(2)+" WHERE run_id = "+t.ph(3),
		rowCount, ingestedAt, runID)
	if err != nil {
		return &SchemaWriteError{Op: "mark run ingested", Cause: err}
	}
	return nil
}
