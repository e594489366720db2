package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/casetrail/casetrail/internal/model"
)

// EventLink is one event↔entity association row.
type EventLink struct {
	EventPK  int64
	EntityID int64
}

// TimelineRow is one export row: an event joined with its run's provenance.
type TimelineRow struct {
	Event     *model.Event
	QueryName string
	TimeStart string
	TimeEnd   string
}

// SourceCoverage summarizes one source system's observed window.
type SourceCoverage struct {
	SourceSystem string `json:"source_system"`
	FirstEvent   string `json:"first_event"`
	LastEvent    string `json:"last_event"`
	EventCount   int64  `json:"event_count"`
	ActiveHours  int64  `json:"active_hours"`
}

// CountEvents returns the number of events stored for a case.
func (db *CaseStore) CountEvents(ctx context.Context, caseID string) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(event_pk) FROM events WHERE case_id = "+db.ph(1), caseID).Scan(&n)
	return n, err
}

// EventsByTime returns the case's events ordered by event_ts then event_pk,
// the stable stream export and the UI grid consume. limit <= 0 means no
// limit.
func (db *CaseStore) EventsByTime(ctx context.Context, caseID string, limit, offset int) ([]*model.Event, error) {
	query := "SELECT event_pk, " + quotedEventColumns(db.dialect) +
		" FROM events WHERE case_id = " + db.ph(1) + " ORDER BY event_ts, event_pk"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", offset)
		}
	}
	rows, err := db.conn.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsByRun returns a run's events ordered by event_ts then event_pk.
func (db *CaseStore) EventsByRun(ctx context.Context, caseID, runID string) ([]*model.Event, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT event_pk, "+quotedEventColumns(db.dialect)+
			" FROM events WHERE case_id = "+db.ph(1)+" AND run_id = "+db.ph(2)+
			" ORDER BY event_ts, event_pk",
		caseID, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// TimelineRows streams the case's events joined with run provenance, ordered
// by event_ts, for the export boundary.
func (db *CaseStore) TimelineRows(ctx context.Context, caseID string) ([]*TimelineRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT e.event_pk, "+prefixedEventColumns(db.dialect, "e")+
			", q.query_name, q.time_start, q.time_end"+
			" FROM events e JOIN query_runs q ON e.run_id = q.run_id"+
			" WHERE e.case_id = "+db.ph(1)+
			" ORDER BY e.event_ts, e.event_pk",
		caseID)
	if err != nil {
		return nil, fmt.Errorf("querying timeline: %w", err)
	}
	defer rows.Close()

	var out []*TimelineRow
	for rows.Next() {
		holder, ptrs := eventScanHolder()
		var queryName, timeStart, timeEnd sql.NullString
		ptrs = append(ptrs, &queryName, &timeStart, &timeEnd)
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning timeline row: %w", err)
		}
		out = append(out, &TimelineRow{
			Event:     holder.event(),
			QueryName: queryName.String,
			TimeStart: timeStart.String,
			TimeEnd:   timeEnd.String,
		})
	}
	return out, rows.Err()
}

// EntityByValue returns one entity, or nil when the case has not observed
// it.
func (db *CaseStore) EntityByValue(ctx context.Context, caseID, entityType, entityValue string) (*model.Entity, error) {
	rows, err := db.conn.QueryContext(ctx,
		entitySelect+" WHERE case_id = "+db.ph(1)+" AND entity_type = "+db.ph(2)+" AND entity_value = "+db.ph(3),
		caseID, entityType, entityValue)
	if err != nil {
		return nil, fmt.Errorf("querying entity: %w", err)
	}
	defer rows.Close()
	ents, err := scanEntities(rows)
	if err != nil || len(ents) == 0 {
		return nil, err
	}
	return ents[0], nil
}

// Entities returns the case's entities of one type (or all types when
// entityType is ""), ordered by value.
func (db *CaseStore) Entities(ctx context.Context, caseID, entityType string) ([]*model.Entity, error) {
	query := entitySelect + " WHERE case_id = " + db.ph(1)
	args := []any{caseID}
	if entityType != "" {
		query += " AND entity_type = " + db.ph(2)
		args = append(args, entityType)
	}
	query += " ORDER BY entity_type, entity_value"
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// EntitiesByID returns the named entities keyed by id.
func (db *CaseStore) EntitiesByID(ctx context.Context, caseID string, ids []int64) (map[int64]*model.Entity, error) {
	if len(ids) == 0 {
		return map[int64]*model.Entity{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, caseID)
	for i, id := range ids {
		placeholders[i] = db.ph(i + 2)
		args = append(args, id)
	}
	rows, err := db.conn.QueryContext(ctx,
		entitySelect+" WHERE case_id = "+db.ph(1)+" AND entity_id IN ("+strings.Join(placeholders, ", ")+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities by id: %w", err)
	}
	defer rows.Close()
	ents, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*model.Entity, len(ents))
	for _, e := range ents {
		out[e.EntityID] = e
	}
	return out, nil
}

// SeedLinks returns every event↔entity link on events that include the seed
// entity, in (event_pk, entity_id) order. The graph builder derives its
// one-hop co-occurrence counts from this set.
func (db *CaseStore) SeedLinks(ctx context.Context, caseID string, seedEntityID int64) ([]EventLink, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ee2.event_pk, ee2.entity_id
		 FROM event_entities ee1
		 JOIN event_entities ee2 ON ee2.event_pk = ee1.event_pk
		 JOIN events e ON e.event_pk = ee1.event_pk
		 WHERE ee1.entity_id = `+db.ph(1)+` AND e.case_id = `+db.ph(2)+`
		 ORDER BY ee2.event_pk, ee2.entity_id`,
		seedEntityID, caseID)
	if err != nil {
		return nil, fmt.Errorf("querying seed links: %w", err)
	}
	defer rows.Close()

	var links []EventLink
	for rows.Next() {
		var l EventLink
		if err := rows.Scan(&l.EventPK, &l.EntityID); err != nil {
			return nil, fmt.Errorf("scanning link row: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// EntityEventCounts returns case-wide linked-event counts for the named
// entities.
func (db *CaseStore) EntityEventCounts(ctx context.Context, caseID string, ids []int64) (map[int64]int64, error) {
	if len(ids) == 0 {
		return map[int64]int64{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, caseID)
	for i, id := range ids {
		placeholders[i] = db.ph(i + 2)
		args = append(args, id)
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ee.entity_id, COUNT(ee.event_pk)
		 FROM event_entities ee
		 JOIN entities en ON en.entity_id = ee.entity_id
		 WHERE en.case_id = `+db.ph(1)+` AND ee.entity_id IN (`+strings.Join(placeholders, ", ")+`)
		 GROUP BY ee.entity_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying entity event counts: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// EventTime is one (event_ts, source_system) observation for coverage math.
type EventTime struct {
	TS     string
	Source string
}

// EventTimes returns the case's event timestamps in ascending order,
// optionally filtered to one source system.
func (db *CaseStore) EventTimes(ctx context.Context, caseID, source string) ([]EventTime, error) {
	query := "SELECT event_ts, COALESCE(source_system, '') FROM events WHERE case_id = " + db.ph(1)
	args := []any{caseID}
	if source != "" {
		query += " AND source_system = " + db.ph(2)
		args = append(args, source)
	}
	query += " ORDER BY event_ts"
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event times: %w", err)
	}
	defer rows.Close()

	var out []EventTime
	for rows.Next() {
		var et EventTime
		if err := rows.Scan(&et.TS, &et.Source); err != nil {
			return nil, fmt.Errorf("scanning event time: %w", err)
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

// SourceCoverages summarizes each source system's observed window and
// per-hour activity, ordered by first event.
func (db *CaseStore) SourceCoverages(ctx context.Context, caseID string) ([]SourceCoverage, error) {
	hour := db.dialect.HourBucketSQL("event_ts")
	rows, err := db.conn.QueryContext(ctx,
		`SELECT COALESCE(source_system, ''), MIN(event_ts), MAX(event_ts),
			COUNT(event_pk), COUNT(DISTINCT `+hour+`)
		 FROM events WHERE case_id = `+db.ph(1)+`
		 GROUP BY source_system ORDER BY MIN(event_ts)`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("querying source coverage: %w", err)
	}
	defer rows.Close()

	var out []SourceCoverage
	for rows.Next() {
		var sc SourceCoverage
		if err := rows.Scan(&sc.SourceSystem, &sc.FirstEvent, &sc.LastEvent, &sc.EventCount, &sc.ActiveHours); err != nil {
			return nil, fmt.Errorf("scanning coverage row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// EventFields returns an event's sparse extra fields in name order.
func (db *CaseStore) EventFields(ctx context.Context, eventPK int64) ([]model.ExtraField, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT field_name, COALESCE(field_value, '') FROM event_fields WHERE event_pk = "+db.ph(1)+" ORDER BY field_name",
		eventPK)
	if err != nil {
		return nil, fmt.Errorf("querying event fields: %w", err)
	}
	defer rows.Close()

	var out []model.ExtraField
	for rows.Next() {
		var f model.ExtraField
		if err := rows.Scan(&f.Name, &f.Value); err != nil {
			return nil, fmt.Errorf("scanning event field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateEntityNotes sets the analyst-owned notes and tags on an entity,
// independent of ingestion.
func (db *CaseStore) UpdateEntityNotes(ctx context.Context, caseID, entityType, entityValue, notes, tags string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE entities SET notes = "+db.ph(1)+", tags = "+db.ph(2)+
			" WHERE case_id = "+db.ph(3)+" AND entity_type = "+db.ph(4)+" AND entity_value = "+db.ph(5),
		notes, tags, caseID, entityType, entityValue)
	if err != nil {
		return &SchemaWriteError{Op: "update entity notes", Cause: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown entity %s:%s", entityType, entityValue)
	}
	return nil
}

const entitySelect = `SELECT entity_id, case_id, entity_type, entity_value,
	COALESCE(first_seen, ''), COALESCE(last_seen, ''), COALESCE(notes, ''), COALESCE(tags, '') FROM entities`

func scanEntities(rows *sql.Rows) ([]*model.Entity, error) {
	var ents []*model.Entity
	for rows.Next() {
		e := &model.Entity{}
		if err := rows.Scan(&e.EntityID, &e.CaseID, &e.Type, &e.Value, &e.FirstSeen, &e.LastSeen, &e.Notes, &e.Tags); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		ents = append(ents, e)
	}
	return ents, rows.Err()
}

func prefixedEventColumns(d Dialect, alias string) string {
	quoted := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		quoted[i] = alias + "." + d.QuoteColumn(c)
	}
	return strings.Join(quoted, ", ")
}
