package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/casetrail/casetrail/internal/model"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "case.db")
}

func createTestStore(t *testing.T) *CaseStore {
	t.Helper()
	db, err := Create("sqlite", tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestCase(t *testing.T, db *CaseStore, caseID string) {
	t.Helper()
	err := db.CreateCase(context.Background(), &model.Case{
		CaseID:    caseID,
		Title:     "test case",
		CreatedAt: "2026-03-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
}

func sampleRun(caseID, runID string) *model.QueryRun {
	return &model.QueryRun{
		RunID:        runID,
		CaseID:       caseID,
		SourceSystem: "splunk",
		QueryName:    "auth failures",
		QueryText:    "index=auth action=failure",
		ExecutedAt:   "2026-03-01T12:00:00Z",
		TimeStart:    "2026-03-01T00:00:00Z",
		TimeEnd:      "2026-03-01T12:00:00Z",
		RawPath:      "/cases/test/raw/splunk/" + runID + ".csv",
		FileHash:     "hash-" + runID,
	}
}

func sampleEvent(caseID, runID string) *model.Event {
	return &model.Event{
		CaseID:       caseID,
		RunID:        runID,
		EventTS:      "2026-03-01T10:30:00Z",
		SourceSystem: "splunk",
		EventType:    "authentication",
		Host:         "WORKSTATION1",
		User:         "admin",
		SrcIP:        "10.0.0.5",
		Outcome:      "failure",
		Message:      "failed login",
		Fingerprint:  "fp-1",
	}
}

func createTestRun(t *testing.T, db *CaseStore, caseID, runID string) {
	t.Helper()
	if err := db.InsertRun(context.Background(), sampleRun(caseID, runID)); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
}

func beginTestIngest(t *testing.T, db *CaseStore, caseID string) *IngestTx {
	t.Helper()
	tx, err := db.BeginIngest(context.Background(), caseID)
	if err != nil {
		t.Fatalf("BeginIngest failed: %v", err)
	}
	return tx
}

func TestCreateAndOpen(t *testing.T) {
	path := tempDBPath(t)

	db, err := Create("sqlite", path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	db2, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db2.Close()
}

func TestCaseLifecycle(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")

	c, err := db.GetCase(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if c == nil || c.Title != "test case" {
		t.Fatalf("unexpected case: %+v", c)
	}

	missing, err := db.GetCase(ctx, "NOPE")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown case, got %+v", missing)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")

	run := sampleRun("CASE-1", "run-a")
	if err := db.InsertRun(ctx, run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := db.GetRun(ctx, "CASE-1", "run-a")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil || got.QueryName != "auth failures" {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.IngestedAt != "" || got.RowCount != 0 {
		t.Fatalf("new run should be pending: %+v", got)
	}

	byHash, err := db.FindRunByFileHash(ctx, "CASE-1", "hash-run-a")
	if err != nil {
		t.Fatalf("FindRunByFileHash failed: %v", err)
	}
	if byHash == nil || byHash.RunID != "run-a" {
		t.Fatalf("unexpected run by hash: %+v", byHash)
	}
}

func TestPendingRunsOrder(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")

	late := sampleRun("CASE-1", "run-late")
	late.ExecutedAt = "2026-03-02T00:00:00Z"
	early := sampleRun("CASE-1", "run-early")
	early.ExecutedAt = "2026-03-01T00:00:00Z"
	for _, r := range []*model.QueryRun{late, early} {
		if err := db.InsertRun(ctx, r); err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}

	pending, err := db.PendingRuns(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("PendingRuns failed: %v", err)
	}
	if len(pending) != 2 || pending[0].RunID != "run-early" || pending[1].RunID != "run-late" {
		t.Fatalf("wrong pending order: %+v", pending)
	}

	tx := beginTestIngest(t, db, "CASE-1")
	if err := tx.MarkRunIngested(ctx, "run-early", 10, "2026-03-02T01:00:00Z"); err != nil {
		t.Fatalf("MarkRunIngested failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	pending, err = db.PendingRuns(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("PendingRuns failed: %v", err)
	}
	if len(pending) != 1 || pending[0].RunID != "run-late" {
		t.Fatalf("ingested run still pending: %+v", pending)
	}
}

func TestInsertOrGetEventDedup(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")
	if err := db.InsertRun(ctx, sampleRun("CASE-1", "run-a")); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	tx := beginTestIngest(t, db, "CASE-1")
	pk1, dup, err := tx.InsertOrGetEvent(ctx, sampleEvent("CASE-1", "run-a"))
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if dup || pk1 == 0 {
		t.Fatalf("first insert reported duplicate (pk=%d dup=%v)", pk1, dup)
	}

	// Same fingerprint, different run: must dedup to the same row.
	again := sampleEvent("CASE-1", "run-b")
	pk2, dup, err := tx.InsertOrGetEvent(ctx, again)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if !dup || pk2 != pk1 {
		t.Fatalf("expected duplicate of pk %d, got pk=%d dup=%v", pk1, pk2, dup)
	}

	// Different fingerprint inserts fresh.
	other := sampleEvent("CASE-1", "run-a")
	other.Fingerprint = "fp-2"
	pk3, dup, err := tx.InsertOrGetEvent(ctx, other)
	if err != nil {
		t.Fatalf("third insert failed: %v", err)
	}
	if dup || pk3 == pk1 {
		t.Fatalf("distinct event deduped (pk=%d dup=%v)", pk3, dup)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	n, err := db.CountEvents(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 events, got %d", n)
	}
}

func TestNativeIDDedup(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")
	createTestRun(t, db, "CASE-1", "run-a")

	tx := beginTestIngest(t, db, "CASE-1")
	ev := sampleEvent("CASE-1", "run-a")
	ev.Fingerprint = ""
	ev.SourceEventID = "evt-12345"
	if _, dup, err := tx.InsertOrGetEvent(ctx, ev); err != nil || dup {
		t.Fatalf("first native insert: dup=%v err=%v", dup, err)
	}

	// Same native id, even with different content, is the same occurrence.
	ev2 := sampleEvent("CASE-1", "run-a")
	ev2.Fingerprint = ""
	ev2.SourceEventID = "evt-12345"
	ev2.Message = "different message"
	if _, dup, err := tx.InsertOrGetEvent(ctx, ev2); err != nil || !dup {
		t.Fatalf("native re-insert: dup=%v err=%v", dup, err)
	}

	// Same native id under a different source system is distinct.
	ev3 := sampleEvent("CASE-1", "run-a")
	ev3.Fingerprint = ""
	ev3.SourceEventID = "evt-12345"
	ev3.SourceSystem = "okta"
	if _, dup, err := tx.InsertOrGetEvent(ctx, ev3); err != nil || dup {
		t.Fatalf("cross-source insert: dup=%v err=%v", dup, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestUpsertEntityWidensBounds(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")

	tx := beginTestIngest(t, db, "CASE-1")
	id1, err := tx.UpsertEntity(ctx, "CASE-1", "host", "WS1", "2026-03-01T10:00:00Z")
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Out of order observations must widen both bounds.
	id2, err := tx.UpsertEntity(ctx, "CASE-1", "host", "WS1", "2026-03-01T08:00:00Z")
	if err != nil {
		t.Fatalf("earlier upsert failed: %v", err)
	}
	id3, err := tx.UpsertEntity(ctx, "CASE-1", "host", "WS1", "2026-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("later upsert failed: %v", err)
	}
	if id1 != id2 || id1 != id3 {
		t.Fatalf("entity id changed across upserts: %d %d %d", id1, id2, id3)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	ent, err := db.EntityByValue(ctx, "CASE-1", "host", "WS1")
	if err != nil {
		t.Fatalf("EntityByValue failed: %v", err)
	}
	if ent == nil {
		t.Fatal("entity not found")
	}
	if ent.FirstSeen != "2026-03-01T08:00:00Z" || ent.LastSeen != "2026-03-01T12:00:00Z" {
		t.Fatalf("bounds not widened: first=%s last=%s", ent.FirstSeen, ent.LastSeen)
	}
}

func TestRollbackLeavesStoreUnchanged(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")
	createTestRun(t, db, "CASE-1", "run-a")

	tx := beginTestIngest(t, db, "CASE-1")
	if _, _, err := tx.InsertOrGetEvent(ctx, sampleEvent("CASE-1", "run-a")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	tx.Rollback()

	n, err := db.CountEvents(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("rollback left %d events", n)
	}
}

func TestEventFieldsRoundTrip(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")
	createTestRun(t, db, "CASE-1", "run-a")

	tx := beginTestIngest(t, db, "CASE-1")
	pk, _, err := tx.InsertOrGetEvent(ctx, sampleEvent("CASE-1", "run-a"))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	for _, f := range []struct{ name, value string }{
		{"zeek_uid", "CHhAvVGS1DHFjwGM9"},
		{"app", "sshd"},
	} {
		if err := tx.InsertEventField(ctx, pk, f.name, f.value); err != nil {
			t.Fatalf("InsertEventField(%s) failed: %v", f.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	fields, err := db.EventFields(ctx, pk)
	if err != nil {
		t.Fatalf("EventFields failed: %v", err)
	}
	if len(fields) != 2 || fields[0].Name != "app" || fields[1].Name != "zeek_uid" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestUpdateEntityNotes(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	createTestCase(t, db, "CASE-1")

	tx := beginTestIngest(t, db, "CASE-1")
	if _, err := tx.UpsertEntity(ctx, "CASE-1", "ip", "10.0.0.5", "2026-03-01T10:00:00Z"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := db.UpdateEntityNotes(ctx, "CASE-1", "ip", "10.0.0.5", "known C2", "malicious,confirmed"); err != nil {
		t.Fatalf("UpdateEntityNotes failed: %v", err)
	}
	ent, err := db.EntityByValue(ctx, "CASE-1", "ip", "10.0.0.5")
	if err != nil {
		t.Fatalf("EntityByValue failed: %v", err)
	}
	if ent.Notes != "known C2" || ent.Tags != "malicious,confirmed" {
		t.Fatalf("annotation not persisted: %+v", ent)
	}

	if err := db.UpdateEntityNotes(ctx, "CASE-1", "ip", "1.2.3.4", "x", ""); err == nil {
		t.Fatal("expected error annotating unknown entity")
	}
}
