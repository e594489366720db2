package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/casetrail/casetrail/internal/database"
	"github.com/casetrail/casetrail/internal/model"
)

func newTestStore(t *testing.T) *database.CaseStore {
	t.Helper()
	store, err := database.Create("sqlite", filepath.Join(t.TempDir(), "case.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.CreateCase(ctx, &model.Case{CaseID: "CASE-1", Title: "t", CreatedAt: "2026-03-01T00:00:00Z"}); err != nil {
		t.Fatalf("creating case: %v", err)
	}
	if err := store.InsertRun(ctx, &model.QueryRun{
		RunID: "run-1", CaseID: "CASE-1", SourceSystem: "splunk",
		ExecutedAt: "2026-03-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("creating run: %v", err)
	}
	return store
}

// linkEvent inserts one event and links it to the given entities.
func linkEvent(t *testing.T, tx *database.IngestTx, i int, entities map[string]string) {
	t.Helper()
	ctx := context.Background()
	ts := fmt.Sprintf("2026-03-01T10:%02d:00Z", i%60)
	pk, dup, err := tx.InsertOrGetEvent(ctx, &model.Event{
		CaseID: "CASE-1", RunID: "run-1",
		EventTS: ts, EventType: "test",
		Fingerprint: fmt.Sprintf("fp-%d", i),
	})
	if err != nil || dup {
		t.Fatalf("inserting event %d: dup=%v err=%v", i, dup, err)
	}
	for etype, value := range entities {
		id, err := tx.UpsertEntity(ctx, "CASE-1", etype, value, ts)
		if err != nil {
			t.Fatalf("upserting %s:%s: %v", etype, value, err)
		}
		if err := tx.LinkEntity(ctx, pk, id); err != nil {
			t.Fatalf("linking %s:%s: %v", etype, value, err)
		}
	}
}

func findNode(g *Graph, id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

func TestBuildNeighborhood(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tx, err := store.BeginIngest(ctx, "CASE-1")
	if err != nil {
		t.Fatal(err)
	}
	// WS1 shares two events with 10.0.0.5 and one with alice;
	// WS2 is unrelated to WS1.
	linkEvent(t, tx, 0, map[string]string{"host": "WS1", "ip": "10.0.0.5"})
	linkEvent(t, tx, 1, map[string]string{"host": "WS1", "ip": "10.0.0.5"})
	linkEvent(t, tx, 2, map[string]string{"host": "WS1", "user": "alice"})
	linkEvent(t, tx, 3, map[string]string{"host": "WS2", "user": "alice"})
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	b := &Builder{Store: store}
	g, err := b.Build(ctx, "CASE-1", "host", "WS1", Params{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// One hop from WS1: WS1, 10.0.0.5, alice. WS2 never shares an event
	// with WS1 and must not appear.
	if len(g.Nodes) != 3 {
		t.Fatalf("got %d nodes: %+v", len(g.Nodes), g.Nodes)
	}
	if findNode(g, "host:WS2") != nil {
		t.Fatal("two-hop node leaked into the graph")
	}
	seed := findNode(g, "host:WS1")
	if seed == nil || !seed.Seed || seed.EventCount != 3 {
		t.Fatalf("seed node: %+v", seed)
	}
	// alice's count is case-wide (2 events), not seed-shared (1).
	alice := findNode(g, "user:alice")
	if alice == nil || alice.EventCount != 2 {
		t.Fatalf("alice node: %+v", alice)
	}

	if len(g.Edges) != 2 {
		t.Fatalf("got %d edges: %+v", len(g.Edges), g.Edges)
	}
	// Heaviest edge first.
	if g.Edges[0].Weight != 2 || g.Edges[0].EdgeType != "host-ip" {
		t.Fatalf("edge 0: %+v", g.Edges[0])
	}
	if g.Edges[1].Weight != 1 || g.Edges[1].EdgeType != "host-user" {
		t.Fatalf("edge 1: %+v", g.Edges[1])
	}
}

func TestBuildMinEdgeWeight(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tx, err := store.BeginIngest(ctx, "CASE-1")
	if err != nil {
		t.Fatal(err)
	}
	linkEvent(t, tx, 0, map[string]string{"host": "WS1", "ip": "10.0.0.5"})
	linkEvent(t, tx, 1, map[string]string{"host": "WS1", "ip": "10.0.0.5"})
	linkEvent(t, tx, 2, map[string]string{"host": "WS1", "user": "alice"})
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	b := &Builder{Store: store}
	g, err := b.Build(ctx, "CASE-1", "host", "WS1", Params{MinEdgeWeight: 2})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(g.Edges) != 1 || g.Edges[0].EdgeType != "host-ip" {
		t.Fatalf("weak edge survived: %+v", g.Edges)
	}
}

func TestBuildTruncationKeepsSeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tx, err := store.BeginIngest(ctx, "CASE-1")
	if err != nil {
		t.Fatal(err)
	}
	// Seed user with 80 co-occurring hosts; host-i appears in i+1 events
	// so the seed's own count stays low relative to the heavy hosts.
	event := 0
	for i := 0; i < 80; i++ {
		host := fmt.Sprintf("WS%03d", i)
		for j := 0; j <= i%5; j++ {
			linkEvent(t, tx, event, map[string]string{"user": "seeduser", "host": host})
			event++
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	b := &Builder{Store: store}
	g, err := b.Build(ctx, "CASE-1", "user", "seeduser", Params{MaxNodes: 50})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !g.Truncated {
		t.Fatal("truncation not flagged")
	}
	if len(g.Nodes) != 50 {
		t.Fatalf("got %d nodes", len(g.Nodes))
	}
	seed := findNode(g, "user:seeduser")
	if seed == nil || !seed.Seed {
		t.Fatal("seed dropped by truncation")
	}
	// Every edge endpoint survives in the node set.
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	for _, e := range g.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			t.Fatalf("dangling edge: %+v", e)
		}
	}
}

func TestBuildUnknownSeed(t *testing.T) {
	store := newTestStore(t)
	b := &Builder{Store: store}
	if _, err := b.Build(context.Background(), "CASE-1", "host", "NOPE", Params{}); err == nil {
		t.Fatal("expected error for unknown seed")
	}
}
