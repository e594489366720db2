// Package graph builds one-hop co-occurrence graphs around a seed entity.
// Two entities co-occur when they are linked to the same event; edge weight
// is the number of shared events.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/casetrail/casetrail/internal/database"
)

// Node is one entity in the pivot graph. EventCount is the entity's
// case-wide linked-event total, not just events shared with the seed.
type Node struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	EventCount int64  `json:"event_count"`
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
	Seed       bool   `json:"seed,omitempty"`
}

// Edge connects the seed's neighborhood. EdgeType pairs the endpoint entity
// types, e.g. "host-ip".
type Edge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Weight   int64  `json:"weight"`
	EdgeType string `json:"edge_type"`
}

// Graph is a seed entity's one-hop neighborhood.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Truncated is set when the node cap dropped nodes.
	Truncated bool `json:"truncated,omitempty"`
}

// Params tunes graph construction.
type Params struct {
	// MaxNodes caps the graph size; the seed always survives. <= 0 means
	// DefaultMaxNodes.
	MaxNodes int
	// MinEdgeWeight drops edges with fewer shared events. <= 0 means 1.
	MinEdgeWeight int64
}

const DefaultMaxNodes = 50

// Builder derives pivot graphs from a case store.
type Builder struct {
	Store *database.CaseStore
}

// Build returns the one-hop graph around the seed entity. Nodes are ordered
// by event count descending then id; when the cap bites, the lowest-count
// nodes go first and their edges with them.
func (b *Builder) Build(ctx context.Context, caseID, entityType, entityValue string, p Params) (*Graph, error) {
	if p.MaxNodes <= 0 {
		p.MaxNodes = DefaultMaxNodes
	}
	if p.MinEdgeWeight <= 0 {
		p.MinEdgeWeight = 1
	}

	seed, err := b.Store.EntityByValue(ctx, caseID, entityType, entityValue)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, fmt.Errorf("unknown entity %s:%s", entityType, entityValue)
	}

	links, err := b.Store.SeedLinks(ctx, caseID, seed.EntityID)
	if err != nil {
		return nil, err
	}

	// Group co-occurring entity ids per shared event, then count pairs.
	byEvent := make(map[int64][]int64)
	idSet := map[int64]bool{seed.EntityID: true}
	for _, l := range links {
		byEvent[l.EventPK] = append(byEvent[l.EventPK], l.EntityID)
		idSet[l.EntityID] = true
	}
	type pair struct{ a, b int64 }
	weights := make(map[pair]int64)
	for _, ids := range byEvent {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, bID := ids[i], ids[j]
				if a > bID {
					a, bID = bID, a
				}
				weights[pair{a, bID}]++
			}
		}
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	entities, err := b.Store.EntitiesByID(ctx, caseID, ids)
	if err != nil {
		return nil, err
	}
	counts, err := b.Store.EntityEventCounts(ctx, caseID, ids)
	if err != nil {
		return nil, err
	}

	g := &Graph{}
	nodeByID := make(map[int64]string, len(entities))
	for _, id := range ids {
		ent := entities[id]
		if ent == nil {
			continue
		}
		nid := ent.Type + ":" + ent.Value
		nodeByID[id] = nid
		g.Nodes = append(g.Nodes, Node{
			ID:         nid,
			Label:      ent.Value,
			Type:       ent.Type,
			EventCount: counts[id],
			FirstSeen:  ent.FirstSeen,
			LastSeen:   ent.LastSeen,
			Seed:       id == seed.EntityID,
		})
	}
	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].EventCount != g.Nodes[j].EventCount {
			return g.Nodes[i].EventCount > g.Nodes[j].EventCount
		}
		return g.Nodes[i].ID < g.Nodes[j].ID
	})

	if len(g.Nodes) > p.MaxNodes {
		g.Truncated = true
		kept := make([]Node, 0, p.MaxNodes)
		var seedNode *Node
		for i := range g.Nodes {
			if g.Nodes[i].Seed {
				seedNode = &g.Nodes[i]
				break
			}
		}
		for i := range g.Nodes {
			if len(kept) == p.MaxNodes {
				break
			}
			if g.Nodes[i].Seed {
				continue
			}
			kept = append(kept, g.Nodes[i])
		}
		// Seed always survives truncation.
		if seedNode != nil {
			kept = append(kept[:p.MaxNodes-1], *seedNode)
			sort.Slice(kept, func(i, j int) bool {
				if kept[i].EventCount != kept[j].EventCount {
					return kept[i].EventCount > kept[j].EventCount
				}
				return kept[i].ID < kept[j].ID
			})
		}
		g.Nodes = kept
	}

	surviving := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		surviving[n.ID] = n.Type
	}
	for pr, w := range weights {
		if w < p.MinEdgeWeight {
			continue
		}
		src, ok1 := nodeByID[pr.a]
		dst, ok2 := nodeByID[pr.b]
		if !ok1 || !ok2 {
			continue
		}
		srcType, ok1 := surviving[src]
		dstType, ok2 := surviving[dst]
		if !ok1 || !ok2 {
			continue
		}
		g.Edges = append(g.Edges, Edge{
			Source:   src,
			Target:   dst,
			Weight:   w,
			EdgeType: edgeType(srcType, dstType),
		})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Weight != g.Edges[j].Weight {
			return g.Edges[i].Weight > g.Edges[j].Weight
		}
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
	return g, nil
}

// edgeType joins the endpoint types in sorted order so "host-ip" and
// "ip-host" collapse.
func edgeType(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}
