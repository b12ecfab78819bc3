package flowgraph

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// NewEdge builds an edge with a fresh id.
func NewEdge(source, target string) *Edge {
	return &Edge{
		ID:     "edge-" + uuid.NewString(),
		Source: source,
		Target: target,
	}
}

// EdgeManager creates, deletes and queries the edges of a Graph.
// Queries scan the full edge list on every call.
type EdgeManager struct {
	logger *Logger
}

// NewEdgeManager creates an EdgeManager. A nil logger falls back to DefaultLogger.
func NewEdgeManager(logger *Logger) *EdgeManager {
	if logger == nil {
		logger = DefaultLogger("[EdgeManager]")
	}
	return &EdgeManager{logger: logger}
}

// AddEdge appends an edge from source to target and returns its id.
// If an edge with the same (source, target) already exists nothing changes
// and ok is false.
func (m *EdgeManager) AddEdge(g *Graph, source, target string) (id string, ok bool) {
	m.logger.Log(fmt.Sprintf("add edge source=%s, target=%s", source, target))

	exists := slices.ContainsFunc(g.Edges, func(e *Edge) bool {
		return e.Source == source && e.Target == target
	})
	if exists {
		m.logger.Warn(fmt.Sprintf("edge already exists source=%s, target=%s", source, target))
		return "", false
	}

	e := NewEdge(source, target)
	g.Edges = append(g.Edges, e)
	m.logger.Log(fmt.Sprintf("edge added id=%s, count=%d", e.ID, len(g.Edges)))
	return e.ID, true
}

// RemoveEdge deletes the edge with the given id. Returns whether anything was removed.
func (m *EdgeManager) RemoveEdge(g *Graph, edgeID string) bool {
	m.logger.Log("remove edge id=" + edgeID)

	idx := slices.IndexFunc(g.Edges, func(e *Edge) bool { return e.ID == edgeID })
	if idx == -1 {
		m.logger.Warn("edge to remove not found id=" + edgeID)
		return false
	}

	removed := g.Edges[idx]
	g.Edges = slices.Delete(g.Edges, idx, idx+1)
	m.logger.Log(fmt.Sprintf("edge removed id=%s, source=%s, target=%s, count=%d",
		edgeID, removed.Source, removed.Target, len(g.Edges)))
	return true
}

// IncomingEdges returns the edges entering nodeID in insertion order.
func (m *EdgeManager) IncomingEdges(g *Graph, nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges leaving nodeID in insertion order. For a
// conditional node that order is the branch order: if, elif..., else.
func (m *EdgeManager) OutgoingEdges(g *Graph, nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// SourceNodeIDs returns the source ids of the edges entering targetID.
func (m *EdgeManager) SourceNodeIDs(g *Graph, targetID string) []string {
	var ids []string
	for _, e := range m.IncomingEdges(g, targetID) {
		ids = append(ids, e.Source)
	}
	return ids
}

// TargetNodeIDs returns the target ids of the edges leaving sourceID.
func (m *EdgeManager) TargetNodeIDs(g *Graph, sourceID string) []string {
	var ids []string
	for _, e := range m.OutgoingEdges(g, sourceID) {
		ids = append(ids, e.Target)
	}
	return ids
}

// HasPath reports whether endID is reachable from startID by following
// outgoing edges. A node only reaches itself through a self-loop edge.
// A visited set bounds the search by the node count on cyclic graphs.
func (m *EdgeManager) HasPath(g *Graph, startID, endID string) bool {
	m.logger.Log(fmt.Sprintf("check path from %s to %s", startID, endID))

	if startID == endID {
		return slices.ContainsFunc(g.Edges, func(e *Edge) bool {
			return e.Source == startID && e.Target == startID
		})
	}

	visited := make(map[string]bool)

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, e := range g.Edges {
			if e.Source != id {
				continue
			}
			if e.Target == endID || dfs(e.Target) {
				return true
			}
		}
		return false
	}

	found := dfs(startID)
	m.logger.Log(fmt.Sprintf("path from %s to %s: %t", startID, endID, found))
	return found
}
