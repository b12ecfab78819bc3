package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meikuraledutech/flowgraph"
)

// edgeData is the part of an edge stored in the data column.
type edgeData struct {
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// insertEdges writes the edges of a workflow. Position keeps insertion
// order, which is the branch order of conditional nodes.
func insertEdges(ctx context.Context, q Querier, workflowID string, edges []flowgraph.Edge) error {
	for i, e := range edges {
		data, err := json.Marshal(edgeData{
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
			Label:        e.Label,
		})
		if err != nil {
			return fmt.Errorf("flowgraph: encode edge %s: %w", e.ID, err)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO workflow_edges (workflow_id, id, position, source, target, data) VALUES ($1, $2, $3, $4, $5, $6)`,
			workflowID, e.ID, i, e.Source, e.Target, data,
		); err != nil {
			return fmt.Errorf("flowgraph: insert edge %s: %w", e.ID, err)
		}
	}
	return nil
}

// listEdges returns the edges of a workflow in insertion order.
// Returns an empty slice (not nil) if none found.
func listEdges(ctx context.Context, q Querier, workflowID string) ([]flowgraph.Edge, error) {
	rows, err := q.Query(ctx,
		`SELECT id, source, target, data FROM workflow_edges WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: query edges: %w", err)
	}
	defer rows.Close()

	edges := []flowgraph.Edge{}
	for rows.Next() {
		var (
			e    flowgraph.Edge
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &data); err != nil {
			return nil, fmt.Errorf("flowgraph: scan edge: %w", err)
		}
		if len(data) > 0 {
			var d edgeData
			if err := json.Unmarshal(data, &d); err != nil {
				return nil, fmt.Errorf("flowgraph: decode edge %s: %w", e.ID, err)
			}
			e.SourceHandle, e.TargetHandle, e.Label = d.SourceHandle, d.TargetHandle, d.Label
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowgraph: rows edges: %w", err)
	}

	return edges, nil
}
