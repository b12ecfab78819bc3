package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meikuraledutech/flowgraph"
)

// insertNodes writes the nodes of a workflow, keeping slice order in position.
// The whole node, config and run state included, is stored in data.
func insertNodes(ctx context.Context, q Querier, workflowID string, nodes []flowgraph.Node) error {
	for i, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("flowgraph: encode node %s: %w", n.ID, err)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO workflow_nodes (workflow_id, id, position, type, data) VALUES ($1, $2, $3, $4, $5)`,
			workflowID, n.ID, i, string(n.Type), data,
		); err != nil {
			return fmt.Errorf("flowgraph: insert node %s: %w", n.ID, err)
		}
	}
	return nil
}

// listNodes returns the nodes of a workflow in creation order.
// Returns an empty slice (not nil) if none found.
func listNodes(ctx context.Context, q Querier, workflowID string) ([]flowgraph.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT id, data FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []flowgraph.Node{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("flowgraph: scan node: %w", err)
		}
		var n flowgraph.Node
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("flowgraph: decode node %s: %w", id, err)
		}
		n.ID = id
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowgraph: rows nodes: %w", err)
	}

	return nodes, nil
}
