package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/flowgraph"
)

// SaveWorkflow stores a full workflow (nodes + edges) in one transaction.
// A workflow without an ID gets an auto-generated UUID. Existing nodes and
// edges of the workflow are replaced. Returns the stored workflow with its
// ID and timestamps filled in.
func (s *PGStore) SaveWorkflow(ctx context.Context, doc *flowgraph.Document) (*flowgraph.Document, error) {
	out := *doc
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO workflows (id, name, description) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = NOW()
		 RETURNING created_at, updated_at`,
		out.ID, out.Name, out.Description,
	).Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("flowgraph: upsert workflow: %w", err)
	}

	// Replace semantics: drop the previous graph before inserting.
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, out.ID); err != nil {
		return nil, fmt.Errorf("flowgraph: delete edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, out.ID); err != nil {
		return nil, fmt.Errorf("flowgraph: delete nodes: %w", err)
	}

	if err := insertNodes(ctx, tx, out.ID, out.Nodes); err != nil {
		return nil, err
	}
	if err := insertEdges(ctx, tx, out.ID, out.Edges); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("flowgraph: commit: %w", err)
	}

	return &out, nil
}

// GetWorkflow retrieves a full workflow by its ID.
// Returns nil, nil if the workflow does not exist.
func (s *PGStore) GetWorkflow(ctx context.Context, id string) (*flowgraph.Document, error) {
	doc := &flowgraph.Document{ID: id}

	err := s.db.QueryRow(ctx,
		`SELECT name, description, created_at, updated_at FROM workflows WHERE id = $1`, id,
	).Scan(&doc.Name, &doc.Description, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("flowgraph: get workflow: %w", err)
	}

	if doc.Nodes, err = listNodes(ctx, s.db, id); err != nil {
		return nil, err
	}
	if doc.Edges, err = listEdges(ctx, s.db, id); err != nil {
		return nil, err
	}

	return doc, nil
}

// DeleteWorkflow removes a workflow; its nodes and edges are cascade-deleted.
// No error if the workflow doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("flowgraph: delete workflow: %w", err)
	}
	return nil
}

// ListWorkflows returns every stored workflow, most recently updated first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListWorkflows(ctx context.Context) ([]flowgraph.Summary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, updated_at FROM workflows ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: list workflows: %w", err)
	}
	defer rows.Close()

	list := []flowgraph.Summary{}
	for rows.Next() {
		var w flowgraph.Summary
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("flowgraph: scan workflow: %w", err)
		}
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowgraph: rows workflows: %w", err)
	}

	return list, nil
}
