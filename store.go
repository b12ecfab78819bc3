package flowgraph

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownNodeType    = errors.New("flowgraph: unknown node type")
	ErrWorkflowNotFound   = errors.New("flowgraph: workflow not found")
	ErrNodeNotFound       = errors.New("flowgraph: node not found")
	ErrEdgeNotFound       = errors.New("flowgraph: edge not found")
	ErrDuplicateEdge      = errors.New("flowgraph: edge already exists")
	ErrNoStartNode        = errors.New("flowgraph: workflow has no start node")
	ErrMultipleStartNodes = errors.New("flowgraph: workflow has more than one start node")
	ErrDuplicateNodeID    = errors.New("flowgraph: duplicate node id")
	ErrInvalidNodeID      = errors.New("flowgraph: invalid node id")
	ErrDanglingEdge       = errors.New("flowgraph: edge references a missing node")
	ErrConfigMismatch     = errors.New("flowgraph: config variant does not match node type")
)

// Summary is the listing view of a stored workflow.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Repository defines the contract for persisting and retrieving workflow documents.
type Repository interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// SaveWorkflow stores doc with replace semantics. An empty doc.ID gets a
	// generated one. Returns the stored document.
	SaveWorkflow(ctx context.Context, doc *Document) (*Document, error)
	// GetWorkflow returns nil, nil if no workflow has the id.
	GetWorkflow(ctx context.Context, id string) (*Document, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context) ([]Summary, error)
}
