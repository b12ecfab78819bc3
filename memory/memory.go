// Package memory is an in-process flowgraph.Repository. It backs the CLI,
// the example program and tests that do not need PostgreSQL.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/flowgraph"
)

// Store keeps workflow documents in a map guarded by a RWMutex. Documents
// are copied on the way in and out.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*flowgraph.Document
	now       func() time.Time
}

var _ flowgraph.Repository = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		workflows: map[string]*flowgraph.Document{},
		now:       time.Now,
	}
}

// CreateSchema is a no-op.
func (s *Store) CreateSchema(context.Context) error { return nil }

// DropSchema removes every workflow.
func (s *Store) DropSchema(context.Context) error {
	s.mu.Lock()
	clear(s.workflows)
	s.mu.Unlock()
	return nil
}

// SaveWorkflow stores a copy of doc, assigning an id when it has none.
func (s *Store) SaveWorkflow(_ context.Context, doc *flowgraph.Document) (*flowgraph.Document, error) {
	out := doc.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now
	if prev, ok := s.workflows[out.ID]; ok {
		out.CreatedAt = prev.CreatedAt
	}
	s.workflows[out.ID] = out
	return out.Clone(), nil
}

// GetWorkflow returns a copy of the workflow, or nil, nil when missing.
func (s *Store) GetWorkflow(_ context.Context, id string) (*flowgraph.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

// DeleteWorkflow removes a workflow. A missing id is not an error.
func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.workflows, id)
	s.mu.Unlock()
	return nil
}

// ListWorkflows returns summaries, most recently updated first.
func (s *Store) ListWorkflows(context.Context) ([]flowgraph.Summary, error) {
	s.mu.RLock()
	out := make([]flowgraph.Summary, 0, len(s.workflows))
	for _, doc := range s.workflows {
		out = append(out, flowgraph.Summary{
			ID:          doc.ID,
			Name:        doc.Name,
			Description: doc.Description,
			UpdatedAt:   doc.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b flowgraph.Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
