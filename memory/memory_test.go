package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/flowgraph"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	saved, err := s.SaveWorkflow(ctx, flowgraph.DefaultTemplate())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)

	got, err := s.GetWorkflow(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	got.Nodes[0].Name = "changed"
	again, _ := s.GetWorkflow(ctx, saved.ID)
	assert.NotEqual(t, "changed", again.Nodes[0].Name, "returned documents are copies")

	got.Name = "Renamed"
	resaved, err := s.SaveWorkflow(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, saved.CreatedAt, resaved.CreatedAt)
	assert.True(t, resaved.UpdatedAt.After(saved.UpdatedAt))
}

func TestStore_GetMissing(t *testing.T) {
	got, err := New().GetWorkflow(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = s.SaveWorkflow(ctx, &flowgraph.Document{ID: "a", Name: "A"})
	require.NoError(t, err)
	_, err = s.SaveWorkflow(ctx, &flowgraph.Document{ID: "b", Name: "B"})
	require.NoError(t, err)

	list, err = s.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	require.NoError(t, s.DeleteWorkflow(ctx, "a"))
	require.NoError(t, s.DeleteWorkflow(ctx, "a"))
	list, _ = s.ListWorkflows(ctx)
	assert.Len(t, list, 1)

	require.NoError(t, s.DropSchema(ctx))
	list, _ = s.ListWorkflows(ctx)
	assert.Empty(t, list)
}
