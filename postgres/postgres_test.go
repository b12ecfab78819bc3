package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/flowgraph"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleDoc() *flowgraph.Document {
	return &flowgraph.Document{
		ID:   "wf-1",
		Name: "demo",
		Nodes: []flowgraph.Node{
			{ID: "node-a", Type: flowgraph.NodeTypeStart, Inputs: []string{"topic"}, Outputs: []string{}, Config: &flowgraph.StartConfig{}},
			{ID: "node-b", Type: flowgraph.NodeTypeLLM, Outputs: []string{"text"}, Config: &flowgraph.LLMConfig{Model: "deepseek-chat", SystemPrompt: "Write about {topic}"}},
		},
		Edges: []flowgraph.Edge{
			{ID: "edge-ab", Source: "node-a", Target: "node-b", Label: "go"},
		},
	}
}

func TestSchema(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS workflows").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("DROP TABLE IF EXISTS workflow_edges").WillReturnResult(pgxmock.NewResult("DROP", 0))

	require.NoError(t, store.CreateSchema(context.Background()))
	require.NoError(t, store.DropSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWorkflow(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	doc := sampleDoc()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO workflows").
		WithArgs("wf-1", "demo", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("DELETE FROM workflow_edges").WithArgs("wf-1").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM workflow_nodes").WithArgs("wf-1").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO workflow_nodes").
		WithArgs("wf-1", "node-a", 0, "start", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO workflow_nodes").
		WithArgs("wf-1", "node-b", 1, "llm", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO workflow_edges").
		WithArgs("wf-1", "edge-ab", 0, "node-a", "node-b", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	saved, err := store.SaveWorkflow(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", saved.ID)
	assert.Equal(t, now, saved.CreatedAt)
	assert.Equal(t, now, saved.UpdatedAt)
	assert.True(t, doc.CreatedAt.IsZero(), "input document is not modified")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWorkflow_GeneratesID(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	doc := &flowgraph.Document{Name: "empty"}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO workflows").
		WithArgs(pgxmock.AnyArg(), "empty", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("DELETE FROM workflow_edges").WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM workflow_nodes").WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	saved, err := store.SaveWorkflow(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, saved.ID, 36)
	assert.Empty(t, doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWorkflow_RollsBackOnInsertError(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO workflows").
		WithArgs("wf-1", "demo", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("DELETE FROM workflow_edges").WithArgs("wf-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM workflow_nodes").WithArgs("wf-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO workflow_nodes").
		WithArgs("wf-1", "node-a", 0, "start", pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.SaveWorkflow(context.Background(), sampleDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert node node-a")
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkflow(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	doc := sampleDoc()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	nodeA, err := json.Marshal(doc.Nodes[0])
	require.NoError(t, err)
	nodeB, err := json.Marshal(doc.Nodes[1])
	require.NoError(t, err)

	mock.ExpectQuery("SELECT name, description, created_at, updated_at FROM workflows").
		WithArgs("wf-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "description", "created_at", "updated_at"}).
			AddRow("demo", "", now, now))
	mock.ExpectQuery("SELECT id, data FROM workflow_nodes").
		WithArgs("wf-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow("node-a", nodeA).
			AddRow("node-b", nodeB))
	mock.ExpectQuery("SELECT id, source, target, data FROM workflow_edges").
		WithArgs("wf-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "target", "data"}).
			AddRow("edge-ab", "node-a", "node-b", []byte(`{"label":"go"}`)))

	got, err := store.GetWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, now, got.UpdatedAt)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, doc.Nodes[1].Config, got.Nodes[1].Config)
	assert.Equal(t, doc.Edges, got.Edges)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkflow_NotFound(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("SELECT name, description, created_at, updated_at FROM workflows").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"name", "description", "created_at", "updated_at"}))

	got, err := store.GetWorkflow(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkflow_BadNodeData(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Now()

	mock.ExpectQuery("SELECT name, description").
		WithArgs("wf-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "description", "created_at", "updated_at"}).
			AddRow("demo", "", now, now))
	mock.ExpectQuery("SELECT id, data FROM workflow_nodes").
		WithArgs("wf-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).AddRow("node-a", []byte(`{"type":"llm","config":{"temperature":"hot"}}`)))

	_, err := store.GetWorkflow(context.Background(), "wf-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode node node-a")
}

func TestDeleteWorkflow(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectExec("DELETE FROM workflows").WithArgs("wf-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.DeleteWorkflow(context.Background(), "wf-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWorkflows(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Now()

	mock.ExpectQuery("SELECT id, name, description, updated_at FROM workflows").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "updated_at"}).
			AddRow("wf-2", "second", "", now).
			AddRow("wf-1", "first", "about", now))

	list, err := store.ListWorkflows(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-2", list[0].ID)
	assert.Equal(t, "about", list[1].Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWorkflows_Empty(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("SELECT id, name, description, updated_at FROM workflows").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "updated_at"}))

	list, err := store.ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
