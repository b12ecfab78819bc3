package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/flowgraph"
	"github.com/meikuraledutech/flowgraph/memory"
	"github.com/meikuraledutech/flowgraph/runner"
)

func echoRegistry() runner.Registry {
	llm := runner.RunnerFunc(func(_ context.Context, _ *flowgraph.WorkflowStore, node flowgraph.Node, _ map[string]any) (map[string]any, error) {
		return map[string]any{"text": "echo: " + node.Config.(*flowgraph.LLMConfig).TrueSystemPrompt}, nil
	})
	search := runner.RunnerFunc(func(context.Context, *flowgraph.WorkflowStore, flowgraph.Node, map[string]any) (map[string]any, error) {
		return map[string]any{"results": "1. [hit](https://example.com)"}, nil
	})
	return runner.DefaultRegistry(llm, nil, search, runner.NewConditionalRunner(runner.NewGojaEvaluator(0)))
}

func setup(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()
	repo := memory.New()
	return newApp(repo, echoRegistry(), zerolog.Nop()), repo
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func saveTemplate(t *testing.T, repo *memory.Store) string {
	t.Helper()
	doc := flowgraph.DefaultTemplate()
	doc.ID = "news"
	_, err := repo.SaveWorkflow(context.Background(), doc)
	require.NoError(t, err)
	return doc.ID
}

func TestSchemaRoutes(t *testing.T) {
	app, _ := setup(t)

	resp, body := do(t, app, "POST", "/schema", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"message":"schema created"}`, string(body))

	resp, _ = do(t, app, "DELETE", "/schema", "")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestWorkflowRoutes(t *testing.T) {
	app, _ := setup(t)

	resp, body := do(t, app, "POST", "/workflows", `{"name":"First","nodes":[{"id":"s","type":"start","config":{"variables":["q"]}}],"edges":[],}`)
	require.Equal(t, 201, resp.StatusCode, string(body))
	var saved flowgraph.Document
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "First", saved.Name)

	resp, body = do(t, app, "GET", "/workflows/"+saved.ID, "")
	require.Equal(t, 200, resp.StatusCode)
	var got flowgraph.Document
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, []string{"q"}, got.Nodes[0].Config.(*flowgraph.StartConfig).Variables)

	resp, body = do(t, app, "GET", "/workflows", "")
	require.Equal(t, 200, resp.StatusCode)
	var list []flowgraph.Summary
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)

	resp, _ = do(t, app, "DELETE", "/workflows/"+saved.ID, "")
	assert.Equal(t, 204, resp.StatusCode)

	resp, body = do(t, app, "GET", "/workflows/"+saved.ID, "")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, string(body), "workflow not found")

	resp, _ = do(t, app, "POST", "/workflows", `[1, 2, 3]`)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestSaveWorkflow_YAML(t *testing.T) {
	app, repo := setup(t)

	req := httptest.NewRequest("POST", "/workflows", strings.NewReader("id: y\nname: From YAML\nnodes:\n  - id: s\n    type: start\nedges: []\n"))
	req.Header.Set("Content-Type", "application/yaml")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	doc, err := repo.GetWorkflow(context.Background(), "y")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "From YAML", doc.Name)
}

func TestTemplateRoute(t *testing.T) {
	app, _ := setup(t)

	resp, body := do(t, app, "GET", "/workflows/template", "")
	require.Equal(t, 200, resp.StatusCode)
	var doc flowgraph.Document
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, flowgraph.DefaultTemplate().Name, doc.Name)
	assert.Len(t, doc.Nodes, 10)
}

func TestValidateRoute(t *testing.T) {
	app, repo := setup(t)
	id := saveTemplate(t, repo)

	resp, body := do(t, app, "POST", "/workflows/"+id+"/validate", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"valid":true}`, string(body))

	_, err := repo.SaveWorkflow(context.Background(), &flowgraph.Document{
		ID:    "broken",
		Nodes: []flowgraph.Node{{ID: "a_b", Type: flowgraph.NodeTypeLLM}},
		Edges: []flowgraph.Edge{{ID: "e", Source: "a_b", Target: "gone"}},
	})
	require.NoError(t, err)

	resp, body = do(t, app, "POST", "/workflows/broken/validate", "")
	assert.Equal(t, 422, resp.StatusCode)
	var out struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.False(t, out.Valid)
	assert.Len(t, out.Errors, 3)
}

func TestNodeRoutes(t *testing.T) {
	app, repo := setup(t)
	id := saveTemplate(t, repo)
	base := "/workflows/" + id + "/nodes"

	resp, body := do(t, app, "POST", base, `{"type":"knowledge","x":10,"y":20}`)
	require.Equal(t, 201, resp.StatusCode, string(body))
	var node flowgraph.Node
	require.NoError(t, json.Unmarshal(body, &node))
	assert.Equal(t, flowgraph.NodeTypeKnowledge, node.Type)
	assert.Equal(t, "Knowledge", node.Name)

	doc, _ := repo.GetWorkflow(context.Background(), id)
	assert.Len(t, doc.Nodes, 11)

	resp, _ = do(t, app, "POST", base, `{"type":"teleport"}`)
	assert.Equal(t, 400, resp.StatusCode)

	resp, body = do(t, app, "PUT", base+"/"+node.ID, `{"type":"knowledge","name":"FAQ","x":999,"config":{"knowledgeBase":"faq","topK":5}}`)
	require.Equal(t, 200, resp.StatusCode, string(body))
	var updated flowgraph.Node
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "FAQ", updated.Name)
	assert.Equal(t, float64(10), updated.X, "position is kept")
	assert.Equal(t, 5, updated.Config.(*flowgraph.KnowledgeConfig).TopK)
	assert.Equal(t, []string{"knowledge"}, updated.Outputs, "ports are kept")

	resp, body = do(t, app, "PUT", base+"/"+node.ID, `{"type":"knowledge","outputs":["knowledge","extra"],"config":{"knowledgeBase":"faq","topK":5}}`)
	require.Equal(t, 200, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, []string{"knowledge"}, updated.Outputs)

	resp, _ = do(t, app, "PUT", base+"/"+node.ID, `{"type":"llm"}`)
	assert.Equal(t, 422, resp.StatusCode)
	resp, _ = do(t, app, "PUT", base+"/missing", `{"type":"llm"}`)
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = do(t, app, "PATCH", base+"/"+node.ID+"/position", `{"x":1,"y":2}`)
	assert.Equal(t, 204, resp.StatusCode)
	doc, _ = repo.GetWorkflow(context.Background(), id)
	moved := doc.Nodes[len(doc.Nodes)-1]
	assert.Equal(t, [2]float64{1, 2}, [2]float64{moved.X, moved.Y})

	resp, _ = do(t, app, "DELETE", base+"/node-network-1", "")
	assert.Equal(t, 204, resp.StatusCode)
	doc, _ = repo.GetWorkflow(context.Background(), id)
	assert.Len(t, doc.Nodes, 10)
	for _, e := range doc.Edges {
		assert.NotEqual(t, "node-network-1", e.Source)
		assert.NotEqual(t, "node-network-1", e.Target)
	}

	resp, _ = do(t, app, "DELETE", base+"/node-network-1", "")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestVariablesRoute(t *testing.T) {
	app, repo := setup(t)
	id := saveTemplate(t, repo)

	resp, body := do(t, app, "GET", "/workflows/"+id+"/nodes/node-llm-3/variables", "")
	require.Equal(t, 200, resp.StatusCode)
	var groups []flowgraph.VariableGroup
	require.NoError(t, json.Unmarshal(body, &groups))
	require.NotEmpty(t, groups)
	assert.Equal(t, "node-start", groups[0].NodeID)

	resp, _ = do(t, app, "GET", "/workflows/"+id+"/nodes/nope/variables", "")
	assert.Equal(t, 404, resp.StatusCode)
	resp, _ = do(t, app, "GET", "/workflows/nope/nodes/node-llm-3/variables", "")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestEdgeRoutes(t *testing.T) {
	app, repo := setup(t)
	id := saveTemplate(t, repo)
	base := "/workflows/" + id + "/edges"

	resp, body := do(t, app, "POST", base, `{"source":"node-llm-1","target":"node-end-2"}`)
	require.Equal(t, 201, resp.StatusCode, string(body))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, strings.HasPrefix(created.ID, "edge-"))

	resp, _ = do(t, app, "POST", base, `{"source":"node-llm-1","target":"node-end-2"}`)
	assert.Equal(t, 409, resp.StatusCode)
	resp, _ = do(t, app, "POST", base, `{"source":"node-llm-1","target":"ghost"}`)
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = do(t, app, "DELETE", base+"/"+created.ID, "")
	assert.Equal(t, 204, resp.StatusCode)
	resp, _ = do(t, app, "DELETE", base+"/"+created.ID, "")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRunRoute(t *testing.T) {
	app, repo := setup(t)
	id := saveTemplate(t, repo)

	resp, body := do(t, app, "POST", "/workflows/"+id+"/run", `{"inputs":{"news":"Rates fell","ability_level":"case2"}}`)
	require.Equal(t, 200, resp.StatusCode, string(body))

	var report runResponse
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Empty(t, report.Error)
	assert.Contains(t, report.Result, "echo: Explain this news item for an intermediate reader: Rates fell")
	assert.Contains(t, report.Result, "1. [hit](https://example.com)")
	assert.Len(t, report.Traces, 4)

	stored, _ := repo.GetWorkflow(context.Background(), id)
	for _, n := range stored.Nodes {
		assert.Empty(t, n.OutputValues, "runs are not persisted")
	}
}

func TestRunRoute_Invalid(t *testing.T) {
	app, repo := setup(t)
	_, err := repo.SaveWorkflow(context.Background(), &flowgraph.Document{ID: "empty", Name: "Empty"})
	require.NoError(t, err)

	resp, body := do(t, app, "POST", "/workflows/empty/run", "")
	assert.Equal(t, 422, resp.StatusCode)
	assert.Contains(t, string(body), "no start node")

	resp, _ = do(t, app, "POST", "/workflows/empty/run", `{"inputs":`)
	assert.Equal(t, 400, resp.StatusCode)
}

type failingRepo struct{ *memory.Store }

func (*failingRepo) ListWorkflows(context.Context) ([]flowgraph.Summary, error) {
	return nil, errors.New("database is down")
}

func TestRepositoryError(t *testing.T) {
	app := newApp(&failingRepo{Store: memory.New()}, echoRegistry(), zerolog.Nop())
	resp, body := do(t, app, "GET", "/workflows", "")
	assert.Equal(t, 500, resp.StatusCode)
	assert.JSONEq(t, `{"error":"database is down"}`, string(body))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{flowgraph.ErrWorkflowNotFound, 404},
		{flowgraph.ErrEdgeNotFound, 404},
		{flowgraph.ErrDuplicateEdge, 409},
		{flowgraph.ErrUnknownNodeType, 400},
		{errors.Join(flowgraph.ErrNoStartNode, flowgraph.ErrDanglingEdge), 422},
		{errors.New("other"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
