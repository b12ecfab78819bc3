package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/meikuraledutech/flowgraph"
)

func TestGoogleSearcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		assert.Equal(t, "engine-1", q.Get("cx"))
		assert.Equal(t, "rates", q.Get("q"))
		assert.Equal(t, "2", q.Get("num"))
		assert.Equal(t, "secret", q.Get("key"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"title":"Rates fall","link":"https://example.com/a","displayLink":"example.com","snippet":"Rates fell today","htmlSnippet":"<b>Rates</b> fell today"},
			{"title":"Plain","link":"https://example.com/b","displayLink":"example.com","snippet":"No html here"}
		]}`)
	}))
	defer srv.Close()

	g, err := NewGoogleSearcher(context.Background(), "secret", "engine-1", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	results, err := g.Search(context.Background(), "rates", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, SearchResult{
		Title:       "Rates fall",
		Link:        "https://example.com/a",
		Snippet:     "**Rates** fell today",
		DisplayLink: "example.com",
		Source:      "Google",
	}, results[0])
	assert.Equal(t, "No html here", results[1].Snippet)
}

func TestGoogleSearcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"daily limit exceeded"}}`)
	}))
	defer srv.Close()

	g, err := NewGoogleSearcher(context.Background(), "secret", "engine-1", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	_, err = g.Search(context.Background(), "rates", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily limit exceeded")
}

func searchStore(t *testing.T, cfg *flowgraph.SearchConfig) (*flowgraph.WorkflowStore, flowgraph.Node) {
	t.Helper()
	s := flowgraph.NewWorkflowStore(flowgraph.WithLogger(flowgraph.NopLogger()))
	id, err := s.AddNode(flowgraph.NodeTypeSearch, 0, 0)
	require.NoError(t, err)
	n, _ := s.Node(id)
	n.Config = cfg
	s.UpdateNode(n)
	n, _ = s.Node(id)
	return s, *n
}

func TestSearchRunner(t *testing.T) {
	hits := make([]SearchResult, 12)
	for i := range hits {
		hits[i] = SearchResult{Title: fmt.Sprintf("t%d", i), Link: fmt.Sprintf("https://example.com/%d", i)}
	}
	hits[0].Snippet = "line one\nline two"

	tests := []struct {
		name      string
		cfg       *flowgraph.SearchConfig
		inputs    map[string]any
		wantQuery string
		wantCount int
		wantErr   string
	}{
		{
			name:      "prompt expanded",
			cfg:       &flowgraph.SearchConfig{SearchEngine: "google", MaxResults: 2, QueryPrompt: "news about {topic}"},
			inputs:    map[string]any{"topic": "rates"},
			wantQuery: "news about rates",
			wantCount: 2,
		},
		{
			name:      "query input fallback",
			cfg:       &flowgraph.SearchConfig{SearchEngine: "google", MaxResults: 3},
			inputs:    map[string]any{"query": " weather "},
			wantQuery: "weather",
			wantCount: 3,
		},
		{
			name:      "max results capped",
			cfg:       &flowgraph.SearchConfig{MaxResults: 50, QueryPrompt: "q"},
			wantQuery: "q",
			wantCount: maxSearchResults,
		},
		{
			name:      "zero max results means one",
			cfg:       &flowgraph.SearchConfig{QueryPrompt: "q"},
			wantQuery: "q",
			wantCount: 1,
		},
		{
			name:    "empty query",
			cfg:     &flowgraph.SearchConfig{MaxResults: 3, QueryPrompt: "   "},
			wantErr: "empty query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSearcher{results: hits}
			s, node := searchStore(t, tt.cfg)

			out, err := NewSearchRunner(f).Run(context.Background(), s, node, tt.inputs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Empty(t, f.queries)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantQuery}, f.queries)

			details := s.Details()
			require.Len(t, details, 1)
			assert.Len(t, details[0].Value, tt.wantCount)
			assert.Contains(t, out["results"], "1. [t0](https://example.com/0)\n   line one line two")
		})
	}
}

func TestSearchRunner_Error(t *testing.T) {
	s, node := searchStore(t, &flowgraph.SearchConfig{MaxResults: 1, QueryPrompt: "q"})
	_, err := NewSearchRunner(&fakeSearcher{err: errors.New("boom")}).Run(context.Background(), s, node, nil)
	require.Error(t, err)
	assert.Equal(t, `search "q": boom`, err.Error())
	assert.Empty(t, s.Details())
}

func TestFormatResults(t *testing.T) {
	assert.Empty(t, formatResults(nil))
	assert.Equal(t,
		"1. [A](https://a)\n   first\n2. [B](https://b)",
		formatResults([]SearchResult{{Title: "A", Link: "https://a", Snippet: "first"}, {Title: "B", Link: "https://b"}}),
	)
}
