package runner

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/meikuraledutech/flowgraph"
)

// maxSearchResults is the per-request cap of the custom search API.
const maxSearchResults = 10

// SearchResult is one web search hit.
type SearchResult struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
	Source      string `json:"source"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchRunner fills a search node's "results" output. The query is the
// node's queryPrompt after variable substitution, falling back to the
// "query" run input.
type SearchRunner struct {
	searcher Searcher
}

// NewSearchRunner returns a runner querying searcher.
func NewSearchRunner(searcher Searcher) *SearchRunner {
	return &SearchRunner{searcher: searcher}
}

// Run searches for the node's query and returns the formatted results.
func (r *SearchRunner) Run(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error) {
	cfg, err := configOf[*flowgraph.SearchConfig](node)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(s.ReplaceVariables(cfg.QueryPrompt, node.ID, inputs))
	if query == "" {
		query = strings.TrimSpace(flowgraph.FormatValue(inputs["query"]))
	}
	if query == "" {
		return nil, fmt.Errorf("search node %s has an empty query", node.ID)
	}

	n := min(max(cfg.MaxResults, 1), maxSearchResults)
	results, err := r.searcher.Search(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	s.AddDetail(flowgraph.Detail{
		Name:        node.DisplayName(),
		Description: fmt.Sprintf("%s results for %q", cfg.SearchEngine, query),
		Value:       results,
	})
	return map[string]any{"results": formatResults(results)}, nil
}

// formatResults renders hits as a numbered markdown list for use in prompts.
func formatResults(results []SearchResult) string {
	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, res.Title, res.Link)
		if res.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", strings.ReplaceAll(res.Snippet, "\n", " "))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// GoogleSearcher queries a Google programmable search engine.
type GoogleSearcher struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogleSearcher creates a searcher for the engine cx. Extra client
// options are appended after the API key.
func NewGoogleSearcher(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*GoogleSearcher, error) {
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("custom search client: %w", err)
	}
	return &GoogleSearcher{svc: svc, cx: cx}, nil
}

// Search queries the custom search engine for up to maxResults hits.
func (g *GoogleSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	res, err := g.svc.Cse.List().
		Cx(g.cx).
		Q(query).
		Num(int64(min(maxResults, maxSearchResults))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, SearchResult{
			Title:       item.Title,
			Link:        item.Link,
			Snippet:     snippet(item),
			DisplayLink: item.DisplayLink,
			Source:      "Google",
		})
	}
	return out, nil
}

// snippet prefers the HTML snippet converted to markdown, which keeps the
// emphasis on matched terms.
func snippet(item *customsearch.Result) string {
	if item.HtmlSnippet != "" {
		if md, err := htmltomarkdown.ConvertString(item.HtmlSnippet); err == nil {
			return strings.TrimSpace(md)
		}
	}
	return item.Snippet
}
