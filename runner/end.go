package runner

import (
	"context"
	"strings"

	"github.com/meikuraledutech/flowgraph"
)

// EndRunner collects the primary output of each direct predecessor into
// the node's "result" output and appends it to the workflow result.
type EndRunner struct{}

// NewEndRunner returns a runner that collects the run result.
func NewEndRunner() *EndRunner { return &EndRunner{} }

// Run joins the outputs of the node's predecessors into the run result.
func (EndRunner) Run(_ context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, _ map[string]any) (map[string]any, error) {
	var parts []string
	for _, id := range s.SourceNodeIDs(node.ID) {
		src, ok := s.Node(id)
		if !ok || len(src.Outputs) == 0 {
			continue
		}
		v, ok := src.OutputValues[src.Outputs[0]]
		if !ok {
			continue
		}
		if text := flowgraph.FormatValue(v); text != "" {
			parts = append(parts, text)
		}
	}
	result := strings.Join(parts, "\n\n")

	if prev := s.Result(); prev != "" && result != "" {
		s.SetResult(prev + "\n\n" + result)
	} else if result != "" {
		s.SetResult(result)
	}
	s.AddDetail(flowgraph.Detail{
		Name:        node.DisplayName(),
		Description: "workflow output",
		Value:       result,
	})
	return map[string]any{"result": result}, nil
}
