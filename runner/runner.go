// Package runner executes a workflow held in a flowgraph.WorkflowStore. The
// store records run state; the runners here perform the external work of
// each node type and report outcomes back through the store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/meikuraledutech/flowgraph"
)

// BranchKey is the output written by conditional runners: the index of the
// outgoing edge to follow, or -1 for the last (else) edge.
const BranchKey = "branch"

// Runner performs the work of one node. Returned outputs are written into
// the node's output values even when err is non-nil, so partial results
// survive a failure.
type Runner interface {
	Run(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error) {
	return f(ctx, s, node, inputs)
}

// Registry maps node types to their runners.
type Registry map[flowgraph.NodeType]Runner

// DefaultRegistry wires the built-in runners for every node type except
// start, which ExecuteRun completes.
func DefaultRegistry(llm Runner, knowledge Runner, search Runner, conditional Runner) Registry {
	reg := Registry{flowgraph.NodeTypeEnd: NewEndRunner()}
	if llm != nil {
		reg[flowgraph.NodeTypeLLM] = llm
	}
	if knowledge != nil {
		reg[flowgraph.NodeTypeKnowledge] = knowledge
	}
	if search != nil {
		reg[flowgraph.NodeTypeSearch] = search
	}
	if conditional != nil {
		reg[flowgraph.NodeTypeConditional] = conditional
	}
	return reg
}

// Report is the outcome of a workflow run.
type Report struct {
	Result  string                 `json:"result"`
	Nodes   []*flowgraph.Node      `json:"nodes"`
	Traces  []flowgraph.TraceEntry `json:"traces"`
	Details []flowgraph.Detail     `json:"details,omitempty"`
}

// Driver walks a workflow breadth-first from its start node and runs each
// reached node with the runner registered for its type.
type Driver struct {
	store   *flowgraph.WorkflowStore
	runners Registry
	logger  zerolog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l zerolog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// NewDriver creates a Driver over store. Node types without a runner fail
// when reached.
func NewDriver(store *flowgraph.WorkflowStore, runners Registry, opts ...DriverOption) *Driver {
	d := &Driver{
		store:   store,
		runners: runners,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run validates the workflow, seeds the start node with inputs and visits
// every reachable node once. A node with several predecessors runs after
// every predecessor that can still be reached. A conditional node continues
// along exactly one outgoing edge. A failed node stops its own branch; other branches go on.
// If ctx is cancelled the next node is completed with "cancelled" and the
// walk stops with ctx.Err().
func (d *Driver) Run(ctx context.Context, inputs map[string]any) (*Report, error) {
	if err := d.store.Validate(); err != nil {
		return nil, fmt.Errorf("flowgraph: invalid workflow: %w", err)
	}

	d.store.PrepareRun()
	if !d.store.ExecuteRun(inputs) {
		return nil, flowgraph.ErrNoStartNode
	}
	defer d.store.FinishRun()

	start, _ := d.store.StartNode()
	d.logger.Info().Str("workflow", d.store.Name()).Str("start", start.ID).Msg("run started")

	visited := map[string]bool{start.ID: true}
	queue := d.store.TargetNodeIDs(start.ID)

	var runErr error
	deferred := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		// A full pass of deferrals means the queued nodes wait on each other.
		if deferred <= len(queue) && d.waiting(id, queue, visited) {
			queue = append(queue, id)
			deferred++
			continue
		}
		deferred = 0
		visited[id] = true

		if err := ctx.Err(); err != nil {
			d.store.CompleteNodeExecution(id, false, "cancelled")
			runErr = err
			break
		}

		next, ok := d.runNode(ctx, id, inputs)
		if !ok {
			continue
		}
		queue = append(queue, next...)
	}

	d.logger.Info().Str("workflow", d.store.Name()).Int("traces", len(d.store.Traces())).Msg("run finished")
	return d.report(), runErr
}

// waiting reports whether a predecessor of id has not run yet but can still
// be reached from the queue without passing through id.
func (d *Driver) waiting(id string, queue []string, visited map[string]bool) bool {
	pending := map[string]bool{}
	for _, src := range d.store.SourceNodeIDs(id) {
		if src != id && !visited[src] {
			pending[src] = true
		}
	}
	if len(pending) == 0 {
		return false
	}

	seen := map[string]bool{id: true}
	frontier := slices.Clone(queue)
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		if seen[n] || visited[n] {
			continue
		}
		if pending[n] {
			return true
		}
		seen[n] = true
		frontier = append(frontier, d.store.TargetNodeIDs(n)...)
	}
	return false
}

// runNode drives one node through prepare, start, run and complete, and
// returns the successors to visit.
func (d *Driver) runNode(ctx context.Context, id string, inputs map[string]any) ([]string, bool) {
	d.store.PrepareNodeExecution(id, inputs)
	d.store.StartNodeExecution(id)

	node, ok := d.store.Node(id)
	if !ok {
		return nil, false
	}
	log := d.logger.With().Str("node", id).Str("type", string(node.Type)).Logger()

	r, ok := d.runners[node.Type]
	if !ok {
		msg := fmt.Sprintf("no runner for node type %q", node.Type)
		log.Warn().Msg(msg)
		d.store.CompleteNodeExecution(id, false, msg)
		return nil, false
	}

	outputs, err := r.Run(ctx, d.store, *node, inputs)
	for k, v := range outputs {
		d.store.SetNodeOutputValue(id, k, v)
	}
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			msg = "cancelled"
		}
		log.Error().Err(err).Msg("node failed")
		d.store.CompleteNodeExecution(id, false, msg)
		return nil, false
	}

	d.store.CompleteNodeExecution(id, true, "")
	log.Debug().Msg("node completed")

	if node.Type == flowgraph.NodeTypeConditional {
		return d.branch(id, outputs[BranchKey]), true
	}
	return d.store.TargetNodeIDs(id), true
}

// branch picks the outgoing edge of a conditional node by position.
func (d *Driver) branch(id string, choice any) []string {
	edges := d.store.OutgoingEdges(id)
	if len(edges) == 0 {
		return nil
	}
	idx, ok := choice.(int)
	if !ok || idx < 0 || idx >= len(edges) {
		idx = len(edges) - 1
	}
	return []string{edges[idx].Target}
}

func (d *Driver) report() *Report {
	return &Report{
		Result:  d.store.Result(),
		Nodes:   d.store.Nodes(),
		Traces:  d.store.Traces(),
		Details: d.store.Details(),
	}
}

// configOf returns the node's config as T or an error naming the node.
func configOf[T flowgraph.NodeConfig](node flowgraph.Node) (T, error) {
	cfg, ok := node.Config.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("node %s has no %s config", node.ID, node.Type)
	}
	return cfg, nil
}
