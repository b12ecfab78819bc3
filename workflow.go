package flowgraph

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

const defaultWorkflowName = "New workflow"

// WorkflowStore is the composition root of the engine. It owns the graph
// and the run state and dispatches to the managers. Getters return copies,
// so the only way to change the graph is through the store's methods.
//
// A WorkflowStore assumes a single writer; it does no locking.
type WorkflowStore struct {
	logger    *Logger
	nodes     *NodeManager
	edges     *EdgeManager
	variables *VariableResolver
	execution *ExecutionManager

	id          string
	name        string
	description string
	graph       Graph
	selectedID  string
	running     bool
	run         Run

	initial *Document
}

// Option configures a WorkflowStore.
type Option func(*WorkflowStore)

// WithLogger sets the root logger. Each manager logs under it.
func WithLogger(l *Logger) Option {
	return func(s *WorkflowStore) { s.logger = l }
}

// WithDocument loads doc into the new store.
func WithDocument(doc *Document) Option {
	return func(s *WorkflowStore) { s.initial = doc }
}

// NewWorkflowStore returns a workflow store, empty unless WithDocument is given.
func NewWorkflowStore(opts ...Option) *WorkflowStore {
	s := &WorkflowStore{name: defaultWorkflowName}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = DefaultLogger("[WorkflowStore]")
	}
	s.nodes = NewNodeManager(s.logger.Sub("NodeManager"))
	s.edges = NewEdgeManager(s.logger.Sub("EdgeManager"))
	s.variables = NewVariableResolver(s.logger.Sub("VariableResolver"))
	s.execution = NewExecutionManager(s.logger.Sub("ExecutionManager"), s.variables)
	if s.initial != nil {
		s.load(s.initial)
		s.initial = nil
	}
	return s
}

// ── Read model ──────────────────────────────────────────────────────

// Workflow returns a deep copy of the current document.
func (s *WorkflowStore) Workflow() *Document {
	doc := &Document{
		ID:          s.id,
		Name:        s.name,
		Description: s.description,
		Nodes:       make([]Node, 0, len(s.graph.Nodes)),
		Edges:       make([]Edge, 0, len(s.graph.Edges)),
	}
	for _, n := range s.graph.Nodes {
		doc.Nodes = append(doc.Nodes, *n.Clone())
	}
	for _, e := range s.graph.Edges {
		doc.Edges = append(doc.Edges, *e)
	}
	return doc
}

// ID returns the workflow id, empty until the document is saved.
func (s *WorkflowStore) ID() string          { return s.id }
// Name returns the workflow name.
func (s *WorkflowStore) Name() string        { return s.name }
// Description returns the workflow description.
func (s *WorkflowStore) Description() string { return s.description }
// IsRunning reports whether a run is in progress.
func (s *WorkflowStore) IsRunning() bool     { return s.running }
// Result returns the result text of the last run.
func (s *WorkflowStore) Result() string      { return s.run.Result }
// SelectedNodeID returns the selected node id, or "".
func (s *WorkflowStore) SelectedNodeID() string {
	return s.selectedID
}

// SetInfo updates the workflow name and description.
func (s *WorkflowStore) SetInfo(name, description string) {
	s.name = name
	s.description = description
}

// Node returns a copy of the node with the given id.
func (s *WorkflowStore) Node(id string) (*Node, bool) {
	n := s.graph.node(id)
	if n == nil {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in creation order.
func (s *WorkflowStore) Nodes() []*Node {
	return cloneNodes(s.graph.Nodes)
}

// Edges returns copies of all edges in creation order.
func (s *WorkflowStore) Edges() []Edge {
	out := make([]Edge, 0, len(s.graph.Edges))
	for _, e := range s.graph.Edges {
		out = append(out, *e)
	}
	return out
}

// IncomingEdges returns the edges entering nodeID in insertion order.
func (s *WorkflowStore) IncomingEdges(nodeID string) []Edge {
	return derefEdges(s.edges.IncomingEdges(&s.graph, nodeID))
}

// OutgoingEdges returns the edges leaving nodeID in insertion order. For a
// conditional node index 0 is the true branch and the last is the else branch.
func (s *WorkflowStore) OutgoingEdges(nodeID string) []Edge {
	return derefEdges(s.edges.OutgoingEdges(&s.graph, nodeID))
}

// SourceNodeIDs returns the ids of the direct predecessors of nodeID.
func (s *WorkflowStore) SourceNodeIDs(nodeID string) []string {
	return s.edges.SourceNodeIDs(&s.graph, nodeID)
}

// TargetNodeIDs returns the ids of the direct successors of nodeID.
func (s *WorkflowStore) TargetNodeIDs(nodeID string) []string {
	return s.edges.TargetNodeIDs(&s.graph, nodeID)
}

// SelectedNode returns a copy of the selected node.
func (s *WorkflowStore) SelectedNode() (*Node, bool) {
	if s.selectedID == "" {
		return nil, false
	}
	return s.Node(s.selectedID)
}

// StartNode returns a copy of the first start node.
func (s *WorkflowStore) StartNode() (*Node, bool) {
	return cloneFound(s.nodes.StartNode(&s.graph))
}

// EndNode returns a copy of the first end node.
func (s *WorkflowStore) EndNode() (*Node, bool) {
	return cloneFound(s.nodes.EndNode(&s.graph))
}

// NodesByType returns copies of the nodes of type t.
func (s *WorkflowStore) NodesByType(t NodeType) []*Node {
	return cloneNodes(s.nodes.NodesByType(&s.graph, t))
}

// InputVariables returns the start node's inputs with their current values.
func (s *WorkflowStore) InputVariables() map[string]any {
	return s.variables.InputVariables(&s.graph)
}

// NodeAvailableVariables returns the variables nodeID may reference, grouped by producing node.
func (s *WorkflowStore) NodeAvailableVariables(nodeID string) []VariableGroup {
	return s.variables.AvailableVariables(&s.graph, nodeID)
}

// DefaultNodeConfig returns the default config for t, or nil for an unknown type.
func (s *WorkflowStore) DefaultNodeConfig(t NodeType) NodeConfig {
	cfg, _ := DefaultConfig(t)
	return cfg
}

// Traces returns a copy of the execution trace.
func (s *WorkflowStore) Traces() []TraceEntry {
	out := make([]TraceEntry, len(s.run.Traces))
	copy(out, s.run.Traces)
	return out
}

// Details returns a copy of the run details.
func (s *WorkflowStore) Details() []Detail {
	out := make([]Detail, len(s.run.Details))
	copy(out, s.run.Details)
	return out
}

// AllNodeOutputValues maps node id to a copy of its output values.
func (s *WorkflowStore) AllNodeOutputValues() map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, n := range s.graph.Nodes {
		if n.OutputValues != nil {
			out[n.ID] = maps.Clone(n.OutputValues)
		}
	}
	return out
}

// ── Graph mutation ──────────────────────────────────────────────────

// AddNode adds a node of type t at (x, y) and returns its id.
func (s *WorkflowStore) AddNode(t NodeType, x, y float64) (string, error) {
	return s.nodes.AddNode(&s.graph, t, x, y)
}

// UpdateNode replaces a node, keeping its position, type and output ports.
// Returns false if no such node exists.
func (s *WorkflowStore) UpdateNode(updated *Node) bool {
	return s.nodes.UpdateNode(&s.graph, updated)
}

// UpdateNodePosition moves a node. Returns false if no such node exists.
func (s *WorkflowStore) UpdateNodePosition(nodeID string, x, y float64) bool {
	return s.nodes.UpdateNodePosition(&s.graph, nodeID, x, y)
}

// DeleteNode removes a node with its edges and clears it from the selection.
func (s *WorkflowStore) DeleteNode(nodeID string) {
	s.selectedID = s.nodes.DeleteNode(&s.graph, nodeID, s.selectedID)
}

// SelectNode selects nodeID; an empty id clears the selection.
func (s *WorkflowStore) SelectNode(nodeID string) {
	s.selectedID, _ = s.nodes.SelectNode(&s.graph, nodeID, s.selectedID)
}

// AddEdge connects source to target. Returns the new edge id, or false
// when that edge already exists.
func (s *WorkflowStore) AddEdge(source, target string) (string, bool) {
	return s.edges.AddEdge(&s.graph, source, target)
}

// RemoveEdge deletes an edge. Returns false if no such edge exists.
func (s *WorkflowStore) RemoveEdge(edgeID string) bool {
	return s.edges.RemoveEdge(&s.graph, edgeID)
}

// HasPath reports whether endID is reachable from startID.
func (s *WorkflowStore) HasPath(startID, endID string) bool {
	return s.edges.HasPath(&s.graph, startID, endID)
}

// HasPathToEndNode reports whether the first end node is reachable from startID.
func (s *WorkflowStore) HasPathToEndNode(startID string) bool {
	end := s.nodes.EndNode(&s.graph)
	if end == nil {
		return false
	}
	return s.edges.HasPath(&s.graph, startID, end.ID)
}

// ── Outputs and variables ───────────────────────────────────────────

// SetNodeOutputValue writes one output port value of a node.
func (s *WorkflowStore) SetNodeOutputValue(nodeID, output string, value any) bool {
	return s.nodes.SetNodeOutputValue(&s.graph, nodeID, output, value)
}

// NodeOutputValue returns one output port value of a node.
func (s *WorkflowStore) NodeOutputValue(nodeID, output string) (any, bool) {
	return s.nodes.NodeOutputValue(&s.graph, nodeID, output)
}

// ReplaceVariables substitutes {name} tokens in text as seen from currentNodeID.
func (s *WorkflowStore) ReplaceVariables(text, currentNodeID string, inputValues map[string]any) string {
	return s.variables.Replace(&s.graph, text, currentNodeID, inputValues)
}

// IsNodeRequiredForOutput reports whether required names the node id or
// one of its qualified output variables.
func (s *WorkflowStore) IsNodeRequiredForOutput(nodeID string, required map[string]bool) bool {
	if len(required) == 0 {
		return false
	}
	if required[nodeID] {
		return true
	}
	n := s.graph.node(nodeID)
	if n == nil {
		return false
	}
	for _, output := range n.Outputs {
		if required[QualifiedName(output, nodeID)] {
			return true
		}
	}
	return false
}

// ── Execution ───────────────────────────────────────────────────────

// PrepareRun clears run state and output values of every node.
func (s *WorkflowStore) PrepareRun() {
	s.running = false
	s.execution.PrepareRun(&s.graph, &s.run)
}

// ExecuteRun starts a run with the given start inputs. Returns false if
// the workflow has no start node.
func (s *WorkflowStore) ExecuteRun(inputValues map[string]any) bool {
	s.running = s.execution.ExecuteRun(&s.graph, &s.run, inputValues)
	return s.running
}

// PrepareNodeExecution resolves a node's templates before it runs.
func (s *WorkflowStore) PrepareNodeExecution(nodeID string, inputValues map[string]any) bool {
	return s.execution.PrepareNodeExecution(&s.graph, nodeID, inputValues)
}

// StartNodeExecution marks a node running and records its running trace.
func (s *WorkflowStore) StartNodeExecution(nodeID string) bool {
	return s.execution.StartNodeExecution(&s.graph, &s.run, nodeID)
}

// CompleteNodeExecution records a node's outcome and its terminal trace.
func (s *WorkflowStore) CompleteNodeExecution(nodeID string, success bool, errText string) bool {
	return s.execution.CompleteNodeExecution(&s.graph, &s.run, nodeID, success, errText)
}

// FinishRun marks the workflow as no longer running.
func (s *WorkflowStore) FinishRun() {
	s.running = false
}

// SetResult sets the result text of the current run.
func (s *WorkflowStore) SetResult(result string) {
	s.run.Result = result
}

// AddDetail appends a detail entry to the current run.
func (s *WorkflowStore) AddDetail(d Detail) {
	s.run.Details = append(s.run.Details, d)
}

// ── Lifecycle ───────────────────────────────────────────────────────

// ResetWorkflow clears the graph, the selection and the run state.
func (s *WorkflowStore) ResetWorkflow() {
	s.logger.Log("reset workflow")
	s.id = ""
	s.graph = Graph{}
	s.selectedID = ""
	s.name = defaultWorkflowName
	s.description = ""
	s.running = false
	s.run.reset()
	s.logger.Log("workflow reset")
}

// LoadWorkflow replaces the whole graph with a copy of doc. The document
// is accepted as is; call Validate to check it.
func (s *WorkflowStore) LoadWorkflow(doc *Document) {
	s.load(doc)
}

func (s *WorkflowStore) load(doc *Document) {
	s.logger.Log(fmt.Sprintf("load workflow name=%s, nodes=%d, edges=%d", doc.Name, len(doc.Nodes), len(doc.Edges)))
	g := Graph{
		Nodes: make([]*Node, 0, len(doc.Nodes)),
		Edges: make([]*Edge, 0, len(doc.Edges)),
	}
	for i := range doc.Nodes {
		g.Nodes = append(g.Nodes, doc.Nodes[i].Clone())
	}
	for i := range doc.Edges {
		e := doc.Edges[i]
		g.Edges = append(g.Edges, &e)
	}
	s.id = doc.ID
	s.graph = g
	s.name = doc.Name
	s.description = doc.Description
	s.selectedID = ""
}

// Validate checks the conventions the engine relies on: exactly one start
// node, unique node ids without '_', config variants matching node types,
// and edges whose endpoints exist. All problems are joined into one error.
func (s *WorkflowStore) Validate() error {
	var errs []error

	starts := s.nodes.NodesByType(&s.graph, NodeTypeStart)
	switch len(starts) {
	case 0:
		errs = append(errs, ErrNoStartNode)
	case 1:
	default:
		ids := make([]string, len(starts))
		for i, n := range starts {
			ids[i] = n.ID
		}
		errs = append(errs, fmt.Errorf("%w: %s", ErrMultipleStartNodes, strings.Join(ids, ", ")))
	}

	seen := map[string]bool{}
	for _, n := range s.graph.Nodes {
		if n.ID == "" || strings.Contains(n.ID, "_") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidNodeID, n.ID))
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID))
		}
		seen[n.ID] = true
		if n.Config != nil {
			if k := n.Config.Kind(); k != "" && k != n.Type {
				errs = append(errs, fmt.Errorf("%w: node %s is %s, config is %s", ErrConfigMismatch, n.ID, n.Type, k))
			}
		}
	}

	for _, e := range s.graph.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			errs = append(errs, fmt.Errorf("%w: %s (%s -> %s)", ErrDanglingEdge, e.ID, e.Source, e.Target))
		}
	}

	return errors.Join(errs...)
}

// DebugState returns a snapshot of the store for diagnostics.
func (s *WorkflowStore) DebugState() map[string]any {
	return map[string]any{
		"nodes":          s.Nodes(),
		"edges":          s.Edges(),
		"selectedNodeId": s.selectedID,
		"name":           s.name,
		"description":    s.description,
		"inputVariables": s.InputVariables(),
		"isRunning":      s.running,
		"result":         s.run.Result,
	}
}

// LogWorkflowState writes the workflow structure to the logger.
func (s *WorkflowStore) LogWorkflowState() {
	s.logger.Group("workflow state")
	s.logger.Log("name: " + s.name)
	s.logger.Log("description: " + s.description)
	s.logger.Log(fmt.Sprintf("nodes: %d", len(s.graph.Nodes)))
	s.logger.Log(fmt.Sprintf("edges: %d", len(s.graph.Edges)))
	s.logger.Log("selected node: " + s.selectedID)
	for _, n := range s.graph.Nodes {
		s.logger.Log(fmt.Sprintf("  - node id=%s, type=%s, name=%s", n.ID, n.Type, n.Name))
	}
	for _, e := range s.graph.Edges {
		s.logger.Log(fmt.Sprintf("  - edge id=%s, source=%s, target=%s", e.ID, e.Source, e.Target))
	}
	s.logger.GroupEnd()
}

func cloneNodes(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Clone())
	}
	return out
}

func cloneFound(n *Node) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	return n.Clone(), true
}

func derefEdges(edges []*Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, *e)
	}
	return out
}
