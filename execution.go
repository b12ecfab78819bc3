package flowgraph

import (
	"fmt"
	"maps"
	"time"

	"github.com/rs/xid"
)

// TraceData is the snapshot attached to a trace entry.
type TraceData struct {
	Inputs  map[string]any `json:"inputs"`
	Outputs map[string]any `json:"outputs"`
	Error   string         `json:"error,omitempty"`
}

// TraceEntry is one record of a node's execution attempt. A node-run owns
// at most one transient "running" entry, which is replaced in place by the
// terminal entry carrying the same NodeID and Seq.
type TraceEntry struct {
	ID        string     `json:"id"`
	NodeID    string     `json:"nodeId"`
	Node      string     `json:"node"`
	Seq       uint64     `json:"seq"`
	Timestamp time.Time  `json:"timestamp"`
	Message   string     `json:"message"`
	Status    RunStatus  `json:"status,omitempty"`
	Data      *TraceData `json:"data,omitempty"`
}

// Detail is one named value in the result buffer of a run.
type Detail struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Value       any    `json:"value"`
}

// Run is the mutable state of a workflow execution: the trace log and the
// cumulative result buffer. seq survives PrepareRun so run sequence numbers
// stay unique for the lifetime of the Run.
type Run struct {
	Traces  []TraceEntry
	Result  string
	Details []Detail
	seq     uint64
}

func (r *Run) reset() {
	r.Traces = nil
	r.Result = ""
	r.Details = nil
}

// ExecutionManager drives the per-node run-state machine and writes the trace.
// It records outcomes reported by node runners; it never decides them.
type ExecutionManager struct {
	logger    *Logger
	variables *VariableResolver
	now       func() time.Time
}

// NewExecutionManager creates an ExecutionManager. Nil arguments fall back
// to a default logger and a resolver logging under it.
func NewExecutionManager(logger *Logger, variables *VariableResolver) *ExecutionManager {
	if logger == nil {
		logger = DefaultLogger("[ExecutionManager]")
	}
	if variables == nil {
		variables = NewVariableResolver(logger.Sub("VariableResolver"))
	}
	return &ExecutionManager{
		logger:    logger,
		variables: variables,
		now:       time.Now,
	}
}

// PrepareRun resets every node to idle, clears output values, the trace and
// the result buffer.
func (m *ExecutionManager) PrepareRun(g *Graph, run *Run) {
	m.logger.Log("prepare workflow run")
	run.reset()
	for _, n := range g.Nodes {
		n.OutputValues = map[string]any{}
		n.RunInfo = RunInfo{Status: RunStatusIdle}
	}
}

// ExecuteRun seeds the start node's outputs with inputValues and marks it
// completed. It returns false only when the graph has no start node.
func (m *ExecutionManager) ExecuteRun(g *Graph, run *Run, inputValues map[string]any) bool {
	m.logger.Log("execute workflow run", inputValues)
	run.reset()

	start := firstOfType(g, NodeTypeStart)
	if start == nil {
		m.logger.Warn("workflow has no start node")
		return false
	}

	now := m.now()
	start.OutputValues = maps.Clone(inputValues)
	if start.OutputValues == nil {
		start.OutputValues = map[string]any{}
	}
	start.RunInfo = RunInfo{Status: RunStatusCompleted, StartTime: now, EndTime: now}
	m.logger.Log("start node outputs set", start.OutputValues)
	return true
}

// PrepareNodeExecution expands the node's templates against the current
// graph and inputValues and moves work nodes to waiting. Start and end
// nodes are left untouched. Returns false if the node does not exist.
func (m *ExecutionManager) PrepareNodeExecution(g *Graph, nodeID string, inputValues map[string]any) bool {
	n := g.node(nodeID)
	if n == nil {
		m.logger.Warn("node to prepare not found id=" + nodeID)
		return false
	}

	m.logger.Log(fmt.Sprintf("prepare node id=%s, type=%s", nodeID, n.Type))

	switch n.Type {
	case NodeTypeStart, NodeTypeEnd:
		return true
	case NodeTypeLLM:
		if cfg, ok := n.Config.(*LLMConfig); ok {
			cfg.TrueSystemPrompt = m.variables.Replace(g, cfg.SystemPrompt, nodeID, inputValues)
		} else {
			m.logger.Warn("llm node has no llm config id=" + nodeID)
		}
	case NodeTypeConditional:
		if cfg, ok := n.Config.(*ConditionalConfig); ok {
			cfg.TrueExpression = m.variables.Replace(g, cfg.Expression, nodeID, inputValues)
		} else {
			m.logger.Warn("conditional node has no conditional config id=" + nodeID)
		}
	case NodeTypeKnowledge, NodeTypeSearch:
	default:
		m.logger.Warn(fmt.Sprintf("unknown node type: %s", n.Type))
		return true
	}

	n.RunInfo = RunInfo{Status: RunStatusWaiting, StartTime: m.now()}
	return true
}

// StartNodeExecution marks the node running, assigns it the next run
// sequence number and, for every type but start, appends a transient trace
// entry with the node's input snapshot.
func (m *ExecutionManager) StartNodeExecution(g *Graph, run *Run, nodeID string) bool {
	n := g.node(nodeID)
	if n == nil {
		m.logger.Warn("node to start not found id=" + nodeID)
		return false
	}

	m.logger.Log(fmt.Sprintf("start node id=%s, type=%s", nodeID, n.Type))

	run.seq++
	n.RunInfo.Status = RunStatusRunning
	n.RunInfo.Seq = run.seq
	n.RunInfo.Error = ""
	if n.RunInfo.StartTime.IsZero() {
		n.RunInfo.StartTime = m.now()
	}

	if n.Type != NodeTypeStart {
		run.Traces = append(run.Traces, TraceEntry{
			ID:        xid.New().String(),
			NodeID:    n.ID,
			Node:      n.DisplayName(),
			Seq:       n.RunInfo.Seq,
			Timestamp: m.now(),
			Message:   "node running",
			Status:    RunStatusRunning,
			Data: &TraceData{
				Inputs:  runningInputs(n),
				Outputs: map[string]any{},
			},
		})
		m.logger.Log("trace added for running node " + n.DisplayName())
	}
	return true
}

// CompleteNodeExecution records the outcome reported by a node runner. The
// transient trace entry of the same node-run is replaced in place by the
// terminal entry; without one, the terminal entry is appended.
func (m *ExecutionManager) CompleteNodeExecution(g *Graph, run *Run, nodeID string, success bool, errText string) bool {
	n := g.node(nodeID)
	if n == nil {
		m.logger.Warn("node to complete not found id=" + nodeID)
		return false
	}

	outcome := "succeeded"
	if !success {
		outcome = "failed"
	}
	m.logger.Log(fmt.Sprintf("node %s id=%s, type=%s", outcome, nodeID, n.Type))

	now := m.now()
	n.RunInfo.Status = RunStatusCompleted
	if !success {
		n.RunInfo.Status = RunStatusError
		if errText != "" {
			n.RunInfo.Error = errText
		}
	}
	if n.RunInfo.StartTime.IsZero() {
		n.RunInfo.StartTime = now
	}
	n.RunInfo.EndTime = now

	entry := TraceEntry{
		NodeID:    n.ID,
		Node:      n.DisplayName(),
		Seq:       n.RunInfo.Seq,
		Timestamp: now,
		Message:   terminalMessage(success, errText),
		Status:    n.RunInfo.Status,
		Data:      terminalData(n, success, errText),
	}

	if i := runningTrace(run.Traces, n.ID, n.RunInfo.Seq); i != -1 {
		entry.ID = run.Traces[i].ID
		run.Traces[i] = entry
		m.logger.Log("trace updated for node " + entry.Node)
		return true
	}

	entry.ID = xid.New().String()
	run.Traces = append(run.Traces, entry)
	m.logger.Log("trace added for node " + entry.Node)
	return true
}

// runningTrace returns the index of the most recent transient entry of the
// given node-run, or -1.
func runningTrace(traces []TraceEntry, nodeID string, seq uint64) int {
	if seq == 0 {
		return -1
	}
	for i := len(traces) - 1; i >= 0; i-- {
		t := traces[i]
		if t.NodeID == nodeID && t.Seq == seq && t.Status == RunStatusRunning {
			return i
		}
	}
	return -1
}

func terminalMessage(success bool, errText string) string {
	switch {
	case success:
		return "node executed"
	case errText != "":
		return "execution failed"
	default:
		return "execution error"
	}
}

func runningInputs(n *Node) map[string]any {
	switch cfg := n.Config.(type) {
	case *LLMConfig:
		return map[string]any{"prompt": firstNonEmpty(cfg.TrueSystemPrompt, cfg.SystemPrompt)}
	case *ConditionalConfig:
		return map[string]any{"expression": firstNonEmpty(cfg.TrueExpression, cfg.Expression)}
	default:
		return configMap(n.Config)
	}
}

func terminalData(n *Node, success bool, errText string) *TraceData {
	data := &TraceData{
		Outputs: cloneValues(n.OutputValues),
	}
	if !success && errText != "" {
		data.Error = errText
	}

	switch n.Type {
	case NodeTypeStart, NodeTypeEnd:
		data.Inputs = cloneValues(n.OutputValues)
	default:
		data.Inputs = runningInputs(n)
	}
	return data
}

func cloneValues(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return maps.Clone(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
