package flowgraph

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// NodeType identifies the kind of work a node performs.
type NodeType string

const (
	NodeTypeStart       NodeType = "start"
	NodeTypeLLM         NodeType = "llm"
	NodeTypeKnowledge   NodeType = "knowledge"
	NodeTypeConditional NodeType = "conditional"
	NodeTypeSearch      NodeType = "search"
	NodeTypeEnd         NodeType = "end"
)

// RunStatus is a node's position in the idle → waiting → running →
// completed|error state machine.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// RunInfo is the execution-state record of a node.
// Seq is the run sequence number assigned when the node last started; the
// matching transient trace entry carries the same value.
type RunInfo struct {
	Status    RunStatus `json:"status"`
	Seq       uint64    `json:"seq,omitempty"`
	StartTime time.Time `json:"startTime,omitzero"`
	EndTime   time.Time `json:"endTime,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Node is a typed unit of work in a workflow graph.
// Outputs is fixed by Type at creation time.
type Node struct {
	ID           string         `json:"id"`
	Type         NodeType       `json:"type"`
	Name         string         `json:"name"`
	X            float64        `json:"x"`
	Y            float64        `json:"y"`
	Inputs       []string       `json:"inputs"`
	Outputs      []string       `json:"outputs"`
	Config       NodeConfig     `json:"config"`
	OutputValues map[string]any `json:"outputValues,omitempty"`
	RunInfo      RunInfo        `json:"runInfo"`
}

// Edge is a directed connection from Source to Target.
// SourceHandle, TargetHandle and Label are carried but never matched on.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Document is the persisted shape of a workflow.
// Nodes keep creation order; Edges keep creation order, which is also the
// branch order of a conditional node.
type Document struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	c.Nodes = make([]Node, len(d.Nodes))
	for i := range d.Nodes {
		c.Nodes[i] = *d.Nodes[i].Clone()
	}
	c.Edges = slices.Clone(d.Edges)
	return &c
}

// Graph is the node and edge collection owned by a WorkflowStore.
// The managers mutate it in place.
type Graph struct {
	Nodes []*Node
	Edges []*Edge
}

// node returns the node with the given id, or nil.
func (g *Graph) node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Inputs = slices.Clone(n.Inputs)
	c.Outputs = slices.Clone(n.Outputs)
	c.OutputValues = maps.Clone(n.OutputValues)
	if n.Config != nil {
		c.Config = n.Config.clone()
	}
	return &c
}

// Status returns the run status, treating an unset status as idle.
func (n *Node) Status() RunStatus {
	if n.RunInfo.Status == "" {
		return RunStatusIdle
	}
	return n.RunInfo.Status
}

// DisplayName returns Name, falling back to the node type.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return string(n.Type)
}

type nodeJSON struct {
	ID           string          `json:"id"`
	Type         NodeType        `json:"type"`
	Name         string          `json:"name"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Inputs       []string        `json:"inputs"`
	Outputs      []string        `json:"outputs"`
	Config       json.RawMessage `json:"config"`
	OutputValues map[string]any  `json:"outputValues"`
	RunInfo      RunInfo         `json:"runInfo"`
}

// UnmarshalJSON decodes a node, selecting the config variant by type.
// Unknown types keep their config as a GenericConfig.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w nodeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg, err := decodeConfig(w.Type, w.Config)
	if err != nil {
		return fmt.Errorf("flowgraph: node %s config: %w", w.ID, err)
	}
	*n = Node{
		ID:           w.ID,
		Type:         w.Type,
		Name:         w.Name,
		X:            w.X,
		Y:            w.Y,
		Inputs:       w.Inputs,
		Outputs:      w.Outputs,
		Config:       cfg,
		OutputValues: w.OutputValues,
		RunInfo:      w.RunInfo,
	}
	return nil
}
