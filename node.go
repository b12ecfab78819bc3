package flowgraph

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

type nodeTemplate struct {
	typ     NodeType
	name    string
	inputs  []string
	outputs []string
	config  func() NodeConfig
}

var nodeTemplates = []nodeTemplate{
	{
		typ:    NodeTypeStart,
		name:   "Start",
		config: func() NodeConfig { return &StartConfig{Variables: []string{}} },
	},
	{
		typ:     NodeTypeLLM,
		name:    "LLM",
		outputs: []string{"text"},
		config: func() NodeConfig {
			return &LLMConfig{Model: "deepseek-chat", Temperature: 0.7}
		},
	},
	{
		typ:     NodeTypeKnowledge,
		name:    "Knowledge",
		outputs: []string{"knowledge"},
		config: func() NodeConfig {
			return &KnowledgeConfig{KnowledgeBase: "news", TopK: 3}
		},
	},
	{
		typ:     NodeTypeConditional,
		name:    "Conditional",
		inputs:  []string{"condition"},
		outputs: []string{"true", "false"},
		config:  func() NodeConfig { return &ConditionalConfig{ConditionType: "content"} },
	},
	{
		typ:     NodeTypeSearch,
		name:    "Web Search",
		inputs:  []string{"query"},
		outputs: []string{"results"},
		config: func() NodeConfig {
			return &SearchConfig{SearchEngine: "google", MaxResults: 5}
		},
	},
	{
		typ:    NodeTypeEnd,
		name:   "Output",
		config: func() NodeConfig { return &EndConfig{} },
	},
}

func lookupTemplate(t NodeType) (nodeTemplate, bool) {
	for _, tpl := range nodeTemplates {
		if tpl.typ == t {
			return tpl, true
		}
	}
	return nodeTemplate{}, false
}

// NodeTypes lists the built-in node types in palette order.
func NodeTypes() []NodeType {
	types := make([]NodeType, len(nodeTemplates))
	for i, tpl := range nodeTemplates {
		types[i] = tpl.typ
	}
	return types
}

// DefaultConfig returns a fresh copy of the default config for t.
func DefaultConfig(t NodeType) (NodeConfig, bool) {
	tpl, ok := lookupTemplate(t)
	if !ok {
		return nil, false
	}
	return tpl.config(), true
}

// NewNode builds a node of type t from its template.
// It returns ErrUnknownNodeType if t is not a built-in type.
func NewNode(t NodeType, x, y float64) (*Node, error) {
	tpl, ok := lookupTemplate(t)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownNodeType, t, NodeTypes())
	}
	return &Node{
		ID:      "node-" + uuid.NewString(),
		Type:    t,
		Name:    tpl.name,
		X:       x,
		Y:       y,
		Inputs:  nonNil(slices.Clone(tpl.inputs)),
		Outputs: nonNil(slices.Clone(tpl.outputs)),
		Config:  tpl.config(),
		RunInfo: RunInfo{Status: RunStatusIdle},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NodeManager creates, mutates, deletes and looks up nodes of a Graph.
type NodeManager struct {
	logger *Logger
}

// NewNodeManager creates a NodeManager. A nil logger falls back to DefaultLogger.
func NewNodeManager(logger *Logger) *NodeManager {
	if logger == nil {
		logger = DefaultLogger("[NodeManager]")
	}
	return &NodeManager{logger: logger}
}

// AddNode appends a node built from the template of t and returns its id.
func (m *NodeManager) AddNode(g *Graph, t NodeType, x, y float64) (string, error) {
	m.logger.Log(fmt.Sprintf("add node type=%s, x=%v, y=%v", t, x, y))

	n, err := NewNode(t, x, y)
	if err != nil {
		m.logger.Error("add node failed", err.Error())
		return "", err
	}

	g.Nodes = append(g.Nodes, n)
	m.logger.Log(fmt.Sprintf("node added id=%s, count=%d", n.ID, len(g.Nodes)))
	return n.ID, nil
}

// UpdateNode replaces the stored node that has updated.ID, keeping the
// stored position, type and output ports. Returns false if no such node
// exists.
func (m *NodeManager) UpdateNode(g *Graph, updated *Node) bool {
	m.logger.Log(fmt.Sprintf("update node id=%s, type=%s", updated.ID, updated.Type))

	for i, n := range g.Nodes {
		if n.ID != updated.ID {
			continue
		}
		next := updated.Clone()
		next.X, next.Y = n.X, n.Y
		next.Type = n.Type
		next.Outputs = slices.Clone(n.Outputs)
		g.Nodes[i] = next
		m.logger.Log("node updated id=" + updated.ID)
		return true
	}

	m.logger.Warn("node to update not found id=" + updated.ID)
	return false
}

// UpdateNodePosition moves a node. Returns false if no such node exists.
func (m *NodeManager) UpdateNodePosition(g *Graph, nodeID string, x, y float64) bool {
	n := g.node(nodeID)
	if n == nil {
		return false
	}
	n.X, n.Y = x, y
	return true
}

// DeleteNode removes the node and every edge whose source or target is it.
// It returns the new selected node id: "" if the deleted node was selected,
// otherwise selectedID unchanged.
func (m *NodeManager) DeleteNode(g *Graph, nodeID, selectedID string) string {
	m.logger.Log("delete node id=" + nodeID)

	idx := slices.IndexFunc(g.Nodes, func(n *Node) bool { return n.ID == nodeID })
	if idx == -1 {
		m.logger.Warn("node to delete not found id=" + nodeID)
		return selectedID
	}

	before := len(g.Edges)
	g.Edges = slices.DeleteFunc(g.Edges, func(e *Edge) bool {
		return e.Source == nodeID || e.Target == nodeID
	})
	m.logger.Log(fmt.Sprintf("removed %d edges of node %s", before-len(g.Edges), nodeID))

	deleted := g.Nodes[idx]
	g.Nodes = slices.Delete(g.Nodes, idx, idx+1)
	m.logger.Log(fmt.Sprintf("node deleted id=%s, type=%s, count=%d", nodeID, deleted.Type, len(g.Nodes)))

	if selectedID == nodeID {
		m.logger.Log("selection cleared, selected node was deleted")
		return ""
	}
	return selectedID
}

// SelectNode resolves a selection request. An empty nodeID clears the
// selection. A missing node keeps the requested id selected and returns a
// nil node, matching an editor that selects before the node is loaded.
func (m *NodeManager) SelectNode(g *Graph, nodeID, currentID string) (string, *Node) {
	if nodeID == "" {
		if currentID != "" {
			m.logger.Log("selection cleared, previous id=" + currentID)
		}
		return "", nil
	}

	n := g.node(nodeID)
	if n == nil {
		m.logger.Warn("selected node does not exist id=" + nodeID)
		return nodeID, nil
	}
	m.logger.Debug("node selected", map[string]any{
		"id":   n.ID,
		"type": n.Type,
		"name": n.Name,
	})
	return nodeID, n
}

// SetNodeOutputValue writes one output port value.
func (m *NodeManager) SetNodeOutputValue(g *Graph, nodeID, output string, value any) bool {
	n := g.node(nodeID)
	if n == nil {
		m.logger.Warn("node not found id=" + nodeID)
		return false
	}
	if n.OutputValues == nil {
		n.OutputValues = map[string]any{}
	}
	n.OutputValues[output] = value
	return true
}

// NodeOutputValue reads one output port value.
func (m *NodeManager) NodeOutputValue(g *Graph, nodeID, output string) (any, bool) {
	n := g.node(nodeID)
	if n == nil || n.OutputValues == nil {
		return nil, false
	}
	v, ok := n.OutputValues[output]
	return v, ok
}

// ClearRunStatus resets every node to idle with no output values.
func (m *NodeManager) ClearRunStatus(g *Graph) {
	for _, n := range g.Nodes {
		n.OutputValues = map[string]any{}
		n.RunInfo = RunInfo{Status: RunStatusIdle}
	}
}

// NodesByType returns the nodes of type t in creation order.
func (m *NodeManager) NodesByType(g *Graph, t NodeType) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// StartNode returns the first start node in creation order, or nil.
func (m *NodeManager) StartNode(g *Graph) *Node {
	return firstOfType(g, NodeTypeStart)
}

// EndNode returns the first end node in creation order, or nil.
func (m *NodeManager) EndNode(g *Graph) *Node {
	return firstOfType(g, NodeTypeEnd)
}

func firstOfType(g *Graph, t NodeType) *Node {
	for _, n := range g.Nodes {
		if n.Type == t {
			return n
		}
	}
	return nil
}
