package flowgraph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Variable is one name a node's templates may reference.
type Variable struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	NodeID      string `json:"nodeId,omitempty"`
	Type        string `json:"type,omitempty"`
	Color       string `json:"color"`
}

// VariableGroup is the set of variables contributed by one node.
type VariableGroup struct {
	NodeID    string     `json:"nodeId"`
	NodeName  string     `json:"nodeName"`
	Variables []Variable `json:"variables"`
}

// QualifiedName returns the globally unique reference "<output>_<nodeID>".
func QualifiedName(output, nodeID string) string {
	return output + "_" + nodeID
}

// VariableResolver substitutes {token} references in text and computes the
// variables visible to a node.
type VariableResolver struct {
	logger *Logger
}

// NewVariableResolver creates a VariableResolver. A nil logger falls back to DefaultLogger.
func NewVariableResolver(logger *Logger) *VariableResolver {
	if logger == nil {
		logger = DefaultLogger("[VariableResolver]")
	}
	return &VariableResolver{logger: logger}
}

// Replace substitutes every {token} in text in a single left-to-right pass.
// A token of the form output_nodeID resolves to that node's output value
// when defined; otherwise a token present in inputValues resolves to the
// input; anything else is left as written. Substituted values are not
// scanned again.
func (r *VariableResolver) Replace(g *Graph, text, currentNodeID string, inputValues map[string]any) string {
	if text == "" || !strings.Contains(text, "{") {
		return text
	}

	r.logger.Log("replace variables for node " + currentNodeID)
	r.logger.Debug("original text: " + text)

	out := tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		token := match[1 : len(match)-1]

		if parts := strings.Split(token, "_"); len(parts) == 2 {
			if n := g.node(parts[1]); n != nil {
				if v, ok := n.OutputValues[parts[0]]; ok {
					r.logger.Debug("resolved node variable " + token)
					return FormatValue(v)
				}
			}
		}
		if v, ok := inputValues[token]; ok {
			r.logger.Debug("resolved input variable " + token)
			return FormatValue(v)
		}

		r.logger.Debug("no value for variable " + token + ", keeping placeholder")
		return match
	})

	r.logger.Debug("replaced text: " + out)
	return out
}

// AvailableVariables lists what nodeID may reference: the start node's
// declared inputs, then the outputs of every node reachable backwards from
// nodeID, in breadth-first order. Each predecessor appears at most once.
func (r *VariableResolver) AvailableVariables(g *Graph, nodeID string) []VariableGroup {
	if nodeID == "" {
		return nil
	}

	var result []VariableGroup

	if start := firstOfType(g, NodeTypeStart); start != nil {
		var vars []Variable
		for _, name := range start.Inputs {
			if strings.TrimSpace(name) == "" {
				continue
			}
			vars = append(vars, Variable{
				Name:        name,
				DisplayName: name,
				NodeID:      start.ID,
				Type:        "String",
				Color:       "green",
			})
		}
		if len(vars) > 0 {
			result = append(result, VariableGroup{
				NodeID:    start.ID,
				NodeName:  start.DisplayName(),
				Variables: vars,
			})
		}
	}

	visited := map[string]bool{nodeID: true}
	queue := predecessors(g, nodeID)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		queue = append(queue, predecessors(g, id)...)

		n := g.node(id)
		if n == nil || len(n.Outputs) == 0 {
			continue
		}

		color := variableColor(n.Type)
		vars := make([]Variable, 0, len(n.Outputs))
		for _, output := range n.Outputs {
			vars = append(vars, Variable{
				Name:        QualifiedName(output, n.ID),
				DisplayName: output,
				NodeID:      n.ID,
				Type:        "String",
				Color:       color,
			})
		}
		result = append(result, VariableGroup{
			NodeID:    n.ID,
			NodeName:  fmt.Sprintf("%s (%s)", n.Name, n.Type),
			Variables: vars,
		})
	}

	return result
}

// InputVariables returns the start node's declared inputs, each mapped to "".
func (r *VariableResolver) InputVariables(g *Graph) map[string]any {
	vars := map[string]any{}
	start := firstOfType(g, NodeTypeStart)
	if start == nil {
		return vars
	}
	for _, name := range start.Inputs {
		if strings.TrimSpace(name) != "" {
			vars[name] = ""
		}
	}
	return vars
}

func predecessors(g *Graph, nodeID string) []string {
	var ids []string
	for _, e := range g.Edges {
		if e.Target == nodeID {
			ids = append(ids, e.Source)
		}
	}
	return ids
}

func variableColor(t NodeType) string {
	switch t {
	case NodeTypeKnowledge:
		return "purple"
	case NodeTypeConditional:
		return "yellow"
	default:
		return "blue"
	}
}

// FormatValue renders an output or input value for substitution into text.
// Strings are used as is, nil renders empty, composite values render as JSON.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
