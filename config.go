package flowgraph

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// NodeConfig is the per-type option bag of a node. The set of variants is
// closed: StartConfig, LLMConfig, KnowledgeConfig, ConditionalConfig,
// SearchConfig, EndConfig, and GenericConfig for types this package does
// not know about.
type NodeConfig interface {
	// Kind reports the node type the variant belongs to, or "" for GenericConfig.
	Kind() NodeType
	clone() NodeConfig
}

// StartConfig lists the variables a start node asks for.
type StartConfig struct {
	Variables []string `json:"variables"`
}

// LLMConfig configures a language-model call.
// TrueSystemPrompt is SystemPrompt after variable substitution; it is
// rewritten on every run and is never a template.
type LLMConfig struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	SystemPrompt     string  `json:"systemPrompt"`
	TrueSystemPrompt string  `json:"trueSystemPrompt"`
}

// KnowledgeConfig selects a knowledge base and how many entries to read.
type KnowledgeConfig struct {
	KnowledgeBase string `json:"knowledgeBase"`
	TopK          int    `json:"topK"`
}

// Condition is one structured comparison of a conditional node.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// ConditionalConfig configures a branch node.
// TrueExpression is Expression after variable substitution.
// Conditions is the "if" case; each entry of Branches is one "elif".
type ConditionalConfig struct {
	ConditionType  string      `json:"conditionType"`
	Expression     string      `json:"expression"`
	TrueExpression string      `json:"trueExpression,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty"`
	Branches       []Condition `json:"branches,omitempty"`
	ElseAction     string      `json:"elseAction,omitempty"`
}

// SearchConfig configures a web search node. QueryPrompt may hold variables.
type SearchConfig struct {
	SearchEngine string `json:"searchEngine"`
	MaxResults   int    `json:"maxResults"`
	QueryPrompt  string `json:"queryPrompt"`
}

// EndConfig is the empty config of an end node.
type EndConfig struct{}

// GenericConfig holds the raw config of a node whose type is not built in.
type GenericConfig map[string]any

// Kind implements NodeConfig.
func (*StartConfig) Kind() NodeType       { return NodeTypeStart }
func (*LLMConfig) Kind() NodeType         { return NodeTypeLLM }
func (*KnowledgeConfig) Kind() NodeType   { return NodeTypeKnowledge }
func (*ConditionalConfig) Kind() NodeType { return NodeTypeConditional }
func (*SearchConfig) Kind() NodeType      { return NodeTypeSearch }
func (*EndConfig) Kind() NodeType         { return NodeTypeEnd }
func (GenericConfig) Kind() NodeType      { return "" }

func (c *StartConfig) clone() NodeConfig {
	cp := *c
	cp.Variables = slices.Clone(c.Variables)
	return &cp
}

func (c *LLMConfig) clone() NodeConfig { cp := *c; return &cp }

func (c *KnowledgeConfig) clone() NodeConfig { cp := *c; return &cp }

func (c *ConditionalConfig) clone() NodeConfig {
	cp := *c
	cp.Conditions = slices.Clone(c.Conditions)
	cp.Branches = slices.Clone(c.Branches)
	return &cp
}

func (c *SearchConfig) clone() NodeConfig { cp := *c; return &cp }

func (c *EndConfig) clone() NodeConfig { return &EndConfig{} }

func (c GenericConfig) clone() NodeConfig { return GenericConfig(maps.Clone(c)) }

// newConfig returns the zero variant for a node type.
func newConfig(t NodeType) NodeConfig {
	switch t {
	case NodeTypeStart:
		return &StartConfig{}
	case NodeTypeLLM:
		return &LLMConfig{}
	case NodeTypeKnowledge:
		return &KnowledgeConfig{}
	case NodeTypeConditional:
		return &ConditionalConfig{}
	case NodeTypeSearch:
		return &SearchConfig{}
	case NodeTypeEnd:
		return &EndConfig{}
	default:
		return GenericConfig{}
	}
}

func decodeConfig(t NodeType, raw json.RawMessage) (NodeConfig, error) {
	cfg := newConfig(t)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return cfg, nil
	}
	if g, ok := cfg.(GenericConfig); ok {
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, err
		}
		return g, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configMap flattens a config variant into a plain map for trace snapshots.
func configMap(cfg NodeConfig) map[string]any {
	out := map[string]any{}
	if cfg == nil {
		return out
	}
	if g, ok := cfg.(GenericConfig); ok {
		return maps.Clone(map[string]any(g))
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}
