package flowgraph

// DefaultTemplate returns the built-in news-explainer workflow. A conditional
// node routes on ability_level: case1 goes straight to an LLM, case2 and
// everything else search the web first.
func DefaultTemplate() *Document {
	llm := func(id, name, prompt string, x, y float64) Node {
		return Node{
			ID: id, Type: NodeTypeLLM, Name: name, X: x, Y: y,
			Inputs:  []string{},
			Outputs: []string{"text"},
			Config: &LLMConfig{
				Model:        "deepseek-chat",
				Temperature:  0.7,
				SystemPrompt: prompt,
			},
			RunInfo: RunInfo{Status: RunStatusIdle},
		}
	}
	search := func(id, name string, maxResults int, x, y float64) Node {
		return Node{
			ID: id, Type: NodeTypeSearch, Name: name, X: x, Y: y,
			Inputs:  []string{"query"},
			Outputs: []string{"results"},
			Config: &SearchConfig{
				SearchEngine: "google",
				MaxResults:   maxResults,
				QueryPrompt:  "{news}",
			},
			RunInfo: RunInfo{Status: RunStatusIdle},
		}
	}
	end := func(id, name string, x, y float64) Node {
		return Node{
			ID: id, Type: NodeTypeEnd, Name: name, X: x, Y: y,
			Inputs:  []string{},
			Outputs: []string{},
			Config:  &EndConfig{},
			RunInfo: RunInfo{Status: RunStatusIdle},
		}
	}
	edge := func(id, source, target string) Edge {
		return Edge{ID: id, Source: source, Target: target}
	}

	return &Document{
		Name:        "News explainer",
		Description: "Explains a news item at the reader's ability level.",
		Nodes: []Node{
			{
				ID: "node-start", Type: NodeTypeStart, Name: "Start", X: 10, Y: 150,
				Inputs:  []string{"news", "ability_level"},
				Outputs: []string{},
				Config:  &StartConfig{Variables: []string{}},
				RunInfo: RunInfo{Status: RunStatusIdle},
			},
			{
				ID: "node-conditional", Type: NodeTypeConditional, Name: "Ability level", X: 300, Y: 150,
				Inputs:  []string{"condition"},
				Outputs: []string{"true", "false"},
				Config: &ConditionalConfig{
					ConditionType: "content",
					Conditions:    []Condition{{Field: "ability_level", Operator: "eq", Value: "case1"}},
					Branches:      []Condition{{Field: "ability_level", Operator: "eq", Value: "case2"}},
				},
				RunInfo: RunInfo{Status: RunStatusIdle},
			},
			search("node-network-1", "Basic web search", 3, 600, 250),
			search("node-network-2", "Deep web search", 8, 600, 450),
			llm("node-llm-1", "L1",
				"Explain this news item in plain words for a beginner: {news}", 600, 50),
			llm("node-llm-2", "L2",
				"Explain this news item for an intermediate reader: {news}\n\nBackground:\n{results_node-network-1}", 900, 250),
			llm("node-llm-3", "L3",
				"Analyse this news item in depth for an expert: {news}\n\nSources:\n{results_node-network-2}", 900, 450),
			end("node-end-1", "Output 1", 900, 50),
			end("node-end-2", "Output 2", 1200, 250),
			end("node-end-3", "Output 3", 1200, 450),
		},
		Edges: []Edge{
			edge("edge-start-conditional", "node-start", "node-conditional"),
			edge("edge-conditional-llm1", "node-conditional", "node-llm-1"),
			edge("edge-conditional-network1", "node-conditional", "node-network-1"),
			edge("edge-conditional-network2", "node-conditional", "node-network-2"),
			edge("edge-network1-llm2", "node-network-1", "node-llm-2"),
			edge("edge-network2-llm3", "node-network-2", "node-llm-3"),
			edge("edge-llm1-end1", "node-llm-1", "node-end-1"),
			edge("edge-llm2-end2", "node-llm-2", "node-end-2"),
			edge("edge-llm3-end3", "node-llm-3", "node-end-3"),
		},
	}
}
