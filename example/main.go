package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meikuraledutech/flowgraph"
	"github.com/meikuraledutech/flowgraph/internal/config"
	"github.com/meikuraledutech/flowgraph/memory"
	"github.com/meikuraledutech/flowgraph/runner"
)

func main() {
	ctx := context.Background()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := cfg.SetupLogging(os.Stderr)

	// Documents go through the same Repository contract the server uses.
	var repo flowgraph.Repository = memory.New()

	// 1. Save the built-in template
	saved, err := repo.SaveWorkflow(ctx, flowgraph.DefaultTemplate())
	if err != nil {
		log.Fatal().Err(err).Msg("save")
	}
	fmt.Printf("saved workflow %q as %s\n", saved.Name, saved.ID)

	// ── Edit: add a knowledge node feeding the expert branch ──────────
	s := flowgraph.NewWorkflowStore(
		flowgraph.WithLogger(flowgraph.NewLogger(logger, "[WorkflowStore]", false)),
		flowgraph.WithDocument(saved),
	)
	kb, err := s.AddNode(flowgraph.NodeTypeKnowledge, 1200, 600)
	if err != nil {
		log.Fatal().Err(err).Msg("add node")
	}
	s.AddEdge("node-start", kb)
	s.AddEdge(kb, "node-llm-3")

	llm3, _ := s.Node("node-llm-3")
	cfg3 := llm3.Config.(*flowgraph.LLMConfig)
	cfg3.SystemPrompt += "\n\nHouse notes:\n{" + flowgraph.QualifiedName("knowledge", kb) + "}"
	s.UpdateNode(llm3)

	if err := s.Validate(); err != nil {
		log.Fatal().Err(err).Msg("validate")
	}
	if _, err := repo.SaveWorkflow(ctx, s.Workflow()); err != nil {
		log.Fatal().Err(err).Msg("save")
	}

	fmt.Println("\nvariables available to node-llm-3:")
	for _, g := range s.NodeAvailableVariables("node-llm-3") {
		names := make([]string, len(g.Variables))
		for i, v := range g.Variables {
			names[i] = "{" + v.Name + "}"
		}
		fmt.Printf("  %-28s %s\n", g.NodeName, strings.Join(names, " "))
	}

	// ── Run ───────────────────────────────────────────────────────────
	reg, closeRunners, err := runner.NewRegistry(ctx, cfg.RunnerSettings(), logger)
	if err != nil {
		log.Fatal().Err(err).Msg("runners")
	}
	defer closeRunners()
	offline(reg)

	report, err := runner.NewDriver(s, reg, runner.WithLogger(logger)).Run(ctx, map[string]any{
		"news":          "The central bank cut interest rates by half a point.",
		"ability_level": "case3",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("run")
	}

	fmt.Println("\ntrace:")
	for _, t := range report.Traces {
		fmt.Printf("  #%d %-18s %s\n", t.Seq, t.NodeID, t.Status)
	}
	fmt.Println("\nresult:")
	fmt.Println(report.Result)

	fmt.Println("\ndetails:")
	printJSON(report.Details)
}

// offline fills in canned runners for backends that are not configured, so
// the example runs without API keys.
func offline(reg runner.Registry) {
	if _, ok := reg[flowgraph.NodeTypeLLM]; !ok {
		reg[flowgraph.NodeTypeLLM] = runner.RunnerFunc(func(_ context.Context, _ *flowgraph.WorkflowStore, node flowgraph.Node, _ map[string]any) (map[string]any, error) {
			prompt := node.Config.(*flowgraph.LLMConfig).TrueSystemPrompt
			return map[string]any{"text": "[offline " + node.DisplayName() + "] " + prompt}, nil
		})
	}
	if _, ok := reg[flowgraph.NodeTypeSearch]; !ok {
		reg[flowgraph.NodeTypeSearch] = runner.NewSearchRunner(cannedSearch{})
	}
	if _, ok := reg[flowgraph.NodeTypeKnowledge]; !ok {
		reg[flowgraph.NodeTypeKnowledge] = runner.NewKnowledgeRunner(cannedKnowledge{})
	}
}

type cannedSearch struct{}

func (cannedSearch) Search(_ context.Context, query string, maxResults int) ([]runner.SearchResult, error) {
	out := make([]runner.SearchResult, 0, maxResults)
	for i := range min(maxResults, 2) {
		out = append(out, runner.SearchResult{
			Title:   fmt.Sprintf("Result %d for %s", i+1, query),
			Link:    fmt.Sprintf("https://example.com/%d", i+1),
			Snippet: "Offline search result.",
			Source:  "offline",
		})
	}
	return out, nil
}

type cannedKnowledge struct{}

func (cannedKnowledge) Retrieve(_ context.Context, base string, topK int) ([]string, error) {
	return []string{fmt.Sprintf("Knowledge base %q is offline; top %d entries unavailable.", base, topK)}, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
