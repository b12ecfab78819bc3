package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/meikuraledutech/flowgraph"
)

// NewOpenAIClient builds a chat client for an OpenAI-compatible API.
// An empty baseURL keeps the OpenAI default.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// LLMRunner streams a chat completion for llm nodes. The expanded system
// prompt is sent as the system message and the run inputs as the user
// message. Partial text is written to the node's "text" output as chunks
// arrive.
type LLMRunner struct {
	client *openai.Client
	logger zerolog.Logger
}

// NewLLMRunner returns a runner that streams completions from client.
func NewLLMRunner(client *openai.Client, logger zerolog.Logger) *LLMRunner {
	return &LLMRunner{client: client, logger: logger}
}

// Run sends the node's resolved prompt and returns the streamed text.
func (r *LLMRunner) Run(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error) {
	cfg, err := configOf[*flowgraph.LLMConfig](node)
	if err != nil {
		return nil, err
	}

	prompt := cfg.TrueSystemPrompt
	if prompt == "" {
		prompt = s.ReplaceVariables(cfg.SystemPrompt, node.ID, inputs)
	}

	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: prompt,
	}}
	if user := userMessage(inputs); user != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: user,
		})
	}

	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: float32(cfg.Temperature),
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return map[string]any{"text": text.String()}, fmt.Errorf("llm stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			text.WriteString(chunk)
			s.SetNodeOutputValue(node.ID, "text", text.String())
		}
	}

	r.logger.Debug().Str("node", node.ID).Int("chars", text.Len()).Msg("llm completion finished")
	return map[string]any{"text": text.String()}, nil
}

// userMessage renders the run inputs as "name: value" lines in name order.
func userMessage(inputs map[string]any) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(inputs)) {
		v := flowgraph.FormatValue(inputs[k])
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
