package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/meikuraledutech/flowgraph"
)

// Source returns up to topK entries of a knowledge base.
type Source interface {
	Retrieve(ctx context.Context, base string, topK int) ([]string, error)
}

// KnowledgeRunner fills a knowledge node's "knowledge" output from a Source.
type KnowledgeRunner struct {
	source Source
}

// NewKnowledgeRunner returns a runner reading entries from source.
func NewKnowledgeRunner(source Source) *KnowledgeRunner {
	return &KnowledgeRunner{source: source}
}

// Run returns the top entries of the node's knowledge base.
func (r *KnowledgeRunner) Run(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error) {
	cfg, err := configOf[*flowgraph.KnowledgeConfig](node)
	if err != nil {
		return nil, err
	}
	if cfg.KnowledgeBase == "" {
		return nil, fmt.Errorf("knowledge node %s has no knowledge base", node.ID)
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}

	entries, err := r.source.Retrieve(ctx, cfg.KnowledgeBase, topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge %s: %w", cfg.KnowledgeBase, err)
	}
	s.AddDetail(flowgraph.Detail{
		Name:        node.DisplayName(),
		Description: "knowledge entries from " + cfg.KnowledgeBase,
		Value:       entries,
	})
	return map[string]any{"knowledge": strings.Join(entries, "\n\n")}, nil
}

// listReader is the part of a redis client RedisKnowledge uses.
type listReader interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// RedisKnowledge reads knowledge bases stored as redis lists under
// "knowledge:<base>", most relevant entry first.
type RedisKnowledge struct {
	client listReader
	prefix string
}

// NewRedisKnowledge wraps a redis client. *redis.Client and
// *redis.ClusterClient both satisfy the parameter.
func NewRedisKnowledge(client listReader) *RedisKnowledge {
	return &RedisKnowledge{client: client, prefix: "knowledge:"}
}

// Retrieve returns the first topK entries of the list knowledge:<base>.
func (k *RedisKnowledge) Retrieve(ctx context.Context, base string, topK int) ([]string, error) {
	entries, err := k.client.LRange(ctx, k.prefix+base, 0, int64(topK-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return entries, nil
}
