package runner

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Settings selects the backends of the built-in runners. A runner whose
// credentials are missing is left out of the registry, so nodes of that
// type fail with "no runner" when reached.
type Settings struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GoogleAPIKey     string
	GoogleCSEID      string
	RedisAddr        string
	ConditionTimeout time.Duration
}

// NewRegistry builds the runners described by s. The returned close
// function releases backend connections.
func NewRegistry(ctx context.Context, s Settings, logger zerolog.Logger) (Registry, func() error, error) {
	var (
		llm, knowledge, search Runner
		closers                []func() error
	)

	if s.OpenAIAPIKey != "" {
		llm = NewLLMRunner(NewOpenAIClient(s.OpenAIAPIKey, s.OpenAIBaseURL), logger)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set, llm nodes will fail")
	}

	if s.GoogleAPIKey != "" && s.GoogleCSEID != "" {
		g, err := NewGoogleSearcher(ctx, s.GoogleAPIKey, s.GoogleCSEID)
		if err != nil {
			return nil, nil, err
		}
		search = NewSearchRunner(g)
	} else {
		logger.Warn().Msg("GOOGLE_API_KEY or GOOGLE_CSE_ID not set, search nodes will fail")
	}

	if s.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		closers = append(closers, client.Close)
		knowledge = NewKnowledgeRunner(NewRedisKnowledge(client))
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, knowledge nodes will fail")
	}

	reg := DefaultRegistry(llm, knowledge, search, NewConditionalRunner(NewGojaEvaluator(s.ConditionTimeout)))
	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return reg, closeAll, nil
}
