package llm

import (
	"context"
	"fmt"
	"time"

	"salesbot/pkg"
	"salesbot/src/logger"
	"salesbot/src/model"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
)

// Generator is the slice of a chat model the workflow depends on
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// NewChatModel builds the configured provider and bounds every call by cfg.Timeout
func NewChatModel(ctx context.Context, cfg model.LLMConfig) (Generator, error) {
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)

	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		gen, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		gen, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Options: &api.Options{
				Temperature: temperature,
				NumPredict:  maxTokens,
			},
		})
	case "deepseek":
		gen, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
	case "ark":
		gen, err = ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	default:
		return nil, pkg.NewValidationError(fmt.Sprintf("unknown LLM provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s chat model: %w", cfg.Provider, err)
	}

	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("🤖 Chat model ready")
	return WithTimeout(gen, cfg.Timeout), nil
}

type timedGenerator struct {
	inner   Generator
	timeout time.Duration
}

// WithTimeout bounds each Generate call and classifies failures as upstream errors
func WithTimeout(gen Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return gen
	}
	return &timedGenerator{inner: gen, timeout: timeout}
}

func (t *timedGenerator) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	msg, err := t.inner.Generate(ctx, input, opts...)
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("⚠️ Chat model call failed")
		return nil, pkg.NewUpstreamError("model", err)
	}
	logger.Debug().Dur("elapsed", time.Since(start)).Int("tool_calls", len(msg.ToolCalls)).Msg("🤖 Chat model replied")
	return msg, nil
}

// TokensUsed reads the total token count off a reply when the provider reports it
func TokensUsed(msg *schema.Message) *int {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	total := msg.ResponseMeta.Usage.TotalTokens
	return &total
}
