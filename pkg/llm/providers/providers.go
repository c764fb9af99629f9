// Package providers builds the default LLM client of an agent from its
// meta.defaults.llm and meta.providers settings.
package providers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/aretw0/arbor/pkg/llm/gemini"
	"github.com/aretw0/arbor/pkg/llm/openai"
	"github.com/spf13/cast"
)

// Provider types.
const (
	TypeOpenAI           = "openai"
	TypeOpenAICompatible = "openai_compatible"
	TypeLMStudio         = "lmstudio"
	TypeGemini           = "gemini"
	TypeClaude           = "claude"
)

// DefaultClaudeMaxTokens is sent when a claude provider sets no max_tokens.
const DefaultClaudeMaxTokens = 1024

// New returns the client selected by meta.defaults.llm ("provider:model").
// It returns nil when no default is set or the provider has no settings.
func New(ctx context.Context, meta config.Meta, logger *slog.Logger) (llm.Client, error) {
	if meta.Defaults.LLM == "" {
		return nil, nil
	}
	id, hint, _ := strings.Cut(meta.Defaults.LLM, ":")
	if id == "" {
		id = TypeOpenAI
	}
	settings, ok := meta.Providers[id]
	if !ok {
		return nil, nil
	}
	call, err := Build(ctx, id, hint, settings, meta.Defaults)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(call, llm.WithLogger(logger)), nil
}

// Build resolves env placeholders in settings and creates the provider call.
// settings.type defaults to the provider id.
func Build(ctx context.Context, id, hint string, settings map[string]any, defaults config.Defaults) (llm.CallFunc, error) {
	providerType := cast.ToString(settings["type"])
	if providerType == "" {
		providerType = id
	}

	raw, err := config.ResolveEnv(settings)
	if err != nil {
		return nil, err
	}
	resolved := raw.(map[string]any)

	model := cast.ToString(resolved["model"])
	if model == "" {
		model = hint
	}
	temperature := defaults.Temperature()
	if t, ok := resolved["temperature"]; ok && t != nil {
		temperature = cast.ToFloat64(t)
	}
	apiKey := cast.ToString(resolved["api_key"])

	switch providerType {
	case TypeOpenAI, TypeOpenAICompatible, TypeLMStudio, TypeGemini, TypeClaude:
	default:
		return nil, domain.NewConfigError("unsupported provider type '%s' for provider '%s'", providerType, id)
	}
	if model == "" {
		return nil, domain.NewConfigError("provider '%s' requires a model hint via defaults.llm or providers.%s.model", id, id)
	}
	if (providerType == TypeGemini || providerType == TypeClaude) && apiKey == "" {
		return nil, domain.NewConfigError("provider '%s' requires api_key", id)
	}

	switch providerType {
	case TypeOpenAI:
		return openai.New(openai.Config{
			Model:       model,
			APIKey:      apiKey,
			BaseURL:     cast.ToString(resolved["base_url"]),
			Temperature: temperature,
		}), nil
	case TypeOpenAICompatible, TypeLMStudio:
		baseURL := cast.ToString(resolved["base_url"])
		if baseURL == "" {
			baseURL = openai.CompatibleBaseURL
		}
		if apiKey == "" {
			apiKey = "not-needed"
		}
		return openai.New(openai.Config{
			Model:          model,
			APIKey:         apiKey,
			BaseURL:        baseURL,
			Temperature:    temperature,
			Headers:        cast.ToStringMapString(resolved["headers"]),
			RequestTimeout: cast.ToFloat64(resolved["request_timeout"]),
		}), nil
	case TypeClaude:
		maxTokens := int64(DefaultClaudeMaxTokens)
		if v, ok := resolved["max_tokens"]; ok && v != nil {
			maxTokens = cast.ToInt64(v)
		}
		baseURL := cast.ToString(resolved["base_url"])
		if baseURL == "" {
			baseURL = openai.AnthropicBaseURL
		}
		return openai.New(openai.Config{
			Model:       model,
			APIKey:      apiKey,
			BaseURL:     baseURL,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		}), nil
	default:
		cfg := gemini.Config{
			Model:       model,
			APIKey:      apiKey,
			BaseURL:     cast.ToString(resolved["base_url"]),
			Temperature: temperature,
		}
		if v, ok := resolved["top_p"]; ok && v != nil {
			f := cast.ToFloat64(v)
			cfg.TopP = &f
		}
		if v, ok := resolved["top_k"]; ok && v != nil {
			f := cast.ToFloat64(v)
			cfg.TopK = &f
		}
		call, err := gemini.New(ctx, cfg)
		if err != nil {
			return nil, domain.NewConfigError("provider '%s': %w", id, err)
		}
		return call, nil
	}
}
