// Package openai calls chat completion endpoints that speak the OpenAI API:
// OpenAI itself, LM Studio and other compatible servers, and Anthropic's
// compatibility endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Base URLs for the non-OpenAI endpoints.
const (
	CompatibleBaseURL = "http://127.0.0.1:1234/v1"
	AnthropicBaseURL  = "https://api.anthropic.com/v1/"
)

// Config selects the endpoint and the sampling parameters.
type Config struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	// MaxTokens is sent only when positive.
	MaxTokens int64
	Headers   map[string]string
	// RequestTimeout applies when the node resolves no timeout.
	RequestTimeout float64
}

// New returns a CallFunc that sends the prompt as one chat completion.
func New(cfg Config, opts ...option.RequestOption) llm.CallFunc {
	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	if cfg.RequestTimeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(llm.Seconds(cfg.RequestTimeout)))
	}
	clientOpts = append(clientOpts, opts...)
	client := openaisdk.NewClient(clientOpts...)

	return func(ctx context.Context, _ *domain.Node, prompt map[string]string, _ *domain.Timeout) (map[string]any, error) {
		params := openaisdk.ChatCompletionNewParams{
			Model:       shared.ChatModel(cfg.Model),
			Messages:    convertMessages(llm.PromptToMessages(prompt)),
			Temperature: openaisdk.Float(cfg.Temperature),
		}
		if cfg.MaxTokens > 0 {
			params.MaxTokens = openaisdk.Int(cfg.MaxTokens)
		}

		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("completion returned no choices")
		}
		return llm.Response(200, toJSON(resp), resp.Choices[0].Message.Content), nil
	}
}

func convertMessages(msgs []llm.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openaisdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openaisdk.AssistantMessage(m.Content))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}

func toJSON(resp *openaisdk.ChatCompletion) any {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
