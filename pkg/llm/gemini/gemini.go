// Package gemini calls Google Gemini through the genai SDK.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	"google.golang.org/genai"
)

// Config selects the model and the sampling parameters.
type Config struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	TopP        *float64
	TopK        *float64
}

// Models is the part of the genai client used here.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// New builds a genai client for cfg and returns a CallFunc backed by it.
func New(ctx context.Context, cfg Config) (llm.CallFunc, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return NewWithModels(client.Models, cfg), nil
}

// NewWithModels returns a CallFunc that sends prompts through models.
func NewWithModels(models Models, cfg Config) llm.CallFunc {
	return func(ctx context.Context, _ *domain.Node, prompt map[string]string, _ *domain.Timeout) (map[string]any, error) {
		contents, system := convertMessages(llm.PromptToMessages(prompt))

		gc := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr(float32(cfg.Temperature)),
			SystemInstruction: system,
		}
		if cfg.TopP != nil {
			gc.TopP = genai.Ptr(float32(*cfg.TopP))
		}
		if cfg.TopK != nil {
			gc.TopK = genai.Ptr(float32(*cfg.TopK))
		}

		resp, err := models.GenerateContent(ctx, cfg.Model, contents, gc)
		if err != nil {
			return nil, err
		}
		return llm.Response(200, toJSON(resp), resp.Text()), nil
	}
}

// convertMessages maps assistant turns to the model role and folds system
// messages into the system instruction.
func convertMessages(msgs []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system *genai.Content
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system == nil {
				system = genai.NewContentFromText(m.Content, genai.RoleUser)
			} else {
				system.Parts = append(system.Parts, genai.NewPartFromText(m.Content))
			}
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("", genai.RoleUser))
	}
	return contents, system
}

func toJSON(resp *genai.GenerateContentResponse) any {
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
