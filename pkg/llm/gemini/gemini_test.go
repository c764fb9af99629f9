package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText("pong", genai.RoleModel),
		}},
	}, nil
}

func TestNewWithModels(t *testing.T) {
	fake := &fakeModels{}
	topK := 4.0
	call := NewWithModels(fake, Config{Model: "gemini-test", Temperature: 0.5, TopK: &topK})

	resp, err := call(context.Background(), nil, map[string]string{
		"system":    "rules",
		"user":      "ping",
		"assistant": "earlier",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp["text"])
	assert.Equal(t, "gemini-test", fake.model)

	require.Len(t, fake.contents, 2)
	assert.Equal(t, genai.RoleUser, fake.contents[0].Role)
	assert.Equal(t, genai.RoleModel, fake.contents[1].Role)
	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, "rules", fake.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(0.5), *fake.config.Temperature)
	assert.Equal(t, float32(4), *fake.config.TopK)
	assert.Nil(t, fake.config.TopP)
}
