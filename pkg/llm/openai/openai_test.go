package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/arbor/pkg/llm/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}]
		}`))
	}))
	defer srv.Close()

	call := openai.New(openai.Config{
		Model:       "test-model",
		APIKey:      "secret",
		BaseURL:     srv.URL,
		Temperature: 0.2,
		MaxTokens:   64,
	})

	resp, err := call(context.Background(), nil, map[string]string{"system": "be brief", "user": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp["status"])
	assert.Equal(t, "hello", resp["text"])
	assert.Equal(t, "hello", resp["result"])
	assert.Nil(t, resp["error"])
	assert.NotNil(t, resp["json"])

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, 0.2, got["temperature"])
	assert.EqualValues(t, 64, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestNew_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "nope"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	call := openai.New(openai.Config{Model: "m", APIKey: "k", BaseURL: srv.URL})
	_, err := call(context.Background(), nil, map[string]string{"user": "hi"}, nil)
	assert.Error(t, err)
}
