package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agarwalvipin/crawlai/internal/clock/system"
	"github.com/stretchr/testify/require"
)

func TestNewLLMExtractorRequiresAPIKey(t *testing.T) {
	t.Setenv(llmAPIKeyEnv, "")
	_, err := NewLLMExtractor(4000, 10, false, system.New())
	require.Error(t, err)
}

func TestLLMExtractor(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"The extracted article body."}}]}`))
	}))
	defer server.Close()

	t.Setenv(llmAPIKeyEnv, "test-key")
	t.Setenv(llmBaseURLEnv, server.URL)
	t.Setenv(llmModelEnv, "test-model")

	e, err := NewLLMExtractor(64, 10, false, system.New())
	require.NoError(t, err)

	page := staticPage("https://example.com/a", `<html><head><title>LLM Page</title></head>
		<body><p>`+string(make([]byte, 200))+`</p></body></html>`)
	record, err := e.Extract(context.Background(), page)
	require.NoError(t, err)

	require.Equal(t, "Bearer test-key", gotAuth)
	require.Equal(t, "test-model", gotPayload["model"])
	messages, ok := gotPayload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user, ok := messages[1].(map[string]any)
	require.True(t, ok)
	// HTML is truncated to the configured cap before it reaches the prompt.
	require.LessOrEqual(t, len(user["content"].(string)), 64+len("Extract the main content from https://example.com/a:\n\nHTML:\n"))

	require.Equal(t, StrategyLLM, record.ExtractionStrategy)
	require.Equal(t, "The extracted article body.", record.MainText)
}

func TestLLMExtractorShortAnswerIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  ok "}}]}`))
	}))
	defer server.Close()

	t.Setenv(llmAPIKeyEnv, "test-key")
	t.Setenv(llmBaseURLEnv, server.URL)

	e, err := NewLLMExtractor(4000, 10, false, system.New())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), staticPage("https://example.com/a", "<p>x</p>"))
	require.ErrorIs(t, err, ErrExtractionEmpty)
}

func TestLLMExtractorAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	t.Setenv(llmAPIKeyEnv, "test-key")
	t.Setenv(llmBaseURLEnv, server.URL)

	e, err := NewLLMExtractor(4000, 10, false, system.New())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), staticPage("https://example.com/a", "<p>x</p>"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")
}
