package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMistralComplete(t *testing.T) {
	var got chatRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}},
			},
		})
	}))
	defer backend.Close()

	client := NewMistral(Config{APIKey: "test-key", BaseURL: backend.URL})

	out, err := client.Complete(context.Background(), Request{
		System:    "system text",
		User:      "user text",
		MaxTokens: 650,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "mistral-large-latest", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user text", got.Messages[1].Content)
	assert.Equal(t, 0.2, got.Temperature)
	assert.Equal(t, 650, got.MaxTokens)
}

func TestMistralCompleteErrors(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		client := NewMistral(Config{})
		_, err := client.Complete(context.Background(), Request{User: "x"})
		assert.Error(t, err)
	})

	t.Run("non-200 status", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer backend.Close()

		client := NewMistral(Config{APIKey: "k", BaseURL: backend.URL})
		_, err := client.Complete(context.Background(), Request{User: "x"})
		assert.ErrorContains(t, err, "429")
	})

	t.Run("empty choices", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
		}))
		defer backend.Close()

		client := NewMistral(Config{APIKey: "k", BaseURL: backend.URL})
		_, err := client.Complete(context.Background(), Request{User: "x"})
		assert.Error(t, err)
	})
}

func TestPrompts(t *testing.T) {
	report := RiskReportPrompt("Rows=3, Columns=2.", `[{"id":"T1"}]`)
	assert.Contains(t, report, "Rows=3, Columns=2.")
	assert.Contains(t, report, `[{"id":"T1"}]`)
	assert.Contains(t, report, "SAR-style summary")

	exec := ExecutiveSummaryPrompt("summary", "[]")
	assert.Contains(t, exec, "compliance manager")

	explain := ExplainAnomalyPrompt("summary", `{"id":"T9"}`)
	assert.Contains(t, explain, `"verdict"`)
	assert.Contains(t, explain, `{"id":"T9"}`)
}
