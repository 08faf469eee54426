// Package llm narrates anomaly results through the Mistral chat API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds connection settings for the Mistral API.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Request is one chat completion request.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Client is the seam the HTTP layer depends on, so narration can be faked in
// tests and disabled in fast mode.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Mistral calls the Mistral chat-completions endpoint.
type Mistral struct {
	config Config
	client *http.Client
}

var _ Client = (*Mistral)(nil)

// NewMistral creates a Mistral client.
func NewMistral(cfg Config) *Mistral {
	if cfg.Model == "" {
		cfg.Model = "mistral-large-latest"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai"
	}
	return &Mistral{
		config: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the model's reply.
func (m *Mistral) Complete(ctx context.Context, req Request) (string, error) {
	if m.config.APIKey == "" {
		return "", errors.New("missing Mistral API key")
	}

	body, err := json.Marshal(chatRequest{
		Model: m.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: 0.2,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mistral API returned status: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", err
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("mistral API returned no choices")
	}

	return chat.Choices[0].Message.Content, nil
}
