package player

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
)

// LLMBackend calls an OpenAI-compatible chat-completions endpoint
// directly, for providers that don't need a full agent container: one
// request, one response, no tool use.
type LLMBackend struct {
	model      string
	endpoint   string
	apiKeyEnv  string
	httpClient *http.Client
}

// NewLLMBackend builds an LLM backend from one player's options.
// Provider selects both the endpoint and the environment variable the
// credential is read from, following the GEMINI_API_KEY convention.
func NewLLMBackend(opts config.PlayerOptions) *LLMBackend {
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	endpoint, apiKeyEnv := providerEndpoint(opts.Provider)
	return &LLMBackend{
		model:      opts.Model,
		endpoint:   endpoint,
		apiKeyEnv:  apiKeyEnv,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIKeyEnvVar returns the environment variable an LLM backend for
// provider reads its credential from, so callers (the rate limiter pool
// key, in particular) can identify which account a player is using
// without duplicating the provider table.
func APIKeyEnvVar(provider string) string {
	_, apiKeyEnv := providerEndpoint(provider)
	return apiKeyEnv
}

func providerEndpoint(provider string) (endpoint, apiKeyEnv string) {
	switch strings.ToLower(provider) {
	case "gemini":
		return "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions", "GEMINI_API_KEY"
	case "openai":
		return "https://api.openai.com/v1/chat/completions", "OPENAI_API_KEY"
	case "anthropic":
		return "https://api.anthropic.com/v1/chat/completions", "ANTHROPIC_API_KEY"
	default:
		return "https://api.openai.com/v1/chat/completions", "OPENAI_API_KEY"
	}
}

func (b *LLMBackend) Complete(ctx context.Context, transcript []ChatMessage, maxTokens int, requestParams map[string]string) (string, Usage, error) {
	apiKey := os.Getenv(b.apiKeyEnv)
	if apiKey == "" {
		return "", Usage{}, fmt.Errorf("llm backend: %s not set", b.apiKeyEnv)
	}

	messages := make([]map[string]string, len(transcript))
	for i, m := range transcript {
		messages[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	reqBody := map[string]any{
		"model":      b.model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	for k, v := range requestParams {
		reqBody[k] = v
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(resp.Body).Decode(&errBody)
		return "", Usage{}, fmt.Errorf("llm backend: provider returned %d: %v", resp.StatusCode, errBody)
	}

	var chatResult struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResult); err != nil {
		return "", Usage{}, fmt.Errorf("llm backend: decode response: %w", err)
	}
	if len(chatResult.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("llm backend: no choices in response")
	}

	usage := Usage{PromptTokens: chatResult.Usage.PromptTokens, CompletionTokens: chatResult.Usage.CompletionTokens}
	return chatResult.Choices[0].Message.Content, usage, nil
}

func (b *LLMBackend) Close() error { return nil }
