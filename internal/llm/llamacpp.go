package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"MemHarness/internal/config"
)

func init() {
	Register("llamacpp", func(cfg config.LLMConfig) (Provider, error) {
		base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
		if base == "" {
			base = "http://127.0.0.1:8080"
		}
		model := cfg.Model
		if model == "" {
			model = "local"
		}
		return &LlamaCpp{
			baseURL:    base,
			model:      model,
			maxTokens:  cfg.MaxTokens,
			httpClient: &http.Client{Timeout: timeout(cfg)},
		}, nil
	})
}

// completionRequest is the body of the llama.cpp /completion endpoint.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	Stream      bool     `json:"stream"`
	Stop        []string `json:"stop,omitempty"`
	CachePrompt bool     `json:"cache_prompt"`
}

type completionResponse struct {
	Content  string `json:"content"`
	Stop     bool   `json:"stop"`
	Model    string `json:"model"`
	StopType string `json:"stop_type"`
}

// LlamaCpp talks to a llama.cpp server's native completion endpoint.
type LlamaCpp struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func (l *LlamaCpp) Name() string  { return "llamacpp" }
func (l *LlamaCpp) Model() string { return l.model }

func (l *LlamaCpp) Complete(ctx context.Context, prompt string) (string, error) {
	bodyBytes, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    l.maxTokens,
		Temperature: 0,
		Stream:      false,
		CachePrompt: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errorBody map[string]any
		if json.Unmarshal(respBodyBytes, &errorBody) == nil {
			return "", fmt.Errorf("llamacpp returned %d: %v", resp.StatusCode, errorBody)
		}
		return "", fmt.Errorf("llamacpp returned status %d: %s", resp.StatusCode, string(respBodyBytes))
	}

	var out completionResponse
	if err := json.Unmarshal(respBodyBytes, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}
