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
	Register("baseten", func(cfg config.LLMConfig) (Provider, error) {
		key := apiKey(cfg, "BASETEN_API_KEY")
		if key == "" {
			return nil, &ConfigError{Provider: "baseten", Msg: "BASETEN_API_KEY is not set"}
		}
		if err := requireModel("baseten", cfg); err != nil {
			return nil, err
		}
		endpoint := strings.TrimSpace(cfg.APIBase)
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://model-%s.api.baseten.co/production/predict", cfg.Model)
		}
		return &Baseten{
			endpoint:   endpoint,
			apiKey:     key,
			model:      cfg.Model,
			maxTokens:  cfg.MaxTokens,
			httpClient: &http.Client{Timeout: timeout(cfg)},
		}, nil
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type basetenRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// Baseten calls a deployed model's predict endpoint with an Api-Key header.
// The model field is the Baseten model id.
type Baseten struct {
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func (b *Baseten) Name() string  { return "baseten" }
func (b *Baseten) Model() string { return b.model }

func (b *Baseten) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(basetenRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   b.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("baseten request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("baseten returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return strings.TrimSpace(extractBasetenText(raw)), nil
}

// extractBasetenText reads choices[0].message.content, then output, and
// falls back to the raw body.
func extractBasetenText(raw []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Output *string `json:"output"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return string(raw)
	}
	if len(parsed.Choices) > 0 && parsed.Choices[0].Message.Content != "" {
		return parsed.Choices[0].Message.Content
	}
	if parsed.Output != nil {
		return *parsed.Output
	}
	return string(raw)
}
