package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"MemHarness/internal/config"
)

func init() {
	Register("openai", func(cfg config.LLMConfig) (Provider, error) {
		key := apiKey(cfg, "OPENAI_API_KEY")
		if key == "" {
			return nil, &ConfigError{Provider: "openai", Msg: "OPENAI_API_KEY is not set"}
		}
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
		return newOpenAI("openai", cfg, key, cfg.APIBase), nil
	})
	Register("openai-compatible", func(cfg config.LLMConfig) (Provider, error) {
		base := strings.TrimSpace(cfg.APIBase)
		if base == "" {
			return nil, &ConfigError{Provider: "openai-compatible", Msg: "api_base is required"}
		}
		if err := requireModel("openai-compatible", cfg); err != nil {
			return nil, err
		}
		// Self-hosted servers usually ignore the key but the client insists on one.
		key := apiKey(cfg, "OPENAI_API_KEY")
		if key == "" {
			key = "not-needed"
		}
		return newOpenAI("openai-compatible", cfg, key, base), nil
	})
}

// OpenAI talks to the chat completions API, hosted or self-hosted.
type OpenAI struct {
	name      string
	model     string
	maxTokens int
	client    *openai.Client
}

func newOpenAI(name string, cfg config.LLMConfig, key, baseURL string) *OpenAI {
	oc := openai.DefaultConfig(key)
	if baseURL != "" {
		oc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout(cfg)}

	return &OpenAI{
		name:      name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    openai.NewClientWithConfig(oc),
	}
}

func (o *OpenAI) Name() string  { return o.name }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
		MaxTokens:   o.maxTokens,
		// A zero temperature is dropped by omitempty and the server default
		// applies, so send the closest value that survives encoding.
		Temperature: math.SmallestNonzeroFloat32,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", o.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(o.name + ": empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
