package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"MemHarness/internal/config"
)

func init() {
	Register("anthropic", func(cfg config.LLMConfig) (Provider, error) {
		key := apiKey(cfg, "ANTHROPIC_API_KEY")
		if key == "" {
			return nil, &ConfigError{Provider: "anthropic", Msg: "ANTHROPIC_API_KEY is not set"}
		}
		if cfg.Model == "" {
			cfg.Model = "claude-3-5-haiku-latest"
		}
		opts := []anthropicopt.RequestOption{
			anthropicopt.WithAPIKey(key),
			anthropicopt.WithHTTPClient(&http.Client{Timeout: timeout(cfg)}),
		}
		if cfg.APIBase != "" {
			opts = append(opts, anthropicopt.WithBaseURL(cfg.APIBase))
		}
		cl := anthropic.NewClient(opts...)
		return &Anthropic{client: &cl, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
	})
}

// Anthropic talks to the Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func (a *Anthropic) Name() string  { return "anthropic" }
func (a *Anthropic) Model() string { return a.model }

func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(a.maxTokens),
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
