package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"MemHarness/internal/config"
)

func init() {
	Register("gemini", func(cfg config.LLMConfig) (Provider, error) {
		key := apiKey(cfg, "GOOGLE_API_KEY", "GEMINI_API_KEY")
		if key == "" {
			return nil, &ConfigError{Provider: "gemini", Msg: "GOOGLE_API_KEY or GEMINI_API_KEY is not set"}
		}
		if cfg.Model == "" {
			cfg.Model = "gemini-1.5-flash"
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
		if err != nil {
			return nil, &ConfigError{Provider: "gemini", Msg: err.Error()}
		}
		return &Gemini{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
	})
}

// Gemini talks to the Generative Language API.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(int32(g.maxTokens))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}
