package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"MemHarness/internal/config"
)

func init() {
	Register("ollama", func(cfg config.LLMConfig) (Provider, error) {
		if err := requireModel("ollama", cfg); err != nil {
			return nil, err
		}
		host := strings.TrimSpace(cfg.APIBase)
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		u, err := url.Parse(host)
		if err != nil {
			return nil, &ConfigError{Provider: "ollama", Msg: fmt.Sprintf("invalid host %q: %v", host, err)}
		}
		client := ollama.NewClient(u, &http.Client{Timeout: timeout(cfg)})
		return &Ollama{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
	})
}

// Ollama talks to a local Ollama daemon.
type Ollama struct {
	client    *ollama.Client
	model     string
	maxTokens int
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &ollama.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": 0,
			"num_predict": o.maxTokens,
		},
	}

	var text strings.Builder
	if err := o.client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(text.String()), nil
}
