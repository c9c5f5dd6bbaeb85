package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"MemHarness/internal/config"
)

type ollamaProvider struct {
	client *ollama.Client
	model  string
}

func newOllamaProvider(cfg config.OllamaEmbeddingConfig) (Provider, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("embedding: invalid ollama host %q: %w", host, err)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embedding: ollama model is required")
	}

	return &ollamaProvider{
		client: ollama.NewClient(u, &http.Client{Timeout: 60 * time.Second}),
		model:  cfg.Model,
	}, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &ollama.EmbedRequest{
		Model: p.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding: empty vector returned")
	}
	return Normalize(resp.Embeddings[0]), nil
}

func (p *ollamaProvider) Close() error {
	return nil
}
