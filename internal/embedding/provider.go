package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"MemHarness/internal/config"
)

// Provider exposes semantic embedding capabilities.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// BatchProvider embeds many texts in one call.
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedBatch embeds texts in order, in one call when p supports batching.
func EmbedBatch(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	if bp, ok := p.(BatchProvider); ok {
		return bp.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// ProviderFactory constructs a Provider from the embedding configuration.
type ProviderFactory func(config.EmbeddingConfig) (Provider, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]ProviderFactory{}
)

// RegisterProvider registers an embedding provider factory under the given
// backend name. Typically called from an init() function.
func RegisterProvider(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// New constructs an embedding provider based on configuration. The result is
// wrapped in a CachedProvider when cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "hash"
	}

	var (
		p   Provider
		err error
	)
	switch backend {
	case "hash":
		p = NewHashProvider(cfg.Dim)
	case "llamacpp":
		p, err = newLlamaCppProvider(cfg)
	case "ollama":
		p, err = newOllamaProvider(cfg.Ollama)
	default:
		providersMu.RLock()
		factory, ok := providers[backend]
		providersMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("embedding: unsupported backend %q", backend)
		}
		p, err = factory(cfg)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedProvider(p, cfg.CacheSize)
	}
	return p, nil
}
