// Package llm wraps the hosted and self-hosted language models used as
// multiple-choice judges behind one Provider contract.
package llm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"MemHarness/internal/config"
)

const (
	defaultMaxTokens = 10
	defaultTimeout   = 60 * time.Second
)

// Provider is a text-in, text-out language model.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Factory constructs a Provider. It returns a *ConfigError when a required
// credential or endpoint is missing.
type Factory func(cfg config.LLMConfig) (Provider, error)

// ConfigError reports a provider that cannot be constructed from its
// configuration. It is raised before any evaluation starts.
type ConfigError struct {
	Provider string
	Msg      string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("llm: %s: %s", e.Provider, e.Msg)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a provider factory under tag. Built-in providers register
// themselves from init functions.
func Register(tag string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(tag)] = factory
}

// Providers lists the registered tags in alphabetical order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// New builds the provider selected by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	tag := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if tag == "" {
		return nil, &ConfigError{Provider: "(none)", Msg: "no provider configured"}
	}
	registryMu.RLock()
	factory, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, &ConfigError{
			Provider: tag,
			Msg:      fmt.Sprintf("unknown provider (available: %s)", strings.Join(Providers(), ", ")),
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return factory(cfg)
}

// apiKey returns the configured key, falling back to the first non-empty
// environment variable in envs.
func apiKey(cfg config.LLMConfig, envs ...string) string {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k
	}
	for _, env := range envs {
		if k := strings.TrimSpace(os.Getenv(env)); k != "" {
			return k
		}
	}
	return ""
}

func requireModel(tag string, cfg config.LLMConfig) error {
	if strings.TrimSpace(cfg.Model) == "" {
		return &ConfigError{Provider: tag, Msg: "model is required"}
	}
	return nil
}

func timeout(cfg config.LLMConfig) time.Duration {
	return config.ParseDuration(cfg.Timeout, defaultTimeout)
}

// Close releases provider resources when the provider holds any.
func Close(p Provider) error {
	if c, ok := p.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
