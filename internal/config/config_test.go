package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesReferenceHarness(t *testing.T) {
	cfg := Default()

	if got := cfg.Scale.Points; len(got) != 3 || got[0] != 50 || got[1] != 100 || got[2] != 1000 {
		t.Errorf("Scale.Points = %v, want [50 100 1000]", got)
	}
	if cfg.Eval.RecallLimit != 5 {
		t.Errorf("Eval.RecallLimit = %d, want 5", cfg.Eval.RecallLimit)
	}
	if cfg.Eval.ChunkSize != 500 || cfg.Eval.MaxChunks != 10 || cfg.Eval.SummaryMaxChars != 2000 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Eval)
	}
	if cfg.LLM.MaxTokens != 10 {
		t.Errorf("LLM.MaxTokens = %d, want 10", cfg.LLM.MaxTokens)
	}
	if cfg.NetworkTimeout() != 30*time.Second {
		t.Errorf("NetworkTimeout = %v, want 30s", cfg.NetworkTimeout())
	}
}

func TestMerge(t *testing.T) {
	base := Default()

	t.Run("scale points override", func(t *testing.T) {
		override := Config{}
		override.Scale.Points = []int{10, 20}
		result := merge(base, override)
		if len(result.Scale.Points) != 2 || result.Scale.Points[1] != 20 {
			t.Errorf("Scale.Points = %v, want [10 20]", result.Scale.Points)
		}
		// Unrelated fields preserved.
		if result.Scale.QueryIterations != 10 {
			t.Errorf("QueryIterations lost: got %d", result.Scale.QueryIterations)
		}
	})

	t.Run("empty override keeps base", func(t *testing.T) {
		result := merge(base, Config{})
		if result.LLM.Provider != "openai" {
			t.Errorf("Provider = %q, want openai", result.LLM.Provider)
		}
		if result.Embedding.Backend != "hash" {
			t.Errorf("Embedding.Backend = %q, want hash", result.Embedding.Backend)
		}
	})

	t.Run("override does not alias base slice", func(t *testing.T) {
		override := Config{}
		override.Scale.Points = []int{1}
		result := merge(base, override)
		override.Scale.Points[0] = 99
		if result.Scale.Points[0] != 1 {
			t.Errorf("merged slice aliases override: %v", result.Scale.Points)
		}
	})

	t.Run("llm fields", func(t *testing.T) {
		override := Config{}
		override.LLM.Provider = "openai-compatible"
		override.LLM.APIBase = "http://localhost:8000/v1"
		result := merge(base, override)
		if result.LLM.Provider != "openai-compatible" || result.LLM.APIBase != "http://localhost:8000/v1" {
			t.Errorf("LLM = %+v", result.LLM)
		}
		if result.LLM.Model != "gpt-4o-mini" {
			t.Errorf("Model lost: %q", result.LLM.Model)
		}
	})
}

func TestResolveReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memharness.yaml")
	content := []byte("scale:\n  points: [5, 15]\nllm:\n  provider: anthropic\n  model: claude-3-5-haiku-latest\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MEMHARNESS_REST_URL", "http://10.0.0.1:9999")
	t.Setenv("MEMHARNESS_API_KEY", "secret")
	t.Setenv("MEMHARNESS_NETWORK_ENABLED", "false")

	cfg, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(cfg.Scale.Points) != 2 || cfg.Scale.Points[0] != 5 {
		t.Errorf("Scale.Points = %v", cfg.Scale.Points)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Network.BaseURL != "http://10.0.0.1:9999" {
		t.Errorf("BaseURL = %q", cfg.Network.BaseURL)
	}
	if cfg.Network.APIKey != "secret" || cfg.Server.APIKey != "secret" {
		t.Errorf("api keys = %q / %q", cfg.Network.APIKey, cfg.Server.APIKey)
	}
	if cfg.Network.Enabled {
		t.Error("network should be disabled by env override")
	}
}

func TestResolveMissingFile(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"2s", 2 * time.Second},
		{"garbage", 5 * time.Second},
		{"-1s", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in, 5*time.Second); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
