package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures memory, network, judge, benchmark and output settings for MemHarness.
type Config struct {
	Memory    MemoryConfig    `yaml:"memory"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Network   NetworkConfig   `yaml:"network"`
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Scale     ScaleConfig     `yaml:"scale"`
	Eval      EvalConfig      `yaml:"eval"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MemoryConfig configures the embedded memory engine.
type MemoryConfig struct {
	// Index selects the vector index: "sqlite" or "chromem".
	Index string `yaml:"index"`
	// TempDir is the parent for disposable storage roots. Empty means os.TempDir().
	TempDir string `yaml:"temp_dir"`
}

// EmbeddingConfig captures settings for semantic embedding providers.
type EmbeddingConfig struct {
	Backend   string                  `yaml:"backend"`
	Dim       int                     `yaml:"dim"`
	CacheSize int                     `yaml:"cache_size"`
	LlamaCpp  LlamaCppEmbeddingConfig `yaml:"llamacpp"`
	Ollama    OllamaEmbeddingConfig   `yaml:"ollama"`
}

// LlamaCppEmbeddingConfig configures llama.cpp embedding server usage.
type LlamaCppEmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// OllamaEmbeddingConfig configures the Ollama embedding endpoint.
type OllamaEmbeddingConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// NetworkConfig describes how the network client reaches the memory REST API.
type NetworkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Timeout    string `yaml:"timeout"`
	UserPrefix string `yaml:"user_prefix"`
}

// ServerConfig defines the REST memory server settings.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	APIKey  string `yaml:"api_key"`
}

// LLMConfig selects the judge provider. Judges always decode at
// temperature 0, so there is no setting for it.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIBase   string `yaml:"api_base"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

// ScaleConfig governs the scale sweep.
type ScaleConfig struct {
	Points          []int `yaml:"points"`
	QueryIterations int   `yaml:"query_iterations"`
	AuxIterations   int   `yaml:"aux_iterations"`
	RecallLimit     int   `yaml:"recall_limit"`
	ListLimit       int   `yaml:"list_limit"`
	SummaryMaxItems int   `yaml:"summary_max_items"`
	Seed            int64 `yaml:"seed"`
	ProgressEvery   int   `yaml:"progress_every"`
}

// EvalConfig governs the retrieval-QA evaluation.
type EvalConfig struct {
	Dataset         string `yaml:"dataset"`
	Limit           int    `yaml:"limit"`
	Full            bool   `yaml:"full"`
	Path            string `yaml:"path"`
	RecallLimit     int    `yaml:"recall_limit"`
	ChunkSize       int    `yaml:"chunk_size"`
	MaxChunks       int    `yaml:"max_chunks"`
	SummaryMaxChars int    `yaml:"summary_max_chars"`
}

// OutputConfig controls where reports go.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	EvalFile   string `yaml:"eval_file"`
	ScaleFile  string `yaml:"scale_file"`
	DuckDBPath string `yaml:"duckdb_path"`
	Markdown   bool   `yaml:"markdown"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	ToFile bool   `yaml:"to_file"`
}

const defaultConfigFile = "memharness.yaml"

// Default returns a Config matching the reference harness behaviour.
func Default() Config {
	return Config{
		Memory: MemoryConfig{
			Index: "sqlite",
		},
		Embedding: EmbeddingConfig{
			Backend:   "hash",
			Dim:       384,
			CacheSize: 10000,
			LlamaCpp: LlamaCppEmbeddingConfig{
				BaseURL: "http://127.0.0.1:8080",
				Timeout: "30s",
			},
			Ollama: OllamaEmbeddingConfig{
				Host:  "http://localhost:11434",
				Model: "nomic-embed-text",
			},
		},
		Network: NetworkConfig{
			Enabled:    true,
			BaseURL:    "http://127.0.0.1:3030",
			Timeout:    "30s",
			UserPrefix: "memharness",
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    3030,
			DataDir: "memharness_data",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 10,
			Timeout:   "60s",
		},
		Scale: ScaleConfig{
			Points:          []int{50, 100, 1000},
			QueryIterations: 10,
			AuxIterations:   10,
			RecallLimit:     10,
			ListLimit:       100,
			SummaryMaxItems: 5,
			Seed:            42,
			ProgressEvery:   100,
		},
		Eval: EvalConfig{
			Dataset:         "locomo_mc10.json",
			Limit:           50,
			Path:            "embedded",
			RecallLimit:     5,
			ChunkSize:       500,
			MaxChunks:       10,
			SummaryMaxChars: 2000,
		},
		Output: OutputConfig{
			Dir:       ".",
			ScaleFile: "scale_results.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Resolve loads configuration from file and environment variables. An
// explicit path wins over MEMHARNESS_CONFIG, which wins over memharness.yaml
// in the working directory.
func Resolve(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("MEMHARNESS_CONFIG"))
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config file %q not found", path)
	}

	if path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = merge(cfg, loaded)
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return cfg, nil
}

func merge(base, override Config) Config {
	result := base

	if override.Memory.Index != "" {
		result.Memory.Index = override.Memory.Index
	}
	if override.Memory.TempDir != "" {
		result.Memory.TempDir = override.Memory.TempDir
	}

	e := override.Embedding
	if e.Backend != "" {
		result.Embedding.Backend = e.Backend
	}
	if e.Dim != 0 {
		result.Embedding.Dim = e.Dim
	}
	if e.CacheSize != 0 {
		result.Embedding.CacheSize = e.CacheSize
	}
	if e.LlamaCpp.BaseURL != "" {
		result.Embedding.LlamaCpp.BaseURL = e.LlamaCpp.BaseURL
	}
	if e.LlamaCpp.Model != "" {
		result.Embedding.LlamaCpp.Model = e.LlamaCpp.Model
	}
	if e.LlamaCpp.Timeout != "" {
		result.Embedding.LlamaCpp.Timeout = e.LlamaCpp.Timeout
	}
	if e.Ollama.Host != "" {
		result.Embedding.Ollama.Host = e.Ollama.Host
	}
	if e.Ollama.Model != "" {
		result.Embedding.Ollama.Model = e.Ollama.Model
	}

	// network.enabled defaults to true; a file can only switch it off via
	// MEMHARNESS_NETWORK_ENABLED or the --no-network flag.
	if override.Network.BaseURL != "" {
		result.Network.BaseURL = override.Network.BaseURL
	}
	if override.Network.APIKey != "" {
		result.Network.APIKey = override.Network.APIKey
	}
	if override.Network.Timeout != "" {
		result.Network.Timeout = override.Network.Timeout
	}
	if override.Network.UserPrefix != "" {
		result.Network.UserPrefix = override.Network.UserPrefix
	}

	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.DataDir != "" {
		result.Server.DataDir = override.Server.DataDir
	}
	if override.Server.APIKey != "" {
		result.Server.APIKey = override.Server.APIKey
	}

	l := override.LLM
	if l.Provider != "" {
		result.LLM.Provider = l.Provider
	}
	if l.Model != "" {
		result.LLM.Model = l.Model
	}
	if l.APIBase != "" {
		result.LLM.APIBase = l.APIBase
	}
	if l.APIKey != "" {
		result.LLM.APIKey = l.APIKey
	}
	if l.MaxTokens != 0 {
		result.LLM.MaxTokens = l.MaxTokens
	}
	if l.Timeout != "" {
		result.LLM.Timeout = l.Timeout
	}

	s := override.Scale
	if len(s.Points) != 0 {
		result.Scale.Points = append([]int(nil), s.Points...)
	}
	if s.QueryIterations != 0 {
		result.Scale.QueryIterations = s.QueryIterations
	}
	if s.AuxIterations != 0 {
		result.Scale.AuxIterations = s.AuxIterations
	}
	if s.RecallLimit != 0 {
		result.Scale.RecallLimit = s.RecallLimit
	}
	if s.ListLimit != 0 {
		result.Scale.ListLimit = s.ListLimit
	}
	if s.SummaryMaxItems != 0 {
		result.Scale.SummaryMaxItems = s.SummaryMaxItems
	}
	if s.Seed != 0 {
		result.Scale.Seed = s.Seed
	}
	if s.ProgressEvery != 0 {
		result.Scale.ProgressEvery = s.ProgressEvery
	}

	v := override.Eval
	if v.Dataset != "" {
		result.Eval.Dataset = v.Dataset
	}
	if v.Limit != 0 {
		result.Eval.Limit = v.Limit
	}
	if v.Full {
		result.Eval.Full = true
	}
	if v.Path != "" {
		result.Eval.Path = v.Path
	}
	if v.RecallLimit != 0 {
		result.Eval.RecallLimit = v.RecallLimit
	}
	if v.ChunkSize != 0 {
		result.Eval.ChunkSize = v.ChunkSize
	}
	if v.MaxChunks != 0 {
		result.Eval.MaxChunks = v.MaxChunks
	}
	if v.SummaryMaxChars != 0 {
		result.Eval.SummaryMaxChars = v.SummaryMaxChars
	}

	if override.Output.Dir != "" {
		result.Output.Dir = override.Output.Dir
	}
	if override.Output.EvalFile != "" {
		result.Output.EvalFile = override.Output.EvalFile
	}
	if override.Output.ScaleFile != "" {
		result.Output.ScaleFile = override.Output.ScaleFile
	}
	if override.Output.DuckDBPath != "" {
		result.Output.DuckDBPath = override.Output.DuckDBPath
	}
	if override.Output.Markdown {
		result.Output.Markdown = true
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.ToFile {
		result.Logging.ToFile = true
	}

	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_REST_URL")); v != "" {
		cfg.Network.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_API_KEY")); v != "" {
		cfg.Network.APIKey = v
		if cfg.Server.APIKey == "" {
			cfg.Server.APIKey = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_NETWORK_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Network.Enabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_NETWORK_TIMEOUT")); v != "" {
		cfg.Network.Timeout = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_SERVER_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_DATA_DIR")); v != "" {
		cfg.Server.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_TEMP_DIR")); v != "" {
		cfg.Memory.TempDir = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_INDEX")); v != "" {
		cfg.Memory.Index = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_EMBEDDING_BACKEND")); v != "" {
		cfg.Embedding.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_EMBEDDING_BASEURL")); v != "" {
		cfg.Embedding.LlamaCpp.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); v != "" {
		cfg.Embedding.Ollama.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_LLM_API_BASE")); v != "" {
		cfg.LLM.APIBase = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_DATASET")); v != "" {
		cfg.Eval.Dataset = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_DUCKDB")); v != "" {
		cfg.Output.DuckDBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMHARNESS_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// NetworkTimeout parses the network timeout, falling back to 30s.
func (c Config) NetworkTimeout() time.Duration {
	return parseDuration(c.Network.Timeout, 30*time.Second)
}

// ServerAddr returns host:port for the REST server.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ParseDuration parses s, returning fallback when s is empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	return parseDuration(s, fallback)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
