package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MemHarness/internal/config"
)

// llamaCppProvider calls the /embedding endpoint of a llama.cpp server
// started with --embedding. One request carries a whole batch.
type llamaCppProvider struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

func newLlamaCppProvider(cfg config.EmbeddingConfig) (Provider, error) {
	base := strings.TrimSpace(cfg.LlamaCpp.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("embedding: llamacpp base_url is required")
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("embedding: invalid llamacpp base_url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("embedding: invalid llamacpp base_url %q: want http(s)://host[:port]", base)
	}

	return &llamaCppProvider{
		endpoint: u.JoinPath("embedding").String(),
		model:    strings.TrimSpace(cfg.LlamaCpp.Model),
		dim:      cfg.Dim,
		client:   &http.Client{Timeout: config.ParseDuration(cfg.LlamaCpp.Timeout, 30*time.Second)},
	}, nil
}

func (p *llamaCppProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one normalized vector per text, in input order.
func (p *llamaCppProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := llamaCppEmbeddingRequest{Model: p.model}
	if len(texts) == 1 {
		req.Content = texts[0]
	} else {
		req.Content = texts
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	vectors, err := decodeLlamaCppEmbeddings(raw)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding: server returned %d vectors for %d inputs", len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding: empty vector returned for input %d", i)
		}
		if p.dim > 0 && len(v) != p.dim {
			return nil, fmt.Errorf("embedding: server returned %d dimensions, embedding.dim is %d", len(v), p.dim)
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		out[i] = Normalize(vec)
	}
	return out, nil
}

func (p *llamaCppProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type llamaCppEmbeddingRequest struct {
	// Content is a string for one input and a list for a batch.
	Content any    `json:"content"`
	Model   string `json:"model,omitempty"`
}

// llamaCppEmbeddingEntry is one element of the list form. Newer servers
// nest the pooled vector one level deeper.
type llamaCppEmbeddingEntry struct {
	Index     int             `json:"index"`
	Embedding json.RawMessage `json:"embedding"`
}

// decodeLlamaCppEmbeddings accepts the three shapes llama.cpp servers have
// answered with: {"embedding": [...]}, {"data": [{"embedding": [...]}]} and
// [{"index": 0, "embedding": [[...]]}].
func decodeLlamaCppEmbeddings(raw []byte) ([][]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("embedding: empty response body")
	}

	var entries []llamaCppEmbeddingEntry
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("embedding: decode response: %w", err)
		}
	} else {
		var obj struct {
			Embedding json.RawMessage          `json:"embedding"`
			Data      []llamaCppEmbeddingEntry `json:"data"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("embedding: decode response: %w", err)
		}
		switch {
		case len(obj.Embedding) > 0:
			entries = []llamaCppEmbeddingEntry{{Embedding: obj.Embedding}}
		default:
			entries = obj.Data
			for i := range entries {
				entries[i].Index = i
			}
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("embedding: empty vector returned")
	}

	out := make([][]float64, len(entries))
	for i, e := range entries {
		if e.Index < 0 || e.Index >= len(entries) || out[e.Index] != nil {
			return nil, fmt.Errorf("embedding: bad vector index %d", e.Index)
		}
		vec, err := flattenEmbedding(e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("embedding: decode vector %d: %w", i, err)
		}
		if vec == nil {
			vec = []float64{}
		}
		out[e.Index] = vec
	}
	return out, nil
}

func flattenEmbedding(raw json.RawMessage) ([]float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}
	if len(nested) == 0 {
		return nil, nil
	}
	return nested[0], nil
}
