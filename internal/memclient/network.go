package memclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
	"MemHarness/server"
)

// DefaultTimeout bounds every network-path request.
const DefaultTimeout = 30 * time.Second

// NetworkOptions configures a Network client.
type NetworkOptions struct {
	BaseURL string
	APIKey  string
	// UserID scopes every request to one memory instance on the server.
	UserID  string
	Timeout time.Duration
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Network drives a memory instance through the REST API.
type Network struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
}

// NewNetwork returns a client bound to opts.UserID.
func NewNetwork(opts NetworkOptions) (*Network, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("memclient: network base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("memclient: invalid base URL %q: %w", base, err)
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, fmt.Errorf("memclient: user id is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Network{baseURL: base, apiKey: opts.APIKey, userID: opts.UserID, httpClient: hc}, nil
}

func (c *Network) Path() timing.Path { return timing.Network }

// UserID returns the server-side user the client is bound to.
func (c *Network) UserID() string { return c.userID }

// Health calls GET /health.
func (c *Network) Health(ctx context.Context) (server.HealthResponse, error) {
	var out server.HealthResponse
	err := c.do(ctx, "health", http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Network) Remember(ctx context.Context, content string, memoryType memory.MemoryType, tags []string) (string, error) {
	var out server.RememberResponse
	err := c.do(ctx, "remember", http.MethodPost, "/api/remember", server.RememberRequest{
		UserID:     c.userID,
		Content:    content,
		MemoryType: string(memoryType),
		Tags:       tags,
	}, &out)
	return out.ID, err
}

// RememberBatch stores several memories in one request.
func (c *Network) RememberBatch(ctx context.Context, in []memory.NewMemory) ([]string, error) {
	var out server.BatchRememberResponse
	err := c.do(ctx, "batch_remember", http.MethodPost, "/api/batch_remember", server.BatchRememberRequest{
		UserID:   c.userID,
		Memories: in,
	}, &out)
	return out.IDs, err
}

func (c *Network) Recall(ctx context.Context, query string, limit int) ([]memory.Memory, error) {
	return c.memories(ctx, "recall", http.MethodPost, "/api/recall", server.RecallRequest{
		UserID: c.userID, Query: query, Limit: limit,
	})
}

func (c *Network) RecallByTags(ctx context.Context, tags []string, limit int) ([]memory.Memory, error) {
	return c.memories(ctx, "recall_tags", http.MethodPost, "/api/recall/tags", server.RecallTagsRequest{
		UserID: c.userID, Tags: tags, Limit: limit,
	})
}

func (c *Network) RecallByDate(ctx context.Context, r memory.DateRange, limit int) ([]memory.Memory, error) {
	return c.memories(ctx, "recall_date", http.MethodPost, "/api/recall/date", c.dateRange(r, limit))
}

func (c *Network) List(ctx context.Context, limit int) ([]memory.Memory, error) {
	path := "/api/list/" + url.PathEscape(c.userID) + "?limit=" + strconv.Itoa(limit)
	return c.memories(ctx, "list", http.MethodGet, path, nil)
}

func (c *Network) Get(ctx context.Context, id string) (memory.Memory, error) {
	var out memory.Memory
	err := c.do(ctx, "get", http.MethodGet, c.memoryPath(id), nil, &out)
	return out, err
}

func (c *Network) Forget(ctx context.Context, id string) error {
	return c.do(ctx, "forget", http.MethodDelete, c.memoryPath(id), nil, nil)
}

func (c *Network) ForgetByTags(ctx context.Context, tags []string) (int, error) {
	return c.forget(ctx, "forget_tags", "/api/forget/tags", server.ForgetTagsRequest{UserID: c.userID, Tags: tags})
}

func (c *Network) ForgetByAge(ctx context.Context, days int) (int, error) {
	return c.forget(ctx, "forget_age", "/api/forget/age", server.ForgetAgeRequest{UserID: c.userID, DaysOld: days})
}

func (c *Network) ForgetByImportance(ctx context.Context, threshold float64) (int, error) {
	return c.forget(ctx, "forget_importance", "/api/forget/importance",
		server.ForgetImportanceRequest{UserID: c.userID, Threshold: threshold})
}

func (c *Network) ForgetByPattern(ctx context.Context, pattern string) (int, error) {
	return c.forget(ctx, "forget_pattern", "/api/forget/pattern",
		server.ForgetPatternRequest{UserID: c.userID, Pattern: pattern})
}

func (c *Network) ForgetByDate(ctx context.Context, r memory.DateRange) (int, error) {
	return c.forget(ctx, "forget_date", "/api/forget/date", c.dateRange(r, 0))
}

func (c *Network) ContextSummary(ctx context.Context, maxItems int) (memory.ContextSummary, error) {
	var out memory.ContextSummary
	err := c.do(ctx, "context_summary", http.MethodPost, "/api/context_summary", server.ContextSummaryRequest{
		UserID:           c.userID,
		MaxItems:         maxItems,
		IncludeDecisions: true,
		IncludeLearnings: true,
		IncludeContext:   true,
	}, &out)
	return out, err
}

func (c *Network) Stats(ctx context.Context) (memory.Stats, error) {
	var out memory.Stats
	err := c.do(ctx, "stats", http.MethodGet, "/api/users/"+url.PathEscape(c.userID)+"/stats", nil, &out)
	return out, err
}

// DeleteUser asks the server to close this user's engine and remove its
// storage. The client is unusable for memory operations afterwards.
func (c *Network) DeleteUser(ctx context.Context) error {
	return c.do(ctx, "delete_user", http.MethodDelete, "/api/users/"+url.PathEscape(c.userID), nil, nil)
}

func (c *Network) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Network) memoryPath(id string) string {
	return "/api/memory/" + url.PathEscape(id) + "?user_id=" + url.QueryEscape(c.userID)
}

func (c *Network) dateRange(r memory.DateRange, limit int) server.DateRangeRequest {
	return server.DateRangeRequest{
		UserID: c.userID,
		Start:  server.FormatTime(r.Start),
		End:    server.FormatTime(r.End),
		Limit:  limit,
	}
}

func (c *Network) memories(ctx context.Context, op, method, path string, body any) ([]memory.Memory, error) {
	var out server.MemoriesResponse
	if err := c.do(ctx, op, method, path, body, &out); err != nil {
		return nil, err
	}
	if out.Memories == nil {
		return []memory.Memory{}, nil
	}
	return out.Memories, nil
}

func (c *Network) forget(ctx context.Context, op, path string, body any) (int, error) {
	var out server.ForgetResponse
	err := c.do(ctx, op, http.MethodPost, path, body, &out)
	return out.Forgotten, err
}

// do sends one request. Any failure, including a non-2xx status, is returned
// as a *TransportError.
func (c *Network) do(ctx context.Context, op, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(server.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		var e server.ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &TransportError{Op: op, Status: resp.StatusCode, Body: msg}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
