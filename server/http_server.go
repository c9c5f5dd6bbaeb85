package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"MemHarness/internal/embedding"
	"MemHarness/internal/logging"
	"MemHarness/internal/memory"
)

const (
	defaultLimit = 10
	maxBodyBytes = 8 << 20
)

var validUserID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Options configures an HTTPServer.
type Options struct {
	Address string
	Port    string
	// DataDir holds one engine root per user id.
	DataDir string
	// APIKey, when set, must match the X-API-Key header of every /api request.
	APIKey   string
	Index    string
	Embedder embedding.Provider
}

// HTTPServer exposes memory engines over a JSON REST API, one engine per user.
type HTTPServer struct {
	opts       Options
	httpServer *http.Server
	mu         sync.Mutex
	engines    map[string]*memory.Engine
	startTime  time.Time
}

// NewHTTPServer creates a new HTTP server instance.
func NewHTTPServer(opts Options) *HTTPServer {
	return &HTTPServer{
		opts:      opts,
		engines:   make(map[string]*memory.Engine),
		startTime: time.Now(),
	}
}

// Handler returns the routed handler. Tests mount it on httptest.Server.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/remember", s.handleRemember)
	api.HandleFunc("POST /api/batch_remember", s.handleBatchRemember)
	api.HandleFunc("POST /api/recall", s.handleRecall)
	api.HandleFunc("POST /api/recall/tags", s.handleRecallTags)
	api.HandleFunc("POST /api/recall/date", s.handleRecallDate)
	api.HandleFunc("GET /api/list/{user_id}", s.handleList)
	api.HandleFunc("GET /api/memory/{id}", s.handleGet)
	api.HandleFunc("DELETE /api/memory/{id}", s.handleDelete)
	api.HandleFunc("POST /api/forget/tags", s.handleForgetTags)
	api.HandleFunc("POST /api/forget/age", s.handleForgetAge)
	api.HandleFunc("POST /api/forget/importance", s.handleForgetImportance)
	api.HandleFunc("POST /api/forget/pattern", s.handleForgetPattern)
	api.HandleFunc("POST /api/forget/date", s.handleForgetDate)
	api.HandleFunc("POST /api/context_summary", s.handleContextSummary)
	api.HandleFunc("GET /api/users/{user_id}/stats", s.handleStats)
	api.HandleFunc("DELETE /api/users/{user_id}", s.handleDeleteUser)

	mux.Handle("/api/", s.requireAPIKey(api))
	return mux
}

// Start begins listening for HTTP requests in the background.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.opts.Address, s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.httpServer
	go func() {
		logging.Logger.Info("memory server starting", "addr", srv.Addr, "data_dir", s.opts.DataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Error("memory server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the listener and closes every engine.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	var firstErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
		logging.Logger.Info("memory server stopped", "addr", srv.Addr)
	}
	if err := s.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Close releases every open engine.
func (s *HTTPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for user, e := range s.engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close engine for %s: %w", user, err)
		}
		delete(s.engines, user)
	}
	return firstErr
}

func (s *HTTPServer) engine(userID string) (*memory.Engine, error) {
	if !validUserID.MatchString(userID) {
		return nil, fmt.Errorf("invalid user_id %q", userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[userID]; ok {
		return e, nil
	}
	e, err := memory.Open(memory.Options{
		Dir:      filepath.Join(s.opts.DataDir, userID),
		Index:    s.opts.Index,
		Embedder: s.opts.Embedder,
	})
	if err != nil {
		return nil, err
	}
	s.engines[userID] = e
	return e, nil
}

// dropUser closes the user's engine, if open, and removes its root.
func (s *HTTPServer) dropUser(userID string) error {
	if !validUserID.MatchString(userID) {
		return fmt.Errorf("invalid user_id %q", userID)
	}
	dir := filepath.Join(s.opts.DataDir, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	var closeErr error
	if e, ok := s.engines[userID]; ok {
		delete(s.engines, userID)
		if err := e.Close(); err != nil {
			closeErr = fmt.Errorf("close engine for %s: %w", userID, err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Join(closeErr, fmt.Errorf("remove %s: %w", dir, err))
	}
	logging.Logger.Debug("user dropped", "user_id", userID, "dir", dir)
	return closeErr
}

func (s *HTTPServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" && r.Header.Get(APIKeyHeader) != s.opts.APIKey {
			writeError(w, http.StatusUnauthorized, errors.New("invalid or missing API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := len(s.engines)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Index:  s.opts.Index,
		Users:  users,
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *HTTPServer) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req RememberRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	id, err := e.Remember(r.Context(), memory.NewMemory{
		Content:    req.Content,
		MemoryType: memory.MemoryType(req.MemoryType),
		Tags:       req.Tags,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RememberResponse{ID: id, Success: true})
}

func (s *HTTPServer) handleBatchRemember(w http.ResponseWriter, r *http.Request) {
	var req BatchRememberRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	ids, err := e.RememberBatch(r.Context(), req.Memories)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchRememberResponse{IDs: ids, Count: len(ids)})
}

func (s *HTTPServer) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req RecallRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	found, err := e.Recall(r.Context(), req.Query, limitOrDefault(req.Limit))
	writeMemories(w, found, err)
}

func (s *HTTPServer) handleRecallTags(w http.ResponseWriter, r *http.Request) {
	var req RecallTagsRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	found, err := e.RecallByTags(r.Context(), req.Tags, limitOrDefault(req.Limit))
	writeMemories(w, found, err)
}

func (s *HTTPServer) handleRecallDate(w http.ResponseWriter, r *http.Request) {
	var req DateRangeRequest
	if !decode(w, r, &req) {
		return
	}
	rng, err := req.ToRange()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	found, err := e.RecallByDate(r.Context(), rng, limitOrDefault(req.Limit))
	writeMemories(w, found, err)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrFail(w, r.PathValue("user_id"))
	if !ok {
		return
	}
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	found, err := e.List(r.Context(), limit)
	writeMemories(w, found, err)
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrFail(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	m, err := e.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrFail(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	if err := e.Forget(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ForgetResponse{Forgotten: 1})
}

func (s *HTTPServer) handleForgetTags(w http.ResponseWriter, r *http.Request) {
	var req ForgetTagsRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	n, err := e.ForgetByTags(r.Context(), req.Tags)
	writeForgotten(w, n, err)
}

func (s *HTTPServer) handleForgetAge(w http.ResponseWriter, r *http.Request) {
	var req ForgetAgeRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	n, err := e.ForgetByAge(r.Context(), req.DaysOld)
	writeForgotten(w, n, err)
}

func (s *HTTPServer) handleForgetImportance(w http.ResponseWriter, r *http.Request) {
	var req ForgetImportanceRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	n, err := e.ForgetByImportance(r.Context(), req.Threshold)
	writeForgotten(w, n, err)
}

func (s *HTTPServer) handleForgetPattern(w http.ResponseWriter, r *http.Request) {
	var req ForgetPatternRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	n, err := e.ForgetByPattern(r.Context(), req.Pattern)
	writeForgotten(w, n, err)
}

func (s *HTTPServer) handleForgetDate(w http.ResponseWriter, r *http.Request) {
	var req DateRangeRequest
	if !decode(w, r, &req) {
		return
	}
	rng, err := req.ToRange()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	n, err := e.ForgetByDate(r.Context(), rng)
	writeForgotten(w, n, err)
}

func (s *HTTPServer) handleContextSummary(w http.ResponseWriter, r *http.Request) {
	var req ContextSummaryRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.engineOrFail(w, req.UserID)
	if !ok {
		return
	}
	sum, err := e.ContextSummary(r.Context(), memory.SummaryOptions{
		MaxItems:         req.MaxItems,
		IncludeDecisions: req.IncludeDecisions,
		IncludeLearnings: req.IncludeLearnings,
		IncludeContext:   req.IncludeContext,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrFail(w, r.PathValue("user_id"))
	if !ok {
		return
	}
	st, err := e.Stats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := s.dropUser(userID); err != nil {
		status := http.StatusInternalServerError
		if !validUserID.MatchString(userID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteUserResponse{UserID: userID, Deleted: true})
}

func (s *HTTPServer) engineOrFail(w http.ResponseWriter, userID string) (*memory.Engine, bool) {
	e, err := s.engine(userID)
	if err != nil {
		status := http.StatusInternalServerError
		if !validUserID.MatchString(userID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return nil, false
	}
	return e, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	return true
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func writeMemories(w http.ResponseWriter, found []memory.Memory, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if found == nil {
		found = []memory.Memory{}
	}
	writeJSON(w, http.StatusOK, MemoriesResponse{Memories: found, Count: len(found)})
}

func writeForgotten(w http.ResponseWriter, n int, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ForgetResponse{Forgotten: n})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, memory.ErrEmptyContent), errors.Is(err, memory.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		logging.Logger.Error("memory operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
