package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MemHarness/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func newTestHandler(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	srv := NewHTTPServer(Options{DataDir: t.TempDir(), APIKey: apiKey})
	t.Cleanup(func() { srv.Close() })
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoKey(t *testing.T) {
	h := newTestHandler(t, "k")
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
}

func TestAPIKeyRequired(t *testing.T) {
	h := newTestHandler(t, "k")
	rec := doJSON(t, h, http.MethodPost, "/api/remember", "", RememberRequest{UserID: "u", Content: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/remember", "k", RememberRequest{UserID: "u", Content: "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRememberListAndGet(t *testing.T) {
	h := newTestHandler(t, "")

	var ids []string
	for _, c := range []string{"first", "second"} {
		rec := doJSON(t, h, http.MethodPost, "/api/remember", "", RememberRequest{UserID: "alice", Content: c, MemoryType: "decision"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out RememberResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.True(t, out.Success)
		ids = append(ids, out.ID)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/list/alice?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list MemoriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, ids[0], list.Memories[0].ID)

	rec = doJSON(t, h, http.MethodGet, "/api/memory/"+ids[1]+"?user_id=alice", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/memory/"+ids[1]+"?user_id=bob", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "users are isolated")

	rec = doJSON(t, h, http.MethodDelete, "/api/memory/"+ids[1]+"?user_id=alice", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t, "")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"empty content", http.MethodPost, "/api/remember", RememberRequest{UserID: "u", Content: " "}},
		{"unknown type", http.MethodPost, "/api/remember", RememberRequest{UserID: "u", Content: "x", MemoryType: "bogus"}},
		{"bad user", http.MethodPost, "/api/recall", RecallRequest{UserID: "../etc", Query: "x"}},
		{"bad pattern", http.MethodPost, "/api/forget/pattern", ForgetPatternRequest{UserID: "u", Pattern: "("}},
		{"bad date", http.MethodPost, "/api/recall/date", DateRangeRequest{UserID: "u", Start: "yesterday", End: "today"}},
		{"bad limit", http.MethodGet, "/api/list/u?limit=-3", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, tc.method, tc.path, "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestDeleteUserDropsEngineAndRoot(t *testing.T) {
	dataDir := t.TempDir()
	srv := NewHTTPServer(Options{DataDir: dataDir})
	t.Cleanup(func() { srv.Close() })
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/remember", "", RememberRequest{UserID: "carol", Content: "kept briefly"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.DirExists(t, filepath.Join(dataDir, "carol"))

	rec = doJSON(t, h, http.MethodDelete, "/api/users/carol", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out DeleteUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Deleted)
	assert.NoDirExists(t, filepath.Join(dataDir, "carol"))

	rec = doJSON(t, h, http.MethodGet, "/health", "", nil)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Zero(t, health.Users, "engine is closed and forgotten")

	// Unknown users delete cleanly.
	rec = doJSON(t, h, http.MethodDelete, "/api/users/nobody", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/users/bad!user", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDateRangeRequest(t *testing.T) {
	r, err := DateRangeRequest{Start: "2025-01-01T00:00:00Z", End: "2025-01-02T00:00:00.5Z"}.ToRange()
	require.NoError(t, err)
	assert.True(t, r.End.After(r.Start))

	_, err = DateRangeRequest{Start: "2025-01-02T00:00:00Z", End: "2025-01-01T00:00:00Z"}.ToRange()
	assert.Error(t, err)
}
