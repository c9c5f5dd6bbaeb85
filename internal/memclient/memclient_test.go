package memclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MemHarness/internal/logging"
	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
	"MemHarness/server"
)

const testKey = "secret"

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := server.NewHTTPServer(server.Options{DataDir: t.TempDir(), APIKey: testKey})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func provisioners(t *testing.T) []Provisioner {
	ts := newTestServer(t)
	return []Provisioner{
		&EmbeddedProvisioner{BaseDir: t.TempDir()},
		&NetworkProvisioner{Options: NetworkOptions{BaseURL: ts.URL, APIKey: testKey}, Prefix: "test"},
	}
}

func TestPathsBehaveIdentically(t *testing.T) {
	ctx := context.Background()
	for _, p := range provisioners(t) {
		t.Run(string(p.Path()), func(t *testing.T) {
			h, err := p.Provision(ctx, "equivalence")
			require.NoError(t, err)
			defer h.Release()
			c := h.Client
			assert.Equal(t, p.Path(), c.Path())

			first, err := c.Remember(ctx, "We chose PostgreSQL for the orders service", memory.Decision, []string{"db", "batch-0"})
			require.NoError(t, err)
			_, err = c.Remember(ctx, "Caching with Redis cut latency in half", memory.Learning, []string{"cache"})
			require.NoError(t, err)
			_, err = c.Remember(ctx, "The team meets every Monday", memory.Context, nil)
			require.NoError(t, err)

			recalled, err := c.Recall(ctx, "which database for orders", 2)
			require.NoError(t, err)
			require.Len(t, recalled, 2)
			assert.Equal(t, first, recalled[0].ID)

			listed, err := c.List(ctx, 100)
			require.NoError(t, err)
			require.Len(t, listed, 3)
			assert.Equal(t, first, listed[0].ID)

			tagged, err := c.RecallByTags(ctx, []string{"cache"}, 10)
			require.NoError(t, err)
			require.Len(t, tagged, 1)
			assert.Equal(t, memory.Learning, tagged[0].MemoryType)

			window := memory.DateRange{Start: time.Now().Add(-time.Hour), End: time.Now().Add(time.Hour)}
			dated, err := c.RecallByDate(ctx, window, 10)
			require.NoError(t, err)
			assert.Len(t, dated, 3)

			sum, err := c.ContextSummary(ctx, 5)
			require.NoError(t, err)
			assert.Len(t, sum.Decisions, 1)
			assert.Len(t, sum.Learnings, 1)
			assert.Len(t, sum.Context, 1)
			assert.Equal(t, 3, sum.TotalMemories)

			st, err := c.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, st.TotalMemories)
			assert.Equal(t, 3, st.UniqueTags)

			got, err := c.Get(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, "We chose PostgreSQL for the orders service", got.Content)

			n, err := c.ForgetByTags(ctx, []string{"cache"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = c.ForgetByImportance(ctx, 0.0)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			n, err = c.ForgetByAge(ctx, 30)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			require.NoError(t, c.Forget(ctx, first))
			_, err = c.Get(ctx, first)
			assert.Error(t, err)

			n, err = c.ForgetByPattern(ctx, "Monday")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = c.ForgetByDate(ctx, window)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			empty, err := c.Recall(ctx, "anything", 10)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestProvisionIsolatesInstances(t *testing.T) {
	ctx := context.Background()
	for _, p := range provisioners(t) {
		t.Run(string(p.Path()), func(t *testing.T) {
			a, err := p.Provision(ctx, "point_50")
			require.NoError(t, err)
			b, err := p.Provision(ctx, "point_50")
			require.NoError(t, err)

			_, err = a.Client.Remember(ctx, "only in a", memory.Observation, nil)
			require.NoError(t, err)

			listed, err := b.Client.List(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, listed)

			require.NoError(t, a.Release())
			require.NoError(t, a.Release(), "second release is a no-op")
			require.NoError(t, b.Release())
		})
	}
}

func TestEmbeddedReleaseRemovesRoot(t *testing.T) {
	base := t.TempDir()
	p := &EmbeddedProvisioner{BaseDir: base}
	h, err := p.Provision(context.Background(), "cleanup")
	require.NoError(t, err)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, h.Release())
	entries, err = os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNetworkReleaseRemovesServerRoot(t *testing.T) {
	dataDir := t.TempDir()
	srv := server.NewHTTPServer(server.Options{DataDir: dataDir, APIKey: testKey})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	ctx := context.Background()
	p := &NetworkProvisioner{Options: NetworkOptions{BaseURL: ts.URL, APIKey: testKey}, Prefix: "test"}
	h, err := p.Provision(ctx, "cleanup")
	require.NoError(t, err)
	client := h.Client.(*Network)
	_, err = client.Remember(ctx, "short lived", memory.Context, nil)
	require.NoError(t, err)

	root := filepath.Join(dataDir, client.UserID())
	require.DirExists(t, root)

	require.NoError(t, h.Release())
	assert.NoDirExists(t, root)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Zero(t, health.Users)
}

func TestNetworkErrors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	c, err := NewNetwork(NetworkOptions{BaseURL: ts.URL, APIKey: "wrong", UserID: "u1"})
	require.NoError(t, err)
	_, err = c.Remember(ctx, "x", memory.Observation, nil)
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)
	assert.Equal(t, "remember", te.Op)

	c, err = NewNetwork(NetworkOptions{BaseURL: ts.URL, APIKey: testKey, UserID: "u1"})
	require.NoError(t, err)
	_, err = c.Remember(ctx, "  ", memory.Observation, nil)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.Status)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	down, err := NewNetwork(NetworkOptions{BaseURL: "http://127.0.0.1:1", UserID: "u1", Timeout: time.Second})
	require.NoError(t, err)
	_, err = down.Stats(ctx)
	assert.True(t, IsTransport(err))

	_, err = NewNetwork(NetworkOptions{UserID: "u1"})
	assert.Error(t, err)
	_, err = NewNetwork(NetworkOptions{BaseURL: ts.URL})
	assert.Error(t, err)
}

func TestNetworkBatchRemember(t *testing.T) {
	ts := newTestServer(t)
	c, err := NewNetwork(NetworkOptions{BaseURL: ts.URL, APIKey: testKey, UserID: "batch"})
	require.NoError(t, err)

	ids, err := c.RememberBatch(context.Background(), []memory.NewMemory{
		{Content: "one"}, {Content: "two", MemoryType: memory.Task},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "point_50", sanitize("point-50"))
	assert.Equal(t, "x", sanitize(""))
	assert.Equal(t, timing.Network, (&NetworkProvisioner{}).Path())
}
