package bench

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
	"MemHarness/server"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func quickOptions(points ...int) Options {
	return Options{
		Points:          points,
		QueryIterations: 2,
		AuxIterations:   2,
		Seed:            42,
	}
}

func networkProvisioner(t *testing.T) memclient.Provisioner {
	t.Helper()
	srv := server.NewHTTPServer(server.Options{DataDir: t.TempDir()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &memclient.NetworkProvisioner{Options: memclient.NetworkOptions{BaseURL: ts.URL}, Prefix: "bench"}
}

func TestGeneratorDeterministic(t *testing.T) {
	g := NewGenerator(42)
	a := g.Generate(7)
	b := NewGenerator(42).Generate(7)
	assert.Equal(t, a, b)

	assert.True(t, strings.HasPrefix(a.Content, "[7] "))
	assert.Contains(t, a.Tags, "batch-0")
	assert.NotContains(t, a.Content, "{")
	assert.Contains(t, g.Generate(120).Tags, "batch-2")

	_, err := memory.ParseType(string(a.Type))
	assert.NoError(t, err)
}

func TestInsertAverageIsTotalOverCount(t *testing.T) {
	r := NewRunner(quickOptions(50), &memclient.EmbeddedProvisioner{BaseDir: t.TempDir()})
	point := r.RunPoint(context.Background(), 50)

	res := point.Embedded
	require.NotNil(t, res)
	require.True(t, res.Success, res.Error)
	assert.InDelta(t, res.InsertTotalMs/50, res.InsertAvgMs, 1e-9)
	assert.Greater(t, res.RecallAvgMs, 0.0)
	assert.GreaterOrEqual(t, res.RecallP99Ms, res.Recall.Min)
	assert.Equal(t, len(Queries)*2, res.Recall.Count)
	assert.Greater(t, res.ListAvgMs, 0.0)
	assert.Greater(t, res.SummaryAvgMs, 0.0)
	assert.Greater(t, res.StatsAvgMs, 0.0)
	assert.Zero(t, res.Failures)
	assert.Nil(t, point.Network)
}

func TestSweepBothPaths(t *testing.T) {
	if testing.Short() {
		t.Skip("sweep inserts 300 memories")
	}
	r := NewRunner(quickOptions(100, 50, 50),
		&memclient.EmbeddedProvisioner{BaseDir: t.TempDir()},
		networkProvisioner(t),
	)
	report, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Points, 2)
	assert.Equal(t, 50, report.Points[0].MemoryCount, "points are sorted and deduplicated")

	for _, p := range report.Points {
		for _, res := range []*PathResult{p.Embedded, p.Network} {
			require.NotNil(t, res)
			require.True(t, res.Success, res.Error)
			assert.Greater(t, res.InsertAvgMs, 0.0)
			assert.Greater(t, res.RecallAvgMs, 0.0)
		}
	}

	require.Len(t, report.Scaling, 1)
	step := report.Scaling[0]
	assert.Equal(t, 2.0, step.DataFactor)
	require.Len(t, step.Paths, 2)
	for _, ps := range step.Paths {
		assert.Greater(t, ps.RecallRatio, 0.0)
		assert.NotEmpty(t, ps.RecallTrend)
	}
}

func TestFailedPathDoesNotAffectOther(t *testing.T) {
	dead := &memclient.NetworkProvisioner{Options: memclient.NetworkOptions{
		BaseURL: "http://127.0.0.1:1",
		Timeout: time.Second,
	}}
	r := NewRunner(quickOptions(20), &memclient.EmbeddedProvisioner{BaseDir: t.TempDir()}, dead)
	report, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Points, 1)

	p := report.Points[0]
	assert.True(t, p.Embedded.Success)
	assert.Greater(t, p.Embedded.RecallAvgMs, 0.0)

	assert.False(t, p.Network.Success)
	assert.Contains(t, p.Network.Error, "insert 0")
	assert.Equal(t, 1, p.Network.Failures, "later phases are skipped")
	assert.Zero(t, p.Network.RecallAvgMs)
}

func TestMarkUnavailable(t *testing.T) {
	r := NewRunner(quickOptions(10), &memclient.EmbeddedProvisioner{BaseDir: t.TempDir()}, &memclient.NetworkProvisioner{})
	r.MarkUnavailable(timing.Network, errors.New("server unreachable"))

	report, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Points[0].Embedded.Success)
	assert.Equal(t, "server unreachable", report.Points[0].Network.Error)
}

func TestSweepValidation(t *testing.T) {
	_, err := NewRunner(quickOptions(10)).Sweep(context.Background())
	assert.Error(t, err)

	_, err = NewRunner(quickOptions(-1, 0), &memclient.EmbeddedProvisioner{}).Sweep(context.Background())
	assert.Error(t, err)
}

func TestProgressCallback(t *testing.T) {
	var calls []int
	opts := quickOptions(25)
	opts.ProgressEvery = 10
	opts.Progress = func(path timing.Path, done, total int) {
		assert.Equal(t, timing.Embedded, path)
		assert.Equal(t, 25, total)
		calls = append(calls, done)
	}
	NewRunner(opts, &memclient.EmbeddedProvisioner{BaseDir: t.TempDir()}).RunPoint(context.Background(), 25)
	assert.Equal(t, []int{10, 20, 25}, calls)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, SubLinear, Classify(1.2, 2))
	assert.Equal(t, Linear, Classify(2.05, 2))
	assert.Equal(t, SuperLinear, Classify(3, 2))
}

func TestAnalyzeSkipsMissingMeasurements(t *testing.T) {
	points := []ScalePoint{
		{MemoryCount: 50, Embedded: &PathResult{RecallAvgMs: 1, InsertAvgMs: 2}, Network: &PathResult{}},
		{MemoryCount: 100, Embedded: &PathResult{RecallAvgMs: 1.5, InsertAvgMs: 2}, Network: &PathResult{RecallAvgMs: 3}},
	}
	steps := Analyze(points)
	require.Len(t, steps, 1)
	require.Len(t, steps[0].Paths, 2)

	emb := steps[0].Paths[0]
	assert.InDelta(t, 1.5, emb.RecallRatio, 1e-9)
	assert.Equal(t, SubLinear, emb.RecallTrend)

	net := steps[0].Paths[1]
	assert.Zero(t, net.RecallRatio)
	assert.Empty(t, net.RecallTrend)
}

func TestBreakdown(t *testing.T) {
	ctx := context.Background()
	eh, err := (&memclient.EmbeddedProvisioner{BaseDir: t.TempDir()}).Provision(ctx, "breakdown")
	require.NoError(t, err)
	defer eh.Release()
	nh, err := networkProvisioner(t).Provision(ctx, "breakdown")
	require.NoError(t, err)
	defer nh.Release()

	report, err := Breakdown(ctx, eh.Client, nh.Client, 2)
	require.NoError(t, err)
	require.Len(t, report.Operations, 8)
	for _, op := range report.Operations {
		assert.Empty(t, op.Error, op.Operation)
		assert.Len(t, op.Iterations, 2, op.Operation)
		assert.Equal(t, 2, op.Embedded.Count)
		assert.NotEmpty(t, op.Winner)
	}
	e, n := report.Totals()
	assert.Greater(t, e, 0.0)
	assert.Greater(t, n, 0.0)
}

func TestParseVmRSS(t *testing.T) {
	status := "Name:\tmemharness\nVmPeak:\t  90000 kB\nVmRSS:\t   20480 kB\nThreads:\t8\n"
	assert.InDelta(t, 20.0, parseVmRSS(status), 1e-9)
	assert.Zero(t, parseVmRSS("Name:\tx\n"))
	assert.Zero(t, parseVmRSS("VmRSS:\tgarbage kB\n"))
}

// failingStats makes Stats fail on every instance it provisions.
type failingStats struct {
	memclient.Provisioner
}

type statsErrClient struct {
	memclient.Client
}

func (statsErrClient) Stats(context.Context) (memory.Stats, error) {
	return memory.Stats{}, errors.New("stats unavailable")
}

func (p failingStats) Provision(ctx context.Context, scope string) (*memclient.Handle, error) {
	h, err := p.Provisioner.Provision(ctx, scope)
	if err != nil {
		return nil, err
	}
	h.Client = statsErrClient{h.Client}
	return h, nil
}

func TestLateFailureKeepsEarlierPhases(t *testing.T) {
	r := NewRunner(quickOptions(20), failingStats{&memclient.EmbeddedProvisioner{BaseDir: t.TempDir()}})
	res := r.RunPoint(context.Background(), 20).Embedded
	require.NotNil(t, res)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "stats unavailable")
	assert.Equal(t, 1, res.Failures)
	assert.Greater(t, res.InsertAvgMs, 0.0)
	assert.Greater(t, res.RecallAvgMs, 0.0)
	assert.Greater(t, res.RecallP99Ms, 0.0)
	assert.Equal(t, len(Queries)*2, res.Recall.Count)
	assert.Greater(t, res.ListAvgMs, 0.0)
	assert.Greater(t, res.SummaryAvgMs, 0.0)
	assert.Zero(t, res.StatsAvgMs)
}
