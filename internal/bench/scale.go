package bench

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"MemHarness/internal/config"
	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/metrics"
	"MemHarness/internal/timing"
)

// Operation names recorded by the sweep.
const (
	OpInsert  = "insert"
	OpRecall  = "recall"
	OpList    = "list"
	OpSummary = "context_summary"
	OpStats   = "stats"
)

// ProgressFunc receives insert progress for one path.
type ProgressFunc func(path timing.Path, done, total int)

// Options parameterises a sweep.
type Options struct {
	Points          []int
	QueryIterations int
	AuxIterations   int
	RecallLimit     int
	ListLimit       int
	SummaryMaxItems int
	Seed            int64
	ProgressEvery   int
	Progress        ProgressFunc
}

// OptionsFromConfig maps the scale section of the configuration.
func OptionsFromConfig(cfg config.ScaleConfig) Options {
	return Options{
		Points:          cfg.Points,
		QueryIterations: cfg.QueryIterations,
		AuxIterations:   cfg.AuxIterations,
		RecallLimit:     cfg.RecallLimit,
		ListLimit:       cfg.ListLimit,
		SummaryMaxItems: cfg.SummaryMaxItems,
		Seed:            cfg.Seed,
		ProgressEvery:   cfg.ProgressEvery,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Points) == 0 {
		o.Points = []int{50, 100, 1000}
	}
	if o.QueryIterations <= 0 {
		o.QueryIterations = 10
	}
	if o.AuxIterations <= 0 {
		o.AuxIterations = 10
	}
	if o.RecallLimit <= 0 {
		o.RecallLimit = 10
	}
	if o.ListLimit <= 0 {
		o.ListLimit = 100
	}
	if o.SummaryMaxItems <= 0 {
		o.SummaryMaxItems = 5
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 100
	}
	return o
}

// PathResult holds one path's numbers at one scale point.
type PathResult struct {
	Path          timing.Path          `json:"path"`
	Success       bool                 `json:"success"`
	Error         string               `json:"error,omitempty"`
	Failures      int                  `json:"failures"`
	InsertTotalMs float64              `json:"insert_total_ms"`
	InsertAvgMs   float64              `json:"insert_avg_ms"`
	RecallAvgMs   float64              `json:"recall_avg_ms"`
	RecallP99Ms   float64              `json:"recall_p99_ms"`
	ListAvgMs     float64              `json:"list_avg_ms"`
	SummaryAvgMs  float64              `json:"context_summary_avg_ms"`
	StatsAvgMs    float64              `json:"stats_avg_ms"`
	Recall        metrics.LatencyStats `json:"recall"`
}

// ScalePoint is the outcome of one scale value. Each path ran on its own
// freshly provisioned instance.
type ScalePoint struct {
	MemoryCount int         `json:"memory_count"`
	Embedded    *PathResult `json:"embedded,omitempty"`
	Network     *PathResult `json:"network,omitempty"`
	DurationMs  float64     `json:"duration_ms"`
	// RSSMB is the harness process footprint once every phase has run,
	// before the instances are released. Zero when unavailable.
	RSSMB float64 `json:"rss_mb,omitempty"`
}

// Result returns the result for path, or nil when the path was not run.
func (p ScalePoint) Result(path timing.Path) *PathResult {
	switch path {
	case timing.Embedded:
		return p.Embedded
	case timing.Network:
		return p.Network
	}
	return nil
}

// Report is the outcome of a full sweep.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Queries   []string      `json:"queries"`
	Points    []ScalePoint  `json:"points"`
	Scaling   []ScalingStep `json:"scaling"`
}

// Runner executes sweeps over up to one provisioner per path.
type Runner struct {
	opts         Options
	provisioners []memclient.Provisioner
	unavailable  map[timing.Path]error
	gen          *Generator
}

// NewRunner returns a runner that measures every provisioner's path.
// Provisioners are measured in the order given.
func NewRunner(opts Options, provisioners ...memclient.Provisioner) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		opts:         opts,
		provisioners: provisioners,
		unavailable:  map[timing.Path]error{},
		gen:          NewGenerator(opts.Seed),
	}
}

// MarkUnavailable records that path cannot be reached. The path is reported
// as failed at every point without being provisioned.
func (r *Runner) MarkUnavailable(path timing.Path, err error) {
	r.unavailable[path] = err
}

// Sweep runs every scale point in ascending order.
func (r *Runner) Sweep(ctx context.Context) (*Report, error) {
	if len(r.provisioners) == 0 {
		return nil, errors.New("bench: no client paths configured")
	}
	points := lo.Uniq(lo.Filter(r.opts.Points, func(n int, _ int) bool { return n > 0 }))
	sort.Ints(points)
	if len(points) == 0 {
		return nil, fmt.Errorf("bench: no positive scale points in %v", r.opts.Points)
	}

	report := &Report{StartedAt: time.Now().UTC(), Queries: Queries}
	for _, n := range points {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logging.Logger.Info("scale point", "memories", n)
		point := r.RunPoint(ctx, n)
		report.Points = append(report.Points, point)
	}
	report.Scaling = Analyze(report.Points)
	return report, nil
}

// pathRun is one path's live state during a scale point.
type pathRun struct {
	path   timing.Path
	client memclient.Client
	result *PathResult
	// failedOp is the phase that failed. Its partial samples are not
	// reported.
	failedOp string
}

func (p *pathRun) fail(op string, err error) {
	p.result.Success = false
	if p.failedOp == "" {
		p.failedOp = op
	}
	if p.result.Error == "" {
		p.result.Error = err.Error()
	}
	logging.Logger.Warn("path failed", "path", p.path, "err", err)
}

func (p *pathRun) ok() bool { return p.result.Success }

// RunPoint measures n inserts followed by the query and auxiliary phases on
// fresh instances. Within a phase the paths run one after the other.
func (r *Runner) RunPoint(ctx context.Context, n int) ScalePoint {
	start := time.Now()
	rec := timing.NewRecorder()
	point := ScalePoint{MemoryCount: n}

	var runs []*pathRun
	for _, prov := range r.provisioners {
		run := &pathRun{path: prov.Path(), result: &PathResult{Path: prov.Path(), Success: true}}
		switch prov.Path() {
		case timing.Embedded:
			point.Embedded = run.result
		case timing.Network:
			point.Network = run.result
		}
		runs = append(runs, run)

		if err, down := r.unavailable[run.path]; down {
			run.fail("provision", err)
			continue
		}
		h, err := prov.Provision(ctx, fmt.Sprintf("scale_%d", n))
		if err != nil {
			run.fail("provision", err)
			continue
		}
		defer func() {
			if err := h.Release(); err != nil {
				logging.Logger.Warn("release failed", "path", run.path, "err", err)
			}
		}()
		run.client = h.Client
	}

	// Insert.
	for _, run := range runs {
		if !run.ok() {
			continue
		}
		offset := 0
		if run.path == timing.Network {
			offset = n
		}
		for i := 0; i < n; i++ {
			m := r.gen.Generate(i + offset)
			_, _, err := timing.Do(rec, OpInsert, run.path, func() (string, error) {
				return run.client.Remember(ctx, m.Content, m.Type, m.Tags)
			})
			if err != nil {
				run.fail(OpInsert, fmt.Errorf("insert %d: %w", i, err))
				break
			}
			if r.opts.Progress != nil && ((i+1)%r.opts.ProgressEvery == 0 || i+1 == n) {
				r.opts.Progress(run.path, i+1, n)
			}
		}
		if run.ok() {
			run.result.InsertTotalMs = metrics.Sum(rec.Elapsed(OpInsert, run.path))
			run.result.InsertAvgMs = run.result.InsertTotalMs / float64(n)
		}
	}

	queryCalls := len(Queries) * r.opts.QueryIterations
	r.phase(rec, runs, OpRecall, queryCalls, func(c memclient.Client, i int) error {
		_, err := c.Recall(ctx, Queries[i/r.opts.QueryIterations], r.opts.RecallLimit)
		return err
	})
	r.phase(rec, runs, OpList, r.opts.AuxIterations, func(c memclient.Client, _ int) error {
		_, err := c.List(ctx, r.opts.ListLimit)
		return err
	})
	r.phase(rec, runs, OpSummary, r.opts.AuxIterations, func(c memclient.Client, _ int) error {
		_, err := c.ContextSummary(ctx, r.opts.SummaryMaxItems)
		return err
	})
	r.phase(rec, runs, OpStats, r.opts.AuxIterations, func(c memclient.Client, _ int) error {
		_, err := c.Stats(ctx)
		return err
	})

	for _, run := range runs {
		res := run.result
		res.Failures = rec.Failures(run.path)
		// Phases after a failure never ran and have no samples, so only
		// the failing phase needs excluding.
		elapsed := func(op string) []float64 {
			if op == run.failedOp {
				return nil
			}
			return rec.Elapsed(op, run.path)
		}
		if recall := elapsed(OpRecall); len(recall) > 0 {
			res.Recall = metrics.Summarize(recall)
			res.RecallAvgMs = res.Recall.Mean
			res.RecallP99Ms = metrics.Percentile(recall, 99)
		}
		res.ListAvgMs = metrics.Mean(elapsed(OpList))
		res.SummaryAvgMs = metrics.Mean(elapsed(OpSummary))
		res.StatsAvgMs = metrics.Mean(elapsed(OpStats))
	}

	point.DurationMs = timing.Milliseconds(time.Since(start))
	point.RSSMB = residentMB()
	return point
}

// phase times calls invocations of call on every healthy path, one path
// after the other. The first error fails the path and ends its phase.
func (r *Runner) phase(rec *timing.Recorder, runs []*pathRun, op string, calls int, call func(c memclient.Client, i int) error) {
	for _, run := range runs {
		if !run.ok() {
			continue
		}
		for i := 0; i < calls; i++ {
			if _, err := rec.Time(op, run.path, func() error { return call(run.client, i) }); err != nil {
				run.fail(op, fmt.Errorf("%s: %w", op, err))
				break
			}
		}
	}
}
