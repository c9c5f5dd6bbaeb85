package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"MemHarness/internal/memclient"
	"MemHarness/internal/memory"
	"MemHarness/internal/metrics"
	"MemHarness/internal/timing"
)

const breakdownTag = "breakdown-tag"

// BreakdownIteration is one timed call on each path.
type BreakdownIteration struct {
	Iteration  int         `json:"iteration"`
	EmbeddedMs float64     `json:"embedded_ms"`
	NetworkMs  float64     `json:"network_ms"`
	DiffMs     float64     `json:"diff_ms"`
	Winner     timing.Path `json:"winner"`
}

// OperationBreakdown compares both paths on one operation.
type OperationBreakdown struct {
	Operation  string               `json:"operation"`
	Iterations []BreakdownIteration `json:"iterations"`
	Embedded   metrics.LatencyStats `json:"embedded"`
	Network    metrics.LatencyStats `json:"network"`
	// Overhead is the network mean minus the embedded mean.
	Overhead float64     `json:"overhead_ms"`
	Winner   timing.Path `json:"winner,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// BreakdownReport is the per-operation comparison of both paths.
type BreakdownReport struct {
	Iterations int                  `json:"iterations"`
	Operations []OperationBreakdown `json:"operations"`
}

type breakdownOp struct {
	name string
	call func(ctx context.Context, c memclient.Client, seedID string) error
}

func breakdownOps() []breakdownOp {
	return []breakdownOp{
		{"remember", func(ctx context.Context, c memclient.Client, _ string) error {
			_, err := c.Remember(ctx, fmt.Sprintf("Test memory about machine learning %d", time.Now().UnixNano()), memory.Learning, nil)
			return err
		}},
		{"recall", func(ctx context.Context, c memclient.Client, _ string) error {
			_, err := c.Recall(ctx, "machine learning neural networks", 5)
			return err
		}},
		{"list", func(ctx context.Context, c memclient.Client, _ string) error {
			_, err := c.List(ctx, 10)
			return err
		}},
		{"get", func(ctx context.Context, c memclient.Client, id string) error {
			_, err := c.Get(ctx, id)
			return err
		}},
		{"recall_by_tags", func(ctx context.Context, c memclient.Client, _ string) error {
			_, err := c.RecallByTags(ctx, []string{breakdownTag}, 5)
			return err
		}},
		{"recall_by_date", func(ctx context.Context, c memclient.Client, _ string) error {
			now := time.Now().UTC()
			_, err := c.RecallByDate(ctx, memory.DateRange{Start: now.AddDate(0, 0, -7), End: now}, 5)
			return err
		}},
		{"context_summary", func(ctx context.Context, c memclient.Client, _ string) error {
			_, err := c.ContextSummary(ctx, 5)
			return err
		}},
		{"stats", func(ctx context.Context, c memclient.Client, _ string) error {
			_, err := c.Stats(ctx)
			return err
		}},
	}
}

// Breakdown warms both clients up, then times every operation iterations
// times on each path, embedded first within each iteration.
func Breakdown(ctx context.Context, embedded, network memclient.Client, iterations int) (*BreakdownReport, error) {
	if iterations <= 0 {
		iterations = 3
	}

	seeds := map[timing.Path]string{}
	for _, c := range []memclient.Client{embedded, network} {
		if _, err := c.Remember(ctx, "warmup content for model loading", memory.Context, nil); err != nil {
			return nil, fmt.Errorf("bench: warmup %s: %w", c.Path(), err)
		}
		if _, err := c.Recall(ctx, "warmup query", 5); err != nil {
			return nil, fmt.Errorf("bench: warmup %s: %w", c.Path(), err)
		}
		id, err := c.Remember(ctx, "Tagged memory for testing", memory.Context, []string{breakdownTag})
		if err != nil {
			return nil, fmt.Errorf("bench: seed %s: %w", c.Path(), err)
		}
		seeds[c.Path()] = id
	}

	report := &BreakdownReport{Iterations: iterations}
	for _, op := range breakdownOps() {
		ob := OperationBreakdown{Operation: op.name}
		rec := timing.NewRecorder()
		for i := 1; i <= iterations; i++ {
			es, err := rec.Time(op.name, timing.Embedded, func() error { return op.call(ctx, embedded, seeds[timing.Embedded]) })
			if err != nil {
				ob.Error = fmt.Sprintf("embedded: %v", err)
				break
			}
			ns, err := rec.Time(op.name, timing.Network, func() error { return op.call(ctx, network, seeds[timing.Network]) })
			if err != nil {
				ob.Error = fmt.Sprintf("network: %v", err)
				break
			}
			ob.Iterations = append(ob.Iterations, BreakdownIteration{
				Iteration:  i,
				EmbeddedMs: es.ElapsedMs,
				NetworkMs:  ns.ElapsedMs,
				DiffMs:     ns.ElapsedMs - es.ElapsedMs,
				Winner:     faster(es.ElapsedMs, ns.ElapsedMs),
			})
		}
		ob.Embedded = metrics.Summarize(rec.Elapsed(op.name, timing.Embedded))
		ob.Network = metrics.Summarize(rec.Elapsed(op.name, timing.Network))
		if len(ob.Iterations) > 0 {
			ob.Overhead = ob.Network.Mean - ob.Embedded.Mean
			ob.Winner = faster(ob.Embedded.Mean, ob.Network.Mean)
		}
		report.Operations = append(report.Operations, ob)
	}
	return report, nil
}

// Totals sums the per-operation means for each path.
func (r *BreakdownReport) Totals() (embedded, network float64) {
	embedded = lo.SumBy(r.Operations, func(o OperationBreakdown) float64 { return o.Embedded.Mean })
	network = lo.SumBy(r.Operations, func(o OperationBreakdown) float64 { return o.Network.Mean })
	return embedded, network
}

func faster(embeddedMs, networkMs float64) timing.Path {
	if embeddedMs < networkMs {
		return timing.Embedded
	}
	return timing.Network
}
