package subcommands

import (
	"context"
	"fmt"

	"MemHarness/internal/bench"
	"MemHarness/internal/config"
	"MemHarness/internal/report"
)

// RunBreakdown times every client operation on both paths against one
// instance each.
func RunBreakdown(ctx context.Context, cfg config.Config, iterations int) error {
	if err := checkServer(ctx, cfg); err != nil {
		return err
	}

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer emb.Close()

	embedded, err := embeddedProvisioner(cfg, emb).Provision(ctx, "breakdown")
	if err != nil {
		return err
	}
	defer embedded.Release()

	network, err := networkProvisioner(cfg).Provision(ctx, "breakdown")
	if err != nil {
		return err
	}
	defer network.Release()

	fmt.Printf("Operation breakdown, %d iterations per operation\n", iterations)
	rep, err := bench.Breakdown(ctx, embedded.Client, network.Client, iterations)
	if err != nil {
		return err
	}
	emit(cfg, report.BreakdownTables(rep), report.BreakdownMarkdown(rep))
	withSink(cfg, func(s *report.Sink) (string, error) { return s.WriteBreakdown(ctx, rep) })
	return nil
}
