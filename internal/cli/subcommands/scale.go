package subcommands

import (
	"context"
	"fmt"
	"os"

	"MemHarness/internal/bench"
	"MemHarness/internal/config"
	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/report"
	"MemHarness/internal/timing"
)

// ScaleOptions overrides the scale section of the configuration.
type ScaleOptions struct {
	Points    []int
	NoNetwork bool
	Output    string
}

// RunScale executes the scale sweep and writes its report.
func RunScale(ctx context.Context, cfg config.Config, opts ScaleOptions) error {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer emb.Close()

	benchOpts := bench.OptionsFromConfig(cfg.Scale)
	if len(opts.Points) > 0 {
		benchOpts.Points = opts.Points
	}
	progress := report.NewProgress(os.Stderr, 40)
	defer progress.Done()
	benchOpts.Progress = progress.Insert()

	provisioners := []memclient.Provisioner{embeddedProvisioner(cfg, emb)}
	network := cfg.Network.Enabled && !opts.NoNetwork
	if network {
		provisioners = append(provisioners, networkProvisioner(cfg))
	}
	runner := bench.NewRunner(benchOpts, provisioners...)

	if network {
		if err := checkServer(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\nContinuing with the embedded path only.\n", err)
			runner.MarkUnavailable(timing.Network, err)
		}
	}

	fmt.Printf("Scale sweep over %v memories (index %s, embedding %s)\n", benchOpts.Points, cfg.Memory.Index, cfg.Embedding.Backend)
	rep, err := runner.Sweep(ctx)
	if rep == nil {
		return err
	}
	if err != nil {
		logging.Logger.Warn("sweep interrupted", "err", err, "points", len(rep.Points))
		rep.Scaling = bench.Analyze(rep.Points)
	}

	emit(cfg, report.ScaleTables(rep), report.ScaleMarkdown(rep))

	file := opts.Output
	if file == "" {
		file = cfg.Output.ScaleFile
	}
	if file != "" {
		path := outputPath(cfg, file)
		if werr := report.WriteJSON(path, rep); werr != nil {
			return werr
		}
		fmt.Printf("Results saved to: %s\n", path)
	}
	withSink(cfg, func(s *report.Sink) (string, error) { return s.WriteScale(ctx, rep) })
	return err
}
