// Package cli wires the memharness command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"MemHarness/internal/cli/subcommands"
	"MemHarness/internal/config"
	"MemHarness/internal/logging"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	markdown   bool
	duckdb     string
	logFile    bool
	cfg        config.Config
}

// Execute is the entry point for the memharness CLI.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "memharness",
		Short: "Latency and retrieval-quality harness for a memory subsystem",
		Long: `memharness measures a memory subsystem through two access paths:
an in-process engine (embedded) and the same engine behind a REST server (network).

  scale      latency of every operation as the store grows
  eval       multiple-choice retrieval QA judged by an LLM
  breakdown  per-operation embedded vs network comparison
  serve      run the REST memory server`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logging.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default is ./memharness.yaml or $MEMHARNESS_CONFIG)")
	pf.BoolVar(&g.markdown, "markdown", false, "render reports as Markdown instead of tables")
	pf.StringVar(&g.duckdb, "duckdb", "", "append results to this DuckDB file")
	pf.BoolVar(&g.logFile, "log-file", false, "write logs to ~/.memharness/logs instead of stderr")

	root.AddCommand(
		newScaleCommand(g),
		newEvalCommand(g),
		newBreakdownCommand(g),
		newServeCommand(g),
		newConfigCommand(g),
	)
	return root
}

func (g *globals) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Resolve(g.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("markdown") {
		cfg.Output.Markdown = g.markdown
	}
	if flags.Changed("duckdb") {
		cfg.Output.DuckDBPath = g.duckdb
	}
	if flags.Changed("log-file") {
		cfg.Logging.ToFile = g.logFile
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.ToFile); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

func newScaleCommand(g *globals) *cobra.Command {
	var opts subcommands.ScaleOptions
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Run the scale sweep over both access paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return subcommands.RunScale(cmd.Context(), g.cfg, opts)
		},
	}
	cmd.Flags().IntSliceVar(&opts.Points, "points", nil, "memory counts to measure (default from config: 50,100,1000)")
	cmd.Flags().BoolVar(&opts.NoNetwork, "no-network", false, "measure the embedded path only")
	cmd.Flags().StringVar(&opts.Output, "output", "", "JSON report file (default scale_results.json)")
	return cmd
}

func newEvalCommand(g *globals) *cobra.Command {
	var opts subcommands.EvalOptions
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the multiple-choice retrieval QA evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return subcommands.RunEval(cmd.Context(), g.cfg, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Provider, "provider", "", "judge provider (openai, openai-compatible, anthropic, gemini, ollama, llamacpp, baseten)")
	f.StringVar(&opts.Model, "model", "", "judge model name")
	f.StringVar(&opts.APIBase, "api-base", "", "endpoint for self-hosted or compatible providers")
	f.StringVar(&opts.APIKey, "api-key", "", "provider API key (default from the provider's environment variable)")
	f.IntVar(&opts.Limit, "limit", 0, "number of items to evaluate (default 50)")
	f.BoolVar(&opts.Full, "full", false, "evaluate the whole dataset")
	f.StringVar(&opts.Dataset, "dataset", "", "dataset file, JSON array or JSON Lines")
	f.StringVar(&opts.Output, "output", "", "JSON report file (default locomo_mc10_results_<provider>.json)")
	f.StringVar(&opts.Path, "path", "", "memory access path: embedded or network")
	return cmd
}

func newBreakdownCommand(g *globals) *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Compare every operation on the embedded and network paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return subcommands.RunBreakdown(cmd.Context(), g.cfg, iterations)
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 3, "timed calls per operation and path")
	return cmd
}

func newServeCommand(g *globals) *cobra.Command {
	var opts subcommands.ServeOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST memory server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return subcommands.RunServe(cmd.Context(), g.cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Host, "host", "", "listen address (overrides config)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory holding one engine per user (overrides config)")
	return cmd
}

func newConfigCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return subcommands.RunConfig(cmd.OutOrStdout(), g.cfg)
		},
	}
}
