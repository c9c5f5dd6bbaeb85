package subcommands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"MemHarness/internal/config"
	"MemHarness/internal/embedding"
	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/report"
)

const healthTimeout = 5 * time.Second

func newEmbedder(cfg config.Config) (embedding.Provider, error) {
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return emb, nil
}

func embeddedProvisioner(cfg config.Config, emb embedding.Provider) *memclient.EmbeddedProvisioner {
	return &memclient.EmbeddedProvisioner{
		BaseDir:  cfg.Memory.TempDir,
		Index:    cfg.Memory.Index,
		Embedder: emb,
	}
}

func networkOptions(cfg config.Config) memclient.NetworkOptions {
	return memclient.NetworkOptions{
		BaseURL: cfg.Network.BaseURL,
		APIKey:  cfg.Network.APIKey,
		Timeout: cfg.NetworkTimeout(),
	}
}

func networkProvisioner(cfg config.Config) *memclient.NetworkProvisioner {
	return &memclient.NetworkProvisioner{Options: networkOptions(cfg), Prefix: cfg.Network.UserPrefix}
}

// checkServer confirms the REST server answers before any measurement starts.
func checkServer(ctx context.Context, cfg config.Config) error {
	opts := networkOptions(cfg)
	opts.UserID = "health"
	client, err := memclient.NewNetwork(opts)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("memory server at %s is not reachable: %w", opts.BaseURL, err)
	}
	logging.Logger.Info("memory server healthy", "url", opts.BaseURL, "status", health.Status, "index", health.Index)
	return nil
}

// emit prints tables, or rendered Markdown when configured.
func emit(cfg config.Config, tables, md string) {
	if cfg.Output.Markdown {
		out, err := report.Render(md, "", 100)
		if err == nil {
			fmt.Print(out)
			return
		}
		logging.Logger.Warn("markdown rendering failed, falling back to tables", "err", err)
	}
	fmt.Print(tables)
}

// outputPath places file under the configured output directory unless it is
// already absolute or explicitly relative to somewhere else.
func outputPath(cfg config.Config, file string) string {
	if filepath.IsAbs(file) || filepath.Dir(file) != "." || cfg.Output.Dir == "" {
		return file
	}
	return filepath.Join(cfg.Output.Dir, file)
}

func withSink(cfg config.Config, fn func(*report.Sink) (string, error)) {
	if cfg.Output.DuckDBPath == "" {
		return
	}
	sink, err := report.OpenSink(cfg.Output.DuckDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return
	}
	defer sink.Close()
	if runID, err := fn(sink); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store results: %v\n", err)
	} else {
		fmt.Printf("Results appended to %s (run %s)\n", cfg.Output.DuckDBPath, runID)
	}
}
