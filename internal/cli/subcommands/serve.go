package subcommands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"MemHarness/internal/config"
	"MemHarness/internal/logging"
	"MemHarness/server"
)

// ServeOptions overrides the server section of the configuration.
type ServeOptions struct {
	Host    string
	Port    int
	DataDir string
}

// RunServe runs the REST memory server until ctx is cancelled.
func RunServe(ctx context.Context, cfg config.Config, opts ServeOptions) error {
	host := cfg.Server.Host
	if opts.Host != "" {
		host = opts.Host
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Server.Port
	if opts.Port > 0 {
		port = opts.Port
	}
	dataDir := cfg.Server.DataDir
	if opts.DataDir != "" {
		dataDir = opts.DataDir
	}

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer emb.Close()

	srv := server.NewHTTPServer(server.Options{
		Address:  host,
		Port:     strconv.Itoa(port),
		DataDir:  dataDir,
		APIKey:   cfg.Server.APIKey,
		Index:    cfg.Memory.Index,
		Embedder: emb,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	fmt.Printf("MemHarness memory server listening on http://%s:%d\n", host, port)
	fmt.Printf("  Health: http://%s:%d/health\n", host, port)
	fmt.Printf("  API:    http://%s:%d/api/\n", host, port)

	<-ctx.Done()
	fmt.Println("HTTP server shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		logging.Logger.Warn("failed to stop HTTP server", "err", err)
		return err
	}
	return nil
}
