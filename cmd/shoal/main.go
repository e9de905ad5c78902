// Package main is the entry point for the Shoal S3-compatible object storage server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shoalstore/shoal/internal/auth"
	"github.com/shoalstore/shoal/internal/config"
	"github.com/shoalstore/shoal/internal/logging"
	"github.com/shoalstore/shoal/internal/metrics"
	"github.com/shoalstore/shoal/internal/server"
	"github.com/shoalstore/shoal/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 9000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	// Crash-only design: every startup is recovery. No special recovery mode.
	// Steps that would normally be "recovery" run on every boot:
	// - local engine temp file cleanup (below, inside NewLocalEngine)
	// - memory engine snapshot restore (below, inside NewMemoryEngine)
	// - default credential seeding (below)

	creds := auth.NewCredentialStore()
	creds.Add(auth.Credentials{
		AccessKey: cfg.Auth.AccessKey,
		SecretKey: cfg.Auth.SecretKey,
		IsAdmin:   true,
	})

	engine, err := newEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage engine: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, engine, creds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Shoal listening on %s", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, close an engine that has a Close method (the
	// memory engine's final snapshot), then exit. No other cleanup --
	// crash-only design.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)

		timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		if closer, ok := engine.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Printf("Storage engine close error: %v", err)
			}
		}
		log.Printf("Server stopped.")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// newEngine constructs the single storage.Engine selected by
// cfg.Storage.Backend: "local" (default), "memory", "aws", "gcp", or "azure".
func newEngine(cfg *config.Config) (storage.Engine, error) {
	ctx := context.Background()

	switch cfg.Storage.Backend {
	case "memory":
		var opts []storage.MemoryEngineOption
		if cfg.Storage.Memory.MaxSizeBytes > 0 {
			opts = append(opts, storage.WithMaxSize(cfg.Storage.Memory.MaxSizeBytes))
		}
		if cfg.Storage.Memory.Persistence == "snapshot" {
			interval := time.Duration(cfg.Storage.Memory.SnapshotIntervalSeconds) * time.Second
			opts = append(opts, storage.WithSnapshotPersistence(cfg.Storage.Memory.SnapshotPath, interval))
		}
		engine, err := storage.NewMemoryEngine(opts...)
		if err != nil {
			return nil, fmt.Errorf("initializing memory engine: %w", err)
		}
		log.Printf("Storage backend: memory (persistence=%s)", cfg.Storage.Memory.Persistence)
		return engine, nil

	case "aws":
		c := cfg.Storage.AWS
		if c.Bucket == "" {
			return nil, fmt.Errorf("storage.aws.bucket is required when backend is %q", "aws")
		}
		region := c.Region
		if region == "" {
			region = "us-east-1"
		}
		engine, err := storage.NewAWSGatewayEngine(ctx, c.Bucket, region, c.Prefix, c.EndpointURL, c.UsePathStyle, c.AccessKeyID, c.SecretAccessKey)
		if err != nil {
			return nil, fmt.Errorf("initializing AWS gateway engine: %w", err)
		}
		log.Printf("Storage backend: aws (bucket=%s region=%s prefix=%q)", c.Bucket, region, c.Prefix)
		return engine, nil

	case "gcp":
		c := cfg.Storage.GCP
		if c.Bucket == "" {
			return nil, fmt.Errorf("storage.gcp.bucket is required when backend is %q", "gcp")
		}
		engine, err := storage.NewGCPGatewayEngine(ctx, c.Bucket, c.Project, c.Prefix)
		if err != nil {
			return nil, fmt.Errorf("initializing GCP gateway engine: %w", err)
		}
		log.Printf("Storage backend: gcp (bucket=%s project=%s prefix=%q)", c.Bucket, c.Project, c.Prefix)
		return engine, nil

	case "azure":
		c := cfg.Storage.Azure
		if c.Container == "" {
			return nil, fmt.Errorf("storage.azure.container is required when backend is %q", "azure")
		}
		accountURL := c.AccountURL
		if accountURL == "" {
			if c.Account == "" {
				return nil, fmt.Errorf("storage.azure.account or storage.azure.account_url is required when backend is %q", "azure")
			}
			accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", c.Account)
		}
		engine, err := storage.NewAzureGatewayEngine(ctx, c.Container, accountURL, c.Prefix)
		if err != nil {
			return nil, fmt.Errorf("initializing Azure gateway engine: %w", err)
		}
		log.Printf("Storage backend: azure (container=%s account_url=%s prefix=%q)", c.Container, accountURL, c.Prefix)
		return engine, nil

	default:
		rootDir := cfg.Storage.Local.RootDir
		engine, err := storage.NewLocalEngine(rootDir)
		if err != nil {
			return nil, fmt.Errorf("initializing local engine: %w", err)
		}
		log.Printf("Storage backend: local (%s)", rootDir)
		return engine, nil
	}
}
