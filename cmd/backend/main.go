package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"employee-portal/internal/config"
	"employee-portal/internal/db"
	"employee-portal/internal/server"
)

func main() {
	cfg := config.Load()
	server.ConfigureLogging(cfg.LogLevel, cfg.LogFormat)

	if err := config.Validate(cfg); err != nil {
		server.Error("invalid configuration", nil, err)
		os.Exit(1)
	}

	build := server.BuildInfo{Version: cfg.Version, Commit: cfg.Commit}

	// Database
	env := db.EnvMap(os.Environ())
	dbCfg, err := db.ResolveConfig(env)
	if err != nil {
		server.Error("db_config_failed", nil, err)
		os.Exit(1)
	}
	server.Info("db_config", map[string]interface{}{
		"source": string(db.DetectSource(env)),
		"dsn":    dbCfg.Redacted(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	provider, err := db.NewProvider(ctx, dbCfg, db.WithCheckInterval(cfg.PoolCheckInterval))
	cancel()
	if err != nil {
		server.Error("db_connect_failed", nil, err)
		os.Exit(1)
	}
	defer provider.Close()

	if cfg.Migrate {
		server.Info("running_migrations", nil)
		if err := provider.Migrate(); err != nil {
			server.Error("migration_failed", nil, err)
			provider.Close()
			os.Exit(1)
		}
		server.Info("migrations_complete", nil)
	}

	assets, err := newAssets(context.Background(), cfg)
	if err != nil {
		server.Error("assets_unavailable", map[string]interface{}{"bucket": cfg.S3.Bucket}, err)
		provider.Close()
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Addr:      cfg.Addr,
		Build:     build,
		DB:        provider,
		Employees: db.NewEmployeeRepository(provider.DB()),
		Fruits:    db.NewFruitRepository(provider.DB()),
		Assets:    assets,

		PickRateLimit: cfg.PickRateLimit,
		TrustProxy:    cfg.TrustProxy,
	})

	// Start the HTTP server in a background goroutine so the main goroutine
	// can watch for signals and pool failures.
	errCh := make(chan error, 1)
	go func() {
		server.Info("starting", map[string]interface{}{
			"addr":    cfg.Addr,
			"version": build.Version,
			"commit":  build.Commit,
			"assets":  assets.Backend(),
		})
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ev := waitForExit(sigCh, errCh, provider.Fatal())
	switch ev.reason {
	case exitSignal:
		server.Info("shutting_down", map[string]interface{}{"signal": ev.signal.String()})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			server.Error("shutdown_error", nil, err)
			provider.Close()
			os.Exit(1)
		}
		server.Info("shutdown_complete", nil)
	case exitServerError:
		server.Error("server_error", nil, ev.err)
		provider.Close()
		os.Exit(1)
	case exitPoolFatal:
		// A broken idle connection leaves the pool in an unknown state.
		// Stop and let the orchestrator restart the process.
		server.Error("unexpected error on idle connection", nil, ev.err)
		os.Exit(1)
	}
}

type exitReason int

const (
	exitSignal exitReason = iota
	exitServerError
	exitPoolFatal
)

type exitEvent struct {
	reason exitReason
	signal os.Signal
	err    error
}

// waitForExit blocks until the process has a reason to stop. A server that
// returns nil (closed without error) is not a reason on its own.
func waitForExit(sigCh <-chan os.Signal, errCh <-chan error, fatal <-chan error) exitEvent {
	for {
		select {
		case sig := <-sigCh:
			return exitEvent{reason: exitSignal, signal: sig}
		case err := <-errCh:
			if err != nil {
				return exitEvent{reason: exitServerError, err: err}
			}
			errCh = nil
		case err := <-fatal:
			return exitEvent{reason: exitPoolFatal, err: err}
		}
	}
}

// newAssets serves images from the object store when one is configured,
// otherwise from the local static directory.
func newAssets(ctx context.Context, cfg *config.Config) (server.Assets, error) {
	if !cfg.S3.Enabled() {
		return server.NewDirAssets(cfg.StaticDir), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	assets, err := server.NewMinioAssets(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket)
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	return assets, nil
}
