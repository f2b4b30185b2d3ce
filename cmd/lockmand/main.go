package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pkt.systems/pslog"

	"github.com/swamireddy/ceph-lcm/pkg/config"
	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
	"github.com/swamireddy/ceph-lcm/pkg/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		listen     = flag.String("listen", "", "Listen address (overrides config)")
		backend    = flag.String("backend", "", "Lock store backend: memory, bolt or redis (overrides config)")
	)
	flag.Parse()

	logger := pslog.NewStructured(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("lockmand.config_failed", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("lockmand.config_failed", "error", err)
		os.Exit(1)
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Error("lockmand.store_failed", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	logger.Info("lockmand.starting",
		"listen", cfg.Listen,
		"backend", cfg.Backend,
		"lease_ttl", cfg.LeaseTTL.Std().String(),
		"auth", cfg.AuthToken != "")

	srv := server.New(server.Config{Addr: cfg.Listen, AuthToken: cfg.AuthToken}, store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("lockmand.signal", "signal", sig.String())
	case err := <-errCh:
		logger.Error("lockmand.serve_failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("lockmand.shutdown_error", "error", err)
	}
	logger.Info("lockmand.stopped")
}

func buildStore(cfg config.Config) (lockstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return lockstore.NewMemoryStore(), nil
	case config.BackendBolt:
		return lockstore.NewBoltStore(cfg.BoltPath)
	case config.BackendRedis:
		return lockstore.NewRedisStore(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
