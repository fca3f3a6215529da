package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"consent-ledger/internal/platform/config"
	"consent-ledger/internal/platform/httpserver"
	"consent-ledger/internal/platform/logger"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	log.Info("initializing consent ledger",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"database", cfg.Database.URL != "",
		"blob_backend", cfg.Blob.Backend,
		"kafka", cfg.Kafka.Enabled(),
	)

	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range a.background {
		g.Go(func() error { return fn(gctx) })
	}
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		return httpserver.Run(gctx, httpserver.New(cfg.Addr, a.handler), cfg.ShutdownTimeout)
	})
	runErr := g.Wait()

	log.Info("shutting down dependencies")
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.close(closeCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
	return runErr
}
